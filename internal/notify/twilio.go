package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// Warning is the escalation alert forwarded to guardians of the call receiver.
type Warning struct {
	SessionID string
	AudioID   string
	ScamCount int
	Advice    string
}

// Notifier delivers escalation warnings out of band.
type Notifier interface {
	NotifyWarning(ctx context.Context, w Warning) error
}

// Nop drops every warning.
type Nop struct{}

func (Nop) NotifyWarning(context.Context, Warning) error { return nil }

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	To         []string
}

func (c TwilioConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != "" && len(c.To) > 0
}

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// TwilioNotifier sends each warning as an SMS to every configured recipient.
type TwilioNotifier struct {
	cfg    TwilioConfig
	client messageCreator
	logger *slog.Logger
}

const maxSMSRunes = 320

func NewTwilioNotifier(cfg TwilioConfig, logger *slog.Logger) (*TwilioNotifier, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("missing twilio credentials")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.New("twilio from/to required")
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilioNotifier(cfg, rest.Api, logger), nil
}

func newTwilioNotifier(cfg TwilioConfig, client messageCreator, logger *slog.Logger) *TwilioNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &TwilioNotifier{cfg: cfg, client: client, logger: logger.With("component", "notify.twilio")}
}

func (n *TwilioNotifier) NotifyWarning(ctx context.Context, w Warning) error {
	body := FormatSMS(w)
	var errs []error
	for _, to := range n.cfg.To {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		params := &api.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(n.cfg.From)
		params.SetBody(body)
		resp, err := n.client.CreateMessage(params)
		if err != nil {
			errs = append(errs, fmt.Errorf("sms to %s: %w", to, err))
			continue
		}
		sid := ""
		if resp != nil && resp.Sid != nil {
			sid = *resp.Sid
		}
		n.logger.Info("warning sms sent", "session_id", w.SessionID, "to", to, "sid", sid)
	}
	return errors.Join(errs...)
}

// FormatSMS renders a warning as a single SMS body, truncated to a few segments.
func FormatSMS(w Warning) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[ScamGuard] ตรวจพบสายต้องสงสัย (%d ข้อความ)", w.ScamCount)
	if w.AudioID != "" {
		fmt.Fprintf(&b, " %s", w.AudioID)
	}
	if advice := strings.TrimSpace(w.Advice); advice != "" {
		b.WriteString("\n")
		b.WriteString(advice)
	}
	out := b.String()
	if utf8.RuneCountInString(out) > maxSMSRunes {
		out = string([]rune(out)[:maxSMSRunes-1]) + "…"
	}
	return out
}
