package guard

import (
	"context"
	"errors"
	"strings"

	"github.com/ent0n29/scamguard/internal/detect"
	"github.com/ent0n29/scamguard/internal/observability"
)

const checkFallbackReason = "ตรวจพบรูปแบบการหลอกลวง"

var ErrEmptyText = errors.New("text is required")

// TextCheck is the verdict for one standalone utterance.
type TextCheck struct {
	Text       string  `json:"text" yaml:"text"`
	Label      string  `json:"label" yaml:"label"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Reason     *string `json:"reason" yaml:"reason,omitempty"`
}

// CheckText classifies text on its own, without any conversational memory.
// A SCAM verdict carries an explanation; other verdicts leave Reason nil.
func (o *Orchestrator) CheckText(ctx context.Context, text string) (TextCheck, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TextCheck{}, ErrEmptyText
	}

	started := o.now()
	label, score, err := o.caps.FraudClassifier.ClassifyFraud(ctx, text)
	o.metrics.ObserveCapability(observability.StageClassify, o.now().Sub(started), err)
	if err != nil {
		return TextCheck{}, err
	}
	verdict := o.cfg.Gate.Evaluate(score, label)
	out := TextCheck{Text: text, Label: string(verdict.Status), Confidence: verdict.Confidence}
	if o.metrics != nil {
		o.metrics.TextChecks.WithLabelValues(out.Label).Inc()
	}
	if verdict.Status != detect.StatusScam {
		return out, nil
	}

	started = o.now()
	reason, err := o.caps.Explainer.Explain(ctx, text)
	o.metrics.ObserveCapability(observability.StageExplain, o.now().Sub(started), err)
	reason = strings.TrimSpace(reason)
	if err != nil || reason == "" {
		if err != nil {
			o.logger.Warn("explain failed for text check", "error", err)
		}
		o.metrics.ObserveIndicator(observability.IndicatorExplainerFallback)
		reason = checkFallbackReason
	}
	out.Reason = &reason
	return out, nil
}
