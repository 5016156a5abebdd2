package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/ent0n29/scamguard/internal/audio"
	"github.com/ent0n29/scamguard/internal/detect"
	"github.com/ent0n29/scamguard/internal/reliability"
)

// WithTimeout bounds every capability call in s by d. An expired call is
// reported as an unavailable capability. A zero d returns s unchanged.
func WithTimeout(s *Set, d time.Duration) *Set {
	if d <= 0 {
		return s
	}
	out := *s
	if s.Transcriber != nil {
		out.Transcriber = timeoutTranscriber{next: s.Transcriber, d: d}
	}
	if s.Diarizer != nil {
		out.Diarizer = timeoutDiarizer{next: s.Diarizer, d: d}
	}
	if s.RoleClassifier != nil {
		out.RoleClassifier = timeoutRoleClassifier{next: s.RoleClassifier, d: d}
	}
	if s.FraudClassifier != nil {
		out.FraudClassifier = timeoutFraudClassifier{next: s.FraudClassifier, d: d}
	}
	if s.Explainer != nil {
		out.Explainer = timeoutExplainer{next: s.Explainer, d: d}
	}
	return &out
}

func bounded[T any](ctx context.Context, d time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	v, err := fn(ctx)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		err = reliability.Wrap(fmt.Errorf("%s timed out after %s: %w", name, d, err), reliability.KindCapabilityUnavailable)
	}
	return v, err
}

type timeoutTranscriber struct {
	next Transcriber
	d    time.Duration
}

func (t timeoutTranscriber) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	return bounded(ctx, t.d, "asr", func(ctx context.Context) (string, error) {
		return t.next.Transcribe(ctx, clip)
	})
}

type timeoutDiarizer struct {
	next Diarizer
	d    time.Duration
}

func (t timeoutDiarizer) Diarize(ctx context.Context, w *audio.Waveform, speakers int) ([]detect.Segment, error) {
	return bounded(ctx, t.d, "diarization", func(ctx context.Context) ([]detect.Segment, error) {
		return t.next.Diarize(ctx, w, speakers)
	})
}

type labelScore struct {
	label string
	score float64
}

type timeoutRoleClassifier struct {
	next RoleClassifier
	d    time.Duration
}

func (t timeoutRoleClassifier) ClassifyRole(ctx context.Context, text string) (string, float64, error) {
	ls, err := bounded(ctx, t.d, "role classification", func(ctx context.Context) (labelScore, error) {
		l, s, err := t.next.ClassifyRole(ctx, text)
		return labelScore{l, s}, err
	})
	return ls.label, ls.score, err
}

type timeoutFraudClassifier struct {
	next FraudClassifier
	d    time.Duration
}

func (t timeoutFraudClassifier) ClassifyFraud(ctx context.Context, text string) (string, float64, error) {
	ls, err := bounded(ctx, t.d, "fraud classification", func(ctx context.Context) (labelScore, error) {
		l, s, err := t.next.ClassifyFraud(ctx, text)
		return labelScore{l, s}, err
	})
	return ls.label, ls.score, err
}

type timeoutExplainer struct {
	next Explainer
	d    time.Duration
}

func (t timeoutExplainer) Explain(ctx context.Context, text string) (string, error) {
	return bounded(ctx, t.d, "explain", func(ctx context.Context) (string, error) {
		return t.next.Explain(ctx, text)
	})
}

func (t timeoutExplainer) ExplainWarning(ctx context.Context, scamMessages []string) (string, error) {
	return bounded(ctx, t.d, "warning", func(ctx context.Context) (string, error) {
		return t.next.ExplainWarning(ctx, scamMessages)
	})
}
