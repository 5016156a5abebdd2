package provider

import (
	"context"
	"errors"

	"github.com/ent0n29/scamguard/internal/audio"
	"github.com/ent0n29/scamguard/internal/detect"
	"github.com/ent0n29/scamguard/internal/diarization"
)

// Transcriber turns a short speech clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}

// Diarizer splits a recording into speaker turns.
type Diarizer = diarization.Diarizer

// RoleClassifier labels dialogue as spoken by the CALLER or the RECEIVER.
type RoleClassifier = detect.RoleClassifier

// FraudClassifier scores how strongly text reads as a scam attempt.
type FraudClassifier interface {
	ClassifyFraud(ctx context.Context, text string) (label string, score float64, err error)
}

// Explainer writes human-readable explanations and warnings.
type Explainer interface {
	Explain(ctx context.Context, text string) (string, error)
	ExplainWarning(ctx context.Context, scamMessages []string) (string, error)
}

// Set is the process-wide capability holder shared read-only by all sessions.
type Set struct {
	Transcriber     Transcriber
	Diarizer        Diarizer
	RoleClassifier  RoleClassifier
	FraudClassifier FraudClassifier
	Explainer       Explainer

	// Names records which backend serves each capability, for logs and /readyz.
	Names map[string]string

	closers []func() error
}

func (s *Set) AddCloser(fn func() error) {
	if fn != nil {
		s.closers = append(s.closers, fn)
	}
}

// Validate reports missing capabilities.
func (s *Set) Validate() error {
	var errs []error
	if s.Transcriber == nil {
		errs = append(errs, errors.New("transcriber is not configured"))
	}
	if s.Diarizer == nil {
		errs = append(errs, errors.New("diarizer is not configured"))
	}
	if s.RoleClassifier == nil {
		errs = append(errs, errors.New("role classifier is not configured"))
	}
	if s.FraudClassifier == nil {
		errs = append(errs, errors.New("fraud classifier is not configured"))
	}
	if s.Explainer == nil {
		errs = append(errs, errors.New("explainer is not configured"))
	}
	return errors.Join(errs...)
}

func (s *Set) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
