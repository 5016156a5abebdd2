package provider

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ent0n29/scamguard/internal/audio"
)

// NewFailoverTranscriber prefers primary and switches to fallback when a
// primary call fails. Once fallback succeeds it stays active until it fails;
// then primary is retried.
func NewFailoverTranscriber(primary, fallback Transcriber) Transcriber {
	return &failoverTranscriber{primary: primary, fallback: fallback}
}

type failoverTranscriber struct {
	fallbackActive atomic.Bool
	primary        Transcriber
	fallback       Transcriber
}

func (p *failoverTranscriber) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if p.fallbackActive.Load() {
		text, fbErr := p.fallback.Transcribe(ctx, clip)
		if fbErr == nil {
			return text, nil
		}
		// Fallback failed after being active; try primary again.
		text, prErr := p.primary.Transcribe(ctx, clip)
		if prErr == nil {
			p.fallbackActive.Store(false)
			return text, nil
		}
		return "", fmt.Errorf("asr fallback failed: %v; asr primary failed: %w", fbErr, prErr)
	}

	text, prErr := p.primary.Transcribe(ctx, clip)
	if prErr == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", prErr
	}
	text, fbErr := p.fallback.Transcribe(ctx, clip)
	if fbErr != nil {
		return "", fmt.Errorf("asr primary failed: %v; asr fallback failed: %w", prErr, fbErr)
	}
	p.fallbackActive.Store(true)
	return text, nil
}
