package diarization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ent0n29/scamguard/internal/audio"
	"github.com/ent0n29/scamguard/internal/detect"
	"github.com/ent0n29/scamguard/internal/reliability"
)

// DefaultSpeakers is the speaker-count hint passed to the diarizer. Calls
// are modeled as two-party conversations.
const DefaultSpeakers = 2

var ErrNoSegments = errors.New("diarization returned no segments")

// Source resolves audio ids to decoded recordings.
type Source interface {
	Key(audioID string) (string, error)
	Load(audioID string) (*audio.Waveform, error)
}

// Diarizer splits a recording into speaker turns.
type Diarizer interface {
	Diarize(ctx context.Context, w *audio.Waveform, speakers int) ([]detect.Segment, error)
}

// Cache memoizes diarization per audio id. Concurrent first requests for the
// same id share a single diarizer run. Failed or empty runs are not stored.
type Cache struct {
	source   Source
	diarizer Diarizer
	speakers int
	logger   *slog.Logger

	mu      sync.RWMutex
	entries map[string][]detect.Segment
	group   singleflight.Group
}

func NewCache(source Source, diarizer Diarizer, speakers int, logger *slog.Logger) *Cache {
	if speakers <= 0 {
		speakers = DefaultSpeakers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		source:   source,
		diarizer: diarizer,
		speakers: speakers,
		logger:   logger,
		entries:  make(map[string][]detect.Segment),
	}
}

// GetOrCompute returns the segments for audioID sorted by start time,
// diarizing on first use. The returned slice is a copy owned by the caller.
func (c *Cache) GetOrCompute(ctx context.Context, audioID string) ([]detect.Segment, error) {
	key, err := c.source.Key(audioID)
	if err != nil {
		return nil, reliability.Wrap(err, reliability.KindAudioNotFound)
	}
	if segs, ok := c.lookup(key); ok {
		return segs, nil
	}

	// The shared run outlives any single waiter so a disconnecting client
	// does not fail the others.
	runCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if segs, ok := c.lookup(key); ok {
			return segs, nil
		}
		return c.compute(runCtx, key, audioID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]detect.Segment)), nil
	}
}

// Warm diarizes each id eagerly. Failures are logged and returned joined.
func (c *Cache) Warm(ctx context.Context, audioIDs ...string) error {
	var errs []error
	for _, id := range audioIDs {
		segs, err := c.GetOrCompute(ctx, id)
		if err != nil {
			c.logger.Warn("diarization warmup failed", "audio", id, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		c.logger.Info("diarization warmed", "audio", id, "segments", len(segs))
	}
	return errors.Join(errs...)
}

// Cached reports whether audioID already has stored segments.
func (c *Cache) Cached(audioID string) bool {
	key, err := c.source.Key(audioID)
	if err != nil {
		return false
	}
	_, ok := c.lookup(key)
	return ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(key string) ([]detect.Segment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	segs, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(segs), true
}

func (c *Cache) compute(ctx context.Context, key, audioID string) ([]detect.Segment, error) {
	w, err := c.source.Load(audioID)
	if err != nil {
		kind := reliability.KindAudioUnreadable
		if errors.Is(err, os.ErrNotExist) {
			kind = reliability.KindAudioNotFound
		}
		return nil, reliability.Wrap(fmt.Errorf("load audio %q: %w", key, err), kind)
	}

	started := time.Now()
	segs, err := c.diarizer.Diarize(ctx, w, c.speakers)
	if err != nil {
		return nil, reliability.Wrap(fmt.Errorf("diarize %q: %w", key, err), reliability.KindCapabilityUnavailable)
	}
	if len(segs) == 0 {
		return nil, reliability.Wrap(fmt.Errorf("%w for %q", ErrNoSegments, key), reliability.KindMalformedCapabilityOutput)
	}

	stored := slices.Clone(segs)
	detect.SortSegments(stored)

	c.mu.Lock()
	c.entries[key] = stored
	c.mu.Unlock()

	c.logger.Info("diarization complete",
		"audio", key,
		"segments", len(stored),
		"speakers", len(detect.Speakers(stored)),
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return stored, nil
}
