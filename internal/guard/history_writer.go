package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/ent0n29/scamguard/internal/history"
	"github.com/ent0n29/scamguard/internal/observability"
)

const (
	historyQueueSize   = 64
	historySaveTimeout = 2 * time.Second
)

// detectionWriter saves one session's detections in emission order on its
// own goroutine. Each save gets a detached deadline so a client disconnect
// does not drop the record.
type detectionWriter struct {
	store   history.Store
	metrics *observability.Metrics
	logger  *slog.Logger

	queue chan history.Detection
	done  chan struct{}
}

// newDetectionWriter returns nil when there is no store; a nil writer
// accepts and discards everything.
func newDetectionWriter(store history.Store, metrics *observability.Metrics, logger *slog.Logger) *detectionWriter {
	if store == nil {
		return nil
	}
	w := &detectionWriter{
		store:   store,
		metrics: metrics,
		logger:  logger,
		queue:   make(chan history.Detection, historyQueueSize),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *detectionWriter) loop() {
	defer close(w.done)
	for d := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), historySaveTimeout)
		err := w.store.SaveDetection(ctx, d)
		cancel()
		if err != nil {
			w.metrics.ObserveSessionEvent("history_save_failed")
			w.logger.Warn("detection not persisted", "index", d.Index, "warning", d.IsWarning, "error", err)
		}
	}
}

// Enqueue blocks only when historyQueueSize saves are already pending.
func (w *detectionWriter) Enqueue(d history.Detection) {
	if w == nil {
		return
	}
	w.queue <- d
}

// Close stops accepting detections and waits for the pending ones.
func (w *detectionWriter) Close() {
	if w == nil {
		return
	}
	close(w.queue)
	<-w.done
}
