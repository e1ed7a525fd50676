package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/studyhub/internal/player/progress"
)

// AsyncWriter decorates a RemoteWriter so Submit never blocks the tick
// stream. A single worker drains the queue, which keeps writes for one
// module applied in the order they were issued. When the queue is full the
// sample is dropped with a log: the next periodic write supersedes it.
type AsyncWriter struct {
	inner RemoteWriter
	log   *zap.Logger

	ch        chan progress.Sample
	done      chan struct{}
	closeOnce sync.Once
}

func NewAsyncWriter(inner RemoteWriter, log *zap.Logger, buffer int) *AsyncWriter {
	if log == nil {
		log = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 16
	}
	w := &AsyncWriter{
		inner: inner,
		log:   log,
		ch:    make(chan progress.Sample, buffer),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *AsyncWriter) run() {
	defer close(w.done)
	for s := range w.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.inner.Submit(ctx, s); err != nil {
			w.log.Warn("progress: async remote write failed",
				zap.Int("module_index", s.ModuleIndex), zap.Error(err))
		}
		cancel()
	}
}

func (w *AsyncWriter) Submit(_ context.Context, s progress.Sample) error {
	select {
	case w.ch <- s:
	default:
		w.log.Warn("progress: write queue full, sample dropped",
			zap.Int("module_index", s.ModuleIndex))
	}
	return nil
}

// Close drains queued samples and waits for the worker, the best-effort
// final flush when the player navigates away.
func (w *AsyncWriter) Close() {
	w.closeOnce.Do(func() { close(w.ch) })
	<-w.done
}
