package journal

import (
	"context"
	"errors"
	"sync"

	"mytradingsignal/internal/interfaces"
	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/metrics"
	"mytradingsignal/internal/types"
)

// ErrQueueFull is returned by Writer.Record when the backlog is at capacity.
var ErrQueueFull = errors.New("journal queue full")

// Writer hands outlooks to a recorder from a single background goroutine.
// Record never blocks; entries that do not fit in the queue are dropped.
type Writer struct {
	rec   interfaces.OutlookRecorder
	queue chan job
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

type job struct {
	outlook types.Outlook
	flushed chan struct{}
}

var _ interfaces.OutlookRecorder = (*Writer)(nil)

func NewWriter(rec interfaces.OutlookRecorder, size int) *Writer {
	if size <= 0 {
		size = 256
	}
	w := &Writer{
		rec:   rec,
		queue: make(chan job, size),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.done)
	for j := range w.queue {
		if j.flushed != nil {
			close(j.flushed)
			continue
		}
		if err := w.rec.Record(context.Background(), j.outlook); err != nil {
			logger.Warn(context.Background(), "Failed to journal outlook", "symbol", j.outlook.Symbol, "error", err)
		}
	}
}

// Record queues o. After Close it is a no-op.
func (w *Writer) Record(ctx context.Context, o types.Outlook) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return nil
	}
	select {
	case w.queue <- job{outlook: o}:
		return nil
	default:
		metrics.JournalDropped.Inc()
		return ErrQueueFull
	}
}

// Flush waits until everything queued before the call has been written.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return nil
	}
	flushed := make(chan struct{})
	select {
	case w.queue <- job{flushed: flushed}:
		w.mu.RUnlock()
	case <-ctx.Done():
		w.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes the remaining backlog and stops the goroutine.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	<-w.done
}
