// Package buffered provides a buffered writer base for batch writes.
package buffered

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ArionMiles/trackmanager/pkg/api"
)

// DefaultBatchSize is the default number of bookings to buffer before flushing.
const DefaultBatchSize = 10

// DefaultFlushInterval is the default interval between automatic flushes.
const DefaultFlushInterval = 30 * time.Second

// Flusher is called with the buffered bookings when the buffer is flushed.
type Flusher func(ctx context.Context, bookings []*api.Booking) error

// Config holds configuration for buffered writing.
type Config struct {
	// BatchSize is the number of bookings to buffer before flushing.
	// Defaults to DefaultBatchSize.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	// Defaults to DefaultFlushInterval.
	FlushInterval time.Duration
}

// Writer buffers bookings and flushes them in batches.
type Writer struct {
	mu      sync.Mutex
	buffer  []*api.Booking
	flusher Flusher
	config  Config
	logger  *slog.Logger
	flushed int
}

// New creates a new buffered writer with the given flusher function.
func New(flusher Flusher, cfg Config, logger *slog.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		buffer:  make([]*api.Booking, 0, cfg.BatchSize),
		flusher: flusher,
		config:  cfg,
		logger:  logger,
	}
}

// Write buffers bookings from in until it is closed or ctx is done. The
// remaining buffer is flushed in both cases. A failed flush stops the writer.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Booking) error {
	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	w.logger.Debug("buffered writer started",
		"batch_size", w.config.BatchSize,
		"flush_interval", w.config.FlushInterval,
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("buffered writer stopping, flushing remaining buffer")
			// The caller's context is gone; give the last flush its own.
			if err := w.flush(context.WithoutCancel(ctx)); err != nil {
				w.logger.Error("failed to flush on shutdown", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := w.flush(ctx); err != nil {
				return err
			}
		case booking, ok := <-in:
			if !ok {
				return w.flush(ctx)
			}
			if w.add(booking) {
				if err := w.flush(ctx); err != nil {
					return err
				}
			}
		}
	}
}

// add appends b and reports whether the batch is full.
func (w *Writer) add(b *api.Booking) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, b)
	return len(w.buffer) >= w.config.BatchSize
}

// flush hands all buffered bookings to the flusher.
func (w *Writer) flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := make([]*api.Booking, len(w.buffer))
	copy(batch, w.buffer)
	w.buffer = w.buffer[:0]
	w.mu.Unlock()

	if err := w.flusher(ctx, batch); err != nil {
		return err
	}

	w.mu.Lock()
	w.flushed += len(batch)
	w.mu.Unlock()

	w.logger.Debug("flushed bookings", "count", len(batch))
	return nil
}

// BufferLen returns the current number of buffered bookings.
func (w *Writer) BufferLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Flushed returns the number of bookings handed to the flusher successfully.
func (w *Writer) Flushed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushed
}
