// Package json implements a Writer that writes bookings to a JSON file.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/ArionMiles/trackmanager/pkg/api"
	"github.com/ArionMiles/trackmanager/pkg/writer/buffered"
)

// Writer keeps the file as one JSON array. Bookings with an id replace an
// earlier entry with the same id.
type Writer struct {
	filePath string
	bookings []*api.Booking
	mu       sync.Mutex
	buffered *buffered.Writer
	logger   *slog.Logger
}

// Config holds configuration for the JSON writer.
type Config struct {
	// FilePath is the path to the JSON output file.
	FilePath string
	// BatchSize is the number of bookings to buffer before writing.
	BatchSize int
}

// New creates a new JSON writer, loading bookings already in the file.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("json writer: file path is required")
	}

	w := &Writer{
		filePath: cfg.FilePath,
		logger:   logger,
	}

	if err := w.loadExisting(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", cfg.FilePath, err)
	}

	w.buffered = buffered.New(w.flushBatch, buffered.Config{BatchSize: cfg.BatchSize}, logger.With("component", "json_buffer"))

	logger.Info("json writer initialized", "file", cfg.FilePath, "existing_count", len(w.bookings))
	return w, nil
}

func (w *Writer) loadExisting() error {
	data, err := os.ReadFile(w.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, &w.bookings)
}

// Write consumes bookings from the input channel and writes them to JSON.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Booking) error {
	return w.buffered.Write(ctx, in)
}

func (w *Writer) flushBatch(_ context.Context, batch []*api.Booking) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	index := make(map[int]int, len(w.bookings))
	for i, b := range w.bookings {
		if b.ID != 0 {
			index[b.ID] = i
		}
	}
	for _, b := range batch {
		if i, ok := index[b.ID]; ok && b.ID != 0 {
			w.bookings[i] = b
			continue
		}
		w.bookings = append(w.bookings, b)
		if b.ID != 0 {
			index[b.ID] = len(w.bookings) - 1
		}
	}
	sort.SliceStable(w.bookings, func(i, j int) bool {
		return w.bookings[i].Date < w.bookings[j].Date
	})

	// JSON has no append; rewrite the whole array.
	data, err := json.MarshalIndent(w.bookings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}
	if err := os.WriteFile(w.filePath, data, 0o600); err != nil {
		return fmt.Errorf("writing json file: %w", err)
	}

	w.logger.Debug("wrote bookings to json",
		"batch_count", len(batch),
		"total_count", len(w.bookings),
	)
	return nil
}

// BookingCount returns the number of bookings in the file.
func (w *Writer) BookingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bookings)
}
