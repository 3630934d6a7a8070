// Package csv implements a Writer that appends bookings to a CSV file.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/ArionMiles/trackmanager/pkg/api"
	"github.com/ArionMiles/trackmanager/pkg/writer/buffered"
)

// Header is the first row of a new file.
var Header = []string{"BookingID", "Date", "AccountID", "MainCategoryID", "SubCategoryID", "Description", "Frequency", "Type", "Value"}

// Writer writes bookings to a CSV file with buffered batching.
type Writer struct {
	filePath string
	file     *os.File
	writer   *csv.Writer
	mu       sync.Mutex
	buffered *buffered.Writer
	logger   *slog.Logger
}

// Config holds configuration for the CSV writer.
type Config struct {
	// FilePath is the path to the CSV output file.
	FilePath string
	// BatchSize is the number of bookings to buffer before writing.
	BatchSize int
}

// New opens (or creates) the CSV file. The header is written to empty files.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening csv file: %w", err)
	}

	w := &Writer{
		filePath: cfg.FilePath,
		file:     file,
		writer:   csv.NewWriter(file),
		logger:   logger,
	}

	stat, err := file.Stat()
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("stat csv file: %w (close error: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("stat csv file: %w", err)
	}
	if stat.Size() == 0 {
		if err := w.writeRows([][]string{Header}); err != nil {
			if closeErr := file.Close(); closeErr != nil {
				return nil, fmt.Errorf("writing header: %w (close error: %w)", err, closeErr)
			}
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	w.buffered = buffered.New(w.flushBatch, buffered.Config{BatchSize: cfg.BatchSize}, logger.With("component", "csv_buffer"))

	logger.Info("csv writer initialized", "file", cfg.FilePath)
	return w, nil
}

// Write consumes bookings until in is closed, then closes the file.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Booking) error {
	err := w.buffered.Write(ctx, in)
	if closeErr := w.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Record converts a booking to a CSV row in Header order.
func Record(b *api.Booking) []string {
	id := ""
	if b.ID != 0 {
		id = strconv.Itoa(b.ID)
	}
	return []string{
		id,
		b.Date,
		strconv.Itoa(b.AccountID),
		strconv.Itoa(b.MainCategoryID),
		strconv.Itoa(b.SubCategoryID),
		b.Description,
		strconv.Itoa(b.Frequency),
		strconv.Itoa(b.Type),
		strconv.FormatFloat(b.Value, 'f', 2, 64),
	}
}

func (w *Writer) flushBatch(_ context.Context, batch []*api.Booking) error {
	rows := make([][]string, 0, len(batch))
	for _, b := range batch {
		rows = append(rows, Record(b))
	}
	if err := w.writeRows(rows); err != nil {
		return err
	}
	w.logger.Debug("wrote bookings to csv", "count", len(batch))
	return nil
}

func (w *Writer) writeRows(rows [][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, row := range rows {
		if err := w.writer.Write(row); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// Close flushes and closes the CSV file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writer.Flush()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing csv file: %w", err)
	}

	w.logger.Info("csv writer closed", "file", w.filePath)
	return nil
}
