// Package sheets implements a Writer that appends bookings to Google Sheets.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/trackmanager/pkg/api"
	"github.com/ArionMiles/trackmanager/pkg/writer/buffered"
)

// Default configuration values for buffered writes.
const (
	DefaultBatchSize     = 10
	DefaultFlushInterval = 30 * time.Second
	DefaultRetryDelay    = 60 * time.Second
)

// Header is written to the first row of a new spreadsheet.
var Header = []any{"Booking ID", "Date", "Account", "Main Category", "Sub Category", "Description", "Frequency", "Type", "Value"}

// Writer appends bookings to a Google Sheet with buffered batching.
type Writer struct {
	client        *sheets.Service
	spreadsheetID string
	sheetName     string
	retryDelay    time.Duration
	logger        *slog.Logger
	buffered      *buffered.Writer
}

// Config holds configuration for the Sheets writer.
type Config struct {
	// SheetTitle is the title for a new spreadsheet (if SheetID is empty).
	SheetTitle string
	// SheetID is the ID of an existing spreadsheet to use.
	SheetID string
	// SheetName is the name of the sheet within the spreadsheet.
	SheetName string
	// BatchSize is the number of bookings to buffer before writing.
	BatchSize int
	// FlushInterval is the interval between automatic flushes.
	FlushInterval time.Duration
	// RetryDelay is the wait after a rate-limited append.
	RetryDelay time.Duration
	// Endpoint overrides the Sheets API base URL.
	Endpoint string
}

// New creates a new Sheets writer. httpClient must carry the OAuth token.
func New(ctx context.Context, httpClient *http.Client, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Bookings"
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	w := &Writer{
		client:     client,
		sheetName:  cfg.SheetName,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}

	if err := w.initSpreadsheet(ctx, cfg); err != nil {
		return nil, fmt.Errorf("initializing spreadsheet: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	w.buffered = buffered.New(
		w.flushBatch,
		buffered.Config{
			BatchSize:     batchSize,
			FlushInterval: flushInterval,
		},
		logger.With("component", "sheets_buffer"),
	)

	logger.Info("sheets writer initialized",
		"spreadsheet_id", w.spreadsheetID,
		"sheet", cfg.SheetName,
		"batch_size", batchSize,
	)

	return w, nil
}

func (w *Writer) initSpreadsheet(ctx context.Context, cfg Config) error {
	if cfg.SheetID != "" {
		spreadsheet, err := w.client.Spreadsheets.Get(cfg.SheetID).Context(ctx).Do()
		if err == nil {
			w.logger.Info("using existing spreadsheet", "title", spreadsheet.Properties.Title, "id", cfg.SheetID)
			w.spreadsheetID = spreadsheet.SpreadsheetId
			return nil
		}
		w.logger.Warn("failed to get spreadsheet, will create new one", "id", cfg.SheetID, "error", err)
	}

	spreadsheet, err := w.client.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: cfg.SheetTitle},
		Sheets: []*sheets.Sheet{
			{Properties: &sheets.SheetProperties{Title: cfg.SheetName}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("creating spreadsheet: %w", err)
	}
	w.spreadsheetID = spreadsheet.SpreadsheetId

	w.logger.Info("created new spreadsheet", "title", cfg.SheetTitle, "id", w.spreadsheetID)

	headerRange := fmt.Sprintf("%s!A1:I1", w.sheetName)
	_, err = w.client.Spreadsheets.Values.Update(w.spreadsheetID, headerRange, &sheets.ValueRange{
		Values: [][]any{Header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing headers: %w", err)
	}
	return nil
}

// Write consumes bookings from the input channel and appends them to the sheet.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Booking) error {
	w.logger.Info("sheets writer started")
	return w.buffered.Write(ctx, in)
}

// Row converts a booking to a sheet row in Header order.
func Row(b *api.Booking) []any {
	var id any = ""
	if b.ID != 0 {
		id = b.ID
	}
	return []any{
		id,
		b.Date,
		b.AccountID,
		b.MainCategoryID,
		b.SubCategoryID,
		b.Description,
		b.Frequency,
		b.Type,
		b.Value,
	}
}

// flushBatch appends a batch in a single API call. Rate-limited calls are retried.
func (w *Writer) flushBatch(ctx context.Context, bookings []*api.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	values := make([][]any, 0, len(bookings))
	for _, b := range bookings {
		values = append(values, Row(b))
	}
	writeRange := fmt.Sprintf("%s!A2:I2", w.sheetName)
	req := sheets.ValueRange{Values: values}

	err := retry.Do(
		func() error {
			_, err := w.client.Spreadsheets.Values.Append(w.spreadsheetID, writeRange, &req).
				ValueInputOption("USER_ENTERED").
				InsertDataOption("INSERT_ROWS").
				Context(ctx).
				Do()
			return err
		},
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				w.logger.Warn("rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(3),
		retry.Delay(w.retryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("appending batch to sheet: %w", err)
	}

	w.logger.Info("wrote booking batch", "count", len(bookings))
	return nil
}

// SpreadsheetID returns the ID of the spreadsheet being written to.
func (w *Writer) SpreadsheetID() string {
	return w.spreadsheetID
}

// BufferLen returns the current number of buffered bookings.
func (w *Writer) BufferLen() int {
	if w.buffered == nil {
		return 0
	}
	return w.buffered.BufferLen()
}
