// Package export fetches bookings from the API and streams them into a sink.
package export

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ArionMiles/trackmanager/pkg/api"
)

// BookingSource is the part of the webservice the exporter needs.
type BookingSource interface {
	GetBookings(ctx context.Context, loadingText string, accountIDs []int, startDate, endDate string, onSuccess api.SuccessFunc) <-chan api.Result
}

// Request selects the bookings to export.
type Request struct {
	LoadingText string
	AccountIDs  []int
	StartDate   string
	EndDate     string
}

// Exporter copies bookings from the API into a writer.
type Exporter struct {
	source BookingSource
	logger *slog.Logger
}

// New creates an exporter reading from source.
func New(source BookingSource, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{source: source, logger: logger.With("component", "export")}
}

// Fetch loads and decodes the requested bookings.
func (e *Exporter) Fetch(ctx context.Context, req Request) ([]*api.Booking, error) {
	var res api.Result
	select {
	case res = <-e.source.GetBookings(ctx, req.LoadingText, req.AccountIDs, req.StartDate, req.EndDate, nil):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if !res.OK() {
		return nil, fmt.Errorf("fetching bookings: %w", res.Err)
	}

	bookings, err := DecodeBookings(res.Payload)
	if err != nil {
		return nil, fmt.Errorf("decoding bookings: %w", err)
	}
	e.logger.Info("fetched bookings",
		"count", len(bookings),
		"accounts", req.AccountIDs,
		"start", req.StartDate,
		"end", req.EndDate,
	)
	return bookings, nil
}

// WriterFunc opens the destination of an export.
type WriterFunc func(ctx context.Context) (api.Writer, error)

// Export fetches the requested bookings and only then opens the sink, so a
// failed fetch leaves no file, pool or spreadsheet behind. It returns the
// number of bookings handed to the writer.
func (e *Exporter) Export(ctx context.Context, req Request, open WriterFunc) (int, error) {
	bookings, err := e.Fetch(ctx, req)
	if err != nil {
		return 0, err
	}
	w, err := open(ctx)
	if err != nil {
		return 0, err
	}
	return e.Write(ctx, bookings, w)
}

// Run fetches the requested bookings and writes them to an already open w.
func (e *Exporter) Run(ctx context.Context, req Request, w api.Writer) (int, error) {
	bookings, err := e.Fetch(ctx, req)
	if err != nil {
		return 0, err
	}
	return e.Write(ctx, bookings, w)
}

// Write streams bookings into w and returns how many were handed over.
func (e *Exporter) Write(ctx context.Context, bookings []*api.Booking, w api.Writer) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	ch := make(chan *api.Booking, 100)
	sent := 0

	g.Go(func() error {
		defer close(ch)
		for _, b := range bookings {
			select {
			case ch <- b:
				sent++
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		if err := w.Write(gctx, ch); err != nil {
			return fmt.Errorf("writing bookings: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return sent, err
	}
	e.logger.Info("export finished", "count", sent)
	return sent, nil
}
