package export

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/trackmanager/pkg/api"
	"github.com/ArionMiles/trackmanager/pkg/config"
	csvwriter "github.com/ArionMiles/trackmanager/pkg/writer/csv"
	jsonwriter "github.com/ArionMiles/trackmanager/pkg/writer/json"
	"github.com/ArionMiles/trackmanager/pkg/writer/postgres"
	"github.com/ArionMiles/trackmanager/pkg/writer/sheets"
)

// OpenFunc creates a writer for a sink. httpClient is only set for sinks
// that declare scopes.
type OpenFunc func(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (api.Writer, error)

// Sink describes an export destination.
type Sink struct {
	Name        string
	Description string
	// Scopes are the OAuth scopes the sink needs, if any.
	Scopes []string
	Open   OpenFunc
}

// Registry holds the available sinks by name.
type Registry struct {
	sinks map[string]Sink
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sinks: make(map[string]Sink)}
}

// DefaultRegistry returns a registry with the json, csv, postgres and sheets sinks.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []Sink{
		{Name: config.SinkJSON, Description: "Write bookings to a JSON file", Open: openJSON},
		{Name: config.SinkCSV, Description: "Append bookings to a CSV file", Open: openCSV},
		{Name: config.SinkPostgres, Description: "Upsert bookings into PostgreSQL", Open: openPostgres},
		{Name: config.SinkSheets, Description: "Append bookings to Google Sheets", Scopes: []string{sheetsapi.SpreadsheetsScope}, Open: openSheets},
	} {
		// Names are distinct.
		_ = r.Register(s)
	}
	return r
}

// Register adds a sink. Registering a name twice is an error.
func (r *Registry) Register(s Sink) error {
	if _, exists := r.sinks[s.Name]; exists {
		return fmt.Errorf("sink %q already registered", s.Name)
	}
	r.sinks[s.Name] = s
	return nil
}

// Get returns a sink by name.
func (r *Registry) Get(name string) (Sink, error) {
	s, ok := r.sinks[name]
	if !ok {
		return Sink{}, fmt.Errorf("sink %q not found", name)
	}
	return s, nil
}

// List returns all sinks sorted by name.
func (r *Registry) List() []Sink {
	sinks := make([]Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		sinks = append(sinks, s)
	}
	sort.Slice(sinks, func(i, j int) bool { return sinks[i].Name < sinks[j].Name })
	return sinks
}

// Create opens the named sink.
func (r *Registry) Create(ctx context.Context, name string, cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (api.Writer, error) {
	s, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	w, err := s.Open(ctx, cfg, httpClient, logger.With("component", "sink", "sink", name))
	if err != nil {
		return nil, fmt.Errorf("opening %s sink: %w", name, err)
	}
	return w, nil
}

func openJSON(_ context.Context, cfg *config.Config, _ *http.Client, logger *slog.Logger) (api.Writer, error) {
	return jsonwriter.New(jsonwriter.Config{FilePath: cfg.Export.Path, BatchSize: cfg.Export.BatchSize}, logger)
}

func openCSV(_ context.Context, cfg *config.Config, _ *http.Client, logger *slog.Logger) (api.Writer, error) {
	return csvwriter.New(csvwriter.Config{FilePath: cfg.Export.Path, BatchSize: cfg.Export.BatchSize}, logger)
}

func openPostgres(ctx context.Context, cfg *config.Config, _ *http.Client, logger *slog.Logger) (api.Writer, error) {
	w, err := postgres.New(ctx, postgres.Config{
		Host:      cfg.Postgres.Host,
		Port:      cfg.Postgres.Port,
		Database:  cfg.Postgres.Database,
		User:      cfg.Postgres.User,
		Password:  cfg.Postgres.Password,
		SSLMode:   cfg.Postgres.SSLMode,
		BatchSize: cfg.Export.BatchSize,
	}, logger)
	if err != nil {
		return nil, err
	}
	return closeAfterWrite{w}, nil
}

func openSheets(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (api.Writer, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("sheets sink requires an authorized HTTP client")
	}
	return sheets.New(ctx, httpClient, sheets.Config{
		SheetTitle: cfg.Sheets.Title,
		SheetID:    cfg.Sheets.ID,
		SheetName:  cfg.Sheets.Name,
		BatchSize:  cfg.Export.BatchSize,
	}, logger)
}

// closeAfterWrite releases the pool once the export stream is drained.
type closeAfterWrite struct {
	w *postgres.Writer
}

func (c closeAfterWrite) Write(ctx context.Context, in <-chan *api.Booking) error {
	defer c.w.Close()
	return c.w.Write(ctx, in)
}
