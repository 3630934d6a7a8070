// Package postgres provides a PostgreSQL writer for exported bookings.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArionMiles/trackmanager/pkg/api"
	"github.com/ArionMiles/trackmanager/pkg/writer/buffered"
)

//go:embed 001_create_bookings.sql
var migrationSQL string

const upsertBooking = `
	INSERT INTO bookings (
		booking_id, account_id, main_category_id, sub_category_id,
		booking_date, description, frequency, booking_type, value
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (booking_id) DO UPDATE SET
		account_id = EXCLUDED.account_id,
		main_category_id = EXCLUDED.main_category_id,
		sub_category_id = EXCLUDED.sub_category_id,
		booking_date = EXCLUDED.booking_date,
		description = EXCLUDED.description,
		frequency = EXCLUDED.frequency,
		booking_type = EXCLUDED.booking_type,
		value = EXCLUDED.value,
		updated_at = NOW()
`

// Config holds the PostgreSQL writer configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// BatchSize is the number of bookings written per transaction.
	BatchSize int
	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
	// RetryAttempts bounds how often a batch is tried when the failure is
	// transient. Defaults to 3.
	RetryAttempts uint
	// RetryDelay is the initial delay between attempts. Defaults to 500ms.
	RetryDelay time.Duration
}

func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 50
	}
	if c.MaxPoolSize == 0 {
		c.MaxPoolSize = 4
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
}

// ConnString returns the keyword/value connection string for c.
func (c Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Writer upserts bookings into PostgreSQL.
type Writer struct {
	pool     *pgxpool.Pool
	cfg      Config
	logger   *slog.Logger
	buffered *buffered.Writer
}

// New connects to the database and runs the migration.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.setDefaults()

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
	)

	w := &Writer{
		pool:   pool,
		cfg:    cfg,
		logger: logger,
	}

	if _, err := pool.Exec(ctx, migrationSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migration: %w", err)
	}

	// Batches are bounded by size; the interval only matters for slow producers.
	w.buffered = buffered.New(w.flushBatch, buffered.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: 5 * time.Second,
	}, logger.With("component", "postgres_buffer"))

	return w, nil
}

// Write consumes bookings from the channel and writes them to PostgreSQL.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Booking) error {
	return w.buffered.Write(ctx, in)
}

// flushBatch writes one batch, retrying while the failure is transient.
func (w *Writer) flushBatch(ctx context.Context, batch []*api.Booking) error {
	err := retry.Do(
		func() error { return w.writeBatch(ctx, batch) },
		retry.RetryIf(func(err error) bool {
			if IsTransient(err) {
				w.logger.Warn("transient database error, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(w.cfg.RetryAttempts),
		retry.Delay(w.cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("writing booking batch: %w", err)
	}

	w.logger.Info("wrote booking batch", "count", len(batch))
	return nil
}

// writeBatch upserts the batch in a single transaction.
func (w *Writer) writeBatch(ctx context.Context, bookings []*api.Booking) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	for _, b := range bookings {
		batch.Queue(upsertBooking, Args(b)...)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range bookings {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upserting booking %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Args returns the upsert arguments for b. Bookings without an id get a NULL
// booking_id and are always inserted.
func Args(b *api.Booking) []any {
	var id *int64
	if b.ID != 0 {
		v := int64(b.ID)
		id = &v
	}
	return []any{
		id,
		b.AccountID,
		b.MainCategoryID,
		b.SubCategoryID,
		b.Date,
		b.Description,
		b.Frequency,
		b.Type,
		b.Value,
	}
}

// IsTransient reports whether err is worth retrying: connection failures
// that happened before anything was sent, and timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// Close closes the database connection pool.
func (w *Writer) Close() {
	if w.pool != nil {
		w.pool.Close()
		w.logger.Info("closed PostgreSQL connection pool")
	}
}
