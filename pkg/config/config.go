// Package config loads the trackmanager configuration from a JSON file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ArionMiles/trackmanager/pkg/webservice"
)

// Export sinks.
const (
	SinkJSON     = "json"
	SinkCSV      = "csv"
	SinkPostgres = "postgres"
	SinkSheets   = "sheets"
)

// Config holds the application configuration.
type Config struct {
	// APIHost is the host serving the <action>.php scripts.
	// Environment variable: TRACK_API_HOST
	APIHost string `koanf:"TRACK_API_HOST"`

	// APIScheme is "http" or "https".
	// Environment variable: TRACK_API_SCHEME
	APIScheme string `koanf:"TRACK_API_SCHEME"`

	// HTTPTimeout bounds a single API request, e.g. "30s". Zero disables it.
	// Environment variable: TRACK_HTTP_TIMEOUT
	HTTPTimeout time.Duration `koanf:"TRACK_HTTP_TIMEOUT"`

	// SessionID is a PHP session id to send with every request.
	// Environment variable: TRACK_SESSION_ID
	SessionID string `koanf:"TRACK_SESSION_ID"`

	// SessionFile holds a persisted session id, used when SessionID is empty.
	// Environment variable: TRACK_SESSION_FILE
	SessionFile string `koanf:"TRACK_SESSION_FILE"`

	// Locale selects the language of indicator and dialog texts.
	// Environment variable: TRACK_LOCALE
	Locale string `koanf:"TRACK_LOCALE"`

	// LogLevel is DEBUG, INFO, WARN or ERROR.
	// Environment variable: TRACK_LOG_LEVEL
	LogLevel string `koanf:"TRACK_LOG_LEVEL"`

	Export   ExportConfig   `koanf:",squash"`
	Sheets   SheetsConfig   `koanf:",squash"`
	Postgres PostgresConfig `koanf:",squash"`
}

// ExportConfig selects where exported bookings are written.
type ExportConfig struct {
	// Sink is one of json, csv, postgres, sheets.
	Sink string `koanf:"TRACK_EXPORT_SINK"`
	// Path is the output file of the json and csv sinks.
	Path string `koanf:"TRACK_EXPORT_PATH"`
	// BatchSize is the number of bookings buffered before a write.
	BatchSize int `koanf:"TRACK_EXPORT_BATCH_SIZE"`
}

// SheetsConfig configures the Google Sheets sink.
type SheetsConfig struct {
	// Title is the title for a new spreadsheet (used when creating).
	Title string `koanf:"GSHEETS_TITLE"`
	// ID is the ID of an existing spreadsheet.
	ID string `koanf:"GSHEETS_ID"`
	// Name is the sheet/tab within the spreadsheet.
	Name string `koanf:"GSHEETS_NAME"`
	// ClientSecretFile is the Google OAuth client credentials file.
	ClientSecretFile string `koanf:"GOOGLE_CLIENT_SECRET_FILE"`
	// TokenFile stores the OAuth token obtained by "trackmanager setup".
	TokenFile string `koanf:"GOOGLE_TOKEN_FILE"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string `koanf:"POSTGRES_HOST"`
	Port     int    `koanf:"POSTGRES_PORT"`
	Database string `koanf:"POSTGRES_DB"`
	User     string `koanf:"POSTGRES_USER"`
	Password string `koanf:"POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE"`
}

// Default returns the configuration used for keys that are not set.
func Default() Config {
	return Config{
		APIHost:     webservice.DefaultHost,
		APIScheme:   "http",
		HTTPTimeout: 30 * time.Second,
		SessionFile: "data/session",
		Locale:      "en",
		LogLevel:    "INFO",
		Export: ExportConfig{
			Sink:      SinkJSON,
			Path:      "bookings.json",
			BatchSize: 50,
		},
		Sheets: SheetsConfig{
			Name:             "Bookings",
			ClientSecretFile: "data/client_secret.json",
			TokenFile:        "data/token.json",
		},
		Postgres: PostgresConfig{
			Port:    5432,
			SSLMode: "disable",
		},
	}
}

// Load reads configFile (optional, JSON), then .env in the working directory
// (optional), then the environment. A missing file is not an error.
func Load(configFile string) (*Config, error) {
	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), kjson.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("loading config file %s: %w", configFile, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	if c.APIHost == "" {
		problems = append(problems, "TRACK_API_HOST must not be empty")
	}
	if c.APIScheme != "http" && c.APIScheme != "https" {
		problems = append(problems, fmt.Sprintf("invalid TRACK_API_SCHEME %q: must be http or https", c.APIScheme))
	}
	if c.HTTPTimeout < 0 {
		problems = append(problems, fmt.Sprintf("invalid TRACK_HTTP_TIMEOUT %v: must not be negative", c.HTTPTimeout))
	}
	if c.Export.BatchSize < 1 {
		problems = append(problems, fmt.Sprintf("invalid TRACK_EXPORT_BATCH_SIZE %d: must be at least 1", c.Export.BatchSize))
	}

	switch c.Export.Sink {
	case SinkJSON, SinkCSV:
		if c.Export.Path == "" {
			problems = append(problems, "TRACK_EXPORT_PATH is required for file sinks")
		}
	case SinkPostgres:
		if c.Postgres.Host == "" {
			problems = append(problems, "POSTGRES_HOST is required for the postgres sink")
		}
		if c.Postgres.Database == "" {
			problems = append(problems, "POSTGRES_DB is required for the postgres sink")
		}
	case SinkSheets:
		if c.Sheets.Name == "" {
			problems = append(problems, "GSHEETS_NAME is required for the sheets sink")
		}
		if c.Sheets.ID == "" && c.Sheets.Title == "" {
			problems = append(problems, "either GSHEETS_ID or GSHEETS_TITLE is required for the sheets sink")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid TRACK_EXPORT_SINK %q: must be one of json, csv, postgres, sheets", c.Export.Sink))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// SessionFileExists reports whether the configured session file is present.
func (c *Config) SessionFileExists() bool {
	if c.SessionFile == "" {
		return false
	}
	_, err := os.Stat(c.SessionFile)
	return err == nil
}
