// Command trackmanager is a terminal client for the track personal-finance API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/agnivade/levenshtein"

	"github.com/ArionMiles/trackmanager/pkg/config"
	"github.com/ArionMiles/trackmanager/pkg/i18n"
	"github.com/ArionMiles/trackmanager/pkg/logging"
	"github.com/ArionMiles/trackmanager/pkg/session"
	"github.com/ArionMiles/trackmanager/pkg/ui"
	"github.com/ArionMiles/trackmanager/pkg/webservice"
)

const usage = `Usage: trackmanager [-config file] <command> [flags]

Commands:
  accounts            List the accounts of the current user
  bookings            List bookings of accounts in a date range
  add-booking         Create a booking
  set-booking         Create or update a booking
  categories          List categories of accounts
  admin-users         List admin users
  set-admin-user      Create or update an admin user
  delete-admin-user   Delete an admin user
  toggle-admin-user   Toggle the active state of an admin user
  export              Export bookings to the configured sink
  session             Save a PHPSESSID for later calls
  status              Check configuration, session and API connectivity
  setup               Authorize the Google Sheets sink

Run 'trackmanager <command> -h' for command flags.
`

// app carries what every command needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	text    *i18n.Bundle
	session *session.File
	svc     *webservice.Service
}

func main() {
	logger := logging.Setup(logging.DefaultConfig())

	flags := flag.NewFlagSet("trackmanager", flag.ExitOnError)
	configFile := flags.String("config", "config.json", "optional JSON config file")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = flags.Parse(os.Args[1:])

	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}
	cmd, args := flags.Arg(0), flags.Args()[1:]

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if level, err := logging.ParseLevel(cfg.LogLevel); err == nil {
		logCfg := logging.DefaultConfig()
		logCfg.Level = level
		logger = logging.Setup(logCfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	a := newApp(cfg, logger)
	if err := a.run(ctx, cmd, args); err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		cancel()
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	text := i18n.New(cfg.Locale)
	file := session.FromFile(cfg.SessionFile)

	termCfg := ui.Config{Out: os.Stderr, Animate: isTerminal(os.Stderr)}
	// Dialogs wait for Enter only when someone can press it.
	if isTerminal(os.Stdin) {
		termCfg.In = os.Stdin
	}
	host := ui.NewTerminal(termCfg)

	// The jar keeps a PHPSESSID set by the server for the rest of the run.
	// cookiejar.New only fails for a bad public suffix list.
	jar, _ := cookiejar.New(nil)
	apiURL := &url.URL{Scheme: cfg.APIScheme, Host: cfg.APIHost}
	if apiURL.Scheme == "" {
		apiURL.Scheme = "http"
	}
	if apiURL.Host == "" {
		apiURL.Host = webservice.DefaultHost
	}
	chain := session.Chain{session.Static(cfg.SessionID), session.FromJar(jar, apiURL), file}

	svc := webservice.New(webservice.Config{
		Scheme:     apiURL.Scheme,
		Host:       apiURL.Host,
		HTTPClient: &http.Client{Jar: jar, Timeout: cfg.HTTPTimeout},
	}, host, text, chain, logger.With("component", "webservice"))

	return &app{
		cfg:     cfg,
		logger:  logger,
		text:    text,
		session: file,
		svc:     svc,
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "accounts":
		return a.runAccounts(ctx, args)
	case "bookings":
		return a.runBookings(ctx, args)
	case "add-booking":
		return a.runAddBooking(ctx, args)
	case "set-booking":
		return a.runSetBooking(ctx, args)
	case "categories":
		return a.runCategories(ctx, args)
	case "admin-users":
		return a.runAdminUsers(ctx, args)
	case "set-admin-user":
		return a.runSetAdminUser(ctx, args)
	case "delete-admin-user":
		return a.runDeleteAdminUser(ctx, args)
	case "toggle-admin-user":
		return a.runToggleAdminUser(ctx, args)
	case "export":
		return a.runExport(ctx, args)
	case "session":
		return a.runSession(args)
	case "status":
		return a.runStatus(ctx)
	case "setup":
		return a.runSetup(ctx, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		if s := suggest(cmd); s != "" {
			return fmt.Errorf("unknown command %q, did you mean %q?", cmd, s)
		}
		return fmt.Errorf("unknown command %q", cmd)
	}
}

var commands = []string{
	"accounts", "bookings", "add-booking", "set-booking", "categories",
	"admin-users", "set-admin-user", "delete-admin-user", "toggle-admin-user",
	"export", "session", "status", "setup",
}

// suggest returns the command closest to a mistyped one, or "" when nothing
// is within three edits.
func suggest(cmd string) string {
	best, bestDist := "", 4
	for _, c := range commands {
		if d := levenshtein.ComputeDistance(cmd, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
