// Package webservice wraps calls to the track API: it shows a busy indicator
// while a request is in flight, attaches the PHP session, and routes the
// decoded response to the caller's callbacks or to a generic error dialog.
package webservice

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ArionMiles/trackmanager/pkg/api"
	"github.com/ArionMiles/trackmanager/pkg/i18n"
)

// DefaultHost is the API host endpoints are resolved against.
const DefaultHost = "api.track.bplaced.net"

// SessionParam is the parameter carrying the PHP session id.
const SessionParam = "PHPSESSID"

// RequestIDHeader carries the id that also tags the request's log lines.
const RequestIDHeader = "X-Request-Id"

// Config holds the webservice configuration.
type Config struct {
	// Scheme of endpoint URLs. Defaults to "http".
	Scheme string
	// Host of endpoint URLs. Defaults to DefaultHost.
	Host string
	// Timeout bounds a single request when HTTPClient is nil.
	// Zero means no timeout.
	Timeout time.Duration
	// HTTPClient is used for requests. Defaults to a client with Timeout.
	HTTPClient *http.Client
}

// Service executes requests against the track API.
type Service struct {
	cfg     Config
	client  *http.Client
	host    api.Host
	text    api.Localizer
	session api.SessionProvider
	logger  *slog.Logger
}

// New creates a Service. host, text and session may be nil: requests then
// show nothing, use English texts, and carry no session.
func New(cfg Config, host api.Host, text api.Localizer, session api.SessionProvider, logger *slog.Logger) *Service {
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if host == nil {
		host = nopHost{}
	}
	if text == nil {
		text = i18n.New("")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:     cfg,
		client:  client,
		host:    host,
		text:    text,
		session: session,
		logger:  logger,
	}
}

// Execute sends a request to target and routes its outcome.
//
// Unless opts.HideLoading is set, a busy indicator is opened before the
// request is issued and closed exactly once when it completes. The outcome is
// then dispatched exactly once:
//
//   - loadingText and URL non-empty, both callbacks: onSuccess(payload) or onError();
//   - loadingText and URL non-empty, onSuccess only: onSuccess(payload) or the error dialog;
//   - otherwise with onError: onError() on failure, success is ignored;
//   - otherwise: the error dialog on failure, success is ignored.
//
// An empty loadingText therefore suppresses success delivery even when the
// request succeeds. The returned channel receives the Result and is closed.
// With opts.Async false, Execute returns only after dispatching. A nil opts
// means api.DefaultOptions().
func (s *Service) Execute(
	ctx context.Context,
	loadingText string,
	target api.Target,
	onSuccess api.SuccessFunc,
	onError api.ErrorFunc,
	params api.Parameters,
	opts *api.Options,
) <-chan api.Result {
	o := api.DefaultOptions()
	if opts != nil {
		o = *opts
	}

	var indicator api.Indicator
	if !o.HideLoading {
		text := loadingText
		if text == "" {
			text = s.text.Text(i18n.KeyLoading)
		}
		indicator = s.host.NewIndicator(s.text.Text(i18n.KeyLoading), text)
		indicator.Open()
	}

	rawURL := s.ResolveURL(target)

	payload := params.Clone()
	if s.session != nil {
		if id := s.session.SessionID(); id != "" {
			payload[SessionParam] = id
		}
	}

	method := http.MethodPost
	if !o.UsePost {
		method = http.MethodGet
	}

	dispatch := s.router(loadingText != "" && rawURL != "", onSuccess, onError)

	requestID := uuid.NewString()
	logger := s.logger.With("request_id", requestID, "method", method, "url", rawURL)

	results := make(chan api.Result, 1)
	run := func() {
		defer close(results)

		logger.Debug("sending request")
		res := s.roundTrip(ctx, method, rawURL, requestID, payload)
		if res.Err != nil {
			logger.Warn("request failed", "error", res.Err)
		}

		if indicator != nil {
			indicator.Close()
		}
		dispatch(res)
		results <- res
	}

	if o.Async {
		go run()
	} else {
		run()
	}
	return results
}

// router picks the dispatch function for a call. valid reports whether both
// the loading text and the resolved URL were non-empty; only then is a
// success ever delivered.
func (s *Service) router(valid bool, onSuccess api.SuccessFunc, onError api.ErrorFunc) func(api.Result) {
	switch {
	case valid && onSuccess != nil && onError != nil:
		return func(r api.Result) {
			if r.OK() {
				onSuccess(r.Payload)
			} else {
				onError()
			}
		}
	case valid && onSuccess != nil:
		return func(r api.Result) {
			if r.OK() {
				onSuccess(r.Payload)
			} else {
				s.showError()
			}
		}
	case onError != nil:
		return func(r api.Result) {
			if !r.OK() {
				onError()
			}
		}
	default:
		return func(r api.Result) {
			if !r.OK() {
				s.showError()
			}
		}
	}
}

// showError opens the generic error dialog. The dialog disposes itself
// when dismissed.
func (s *Service) showError() {
	s.host.NewErrorDialog(
		s.text.Text(i18n.KeyErrorOccurred),
		s.text.Text(i18n.KeyErrorLoading),
		s.text.Text(i18n.KeyOK),
	).Open()
}

type nopHost struct{}

func (nopHost) NewIndicator(string, string) api.Indicator        { return nopElement{} }
func (nopHost) NewErrorDialog(string, string, string) api.Dialog { return nopElement{} }

type nopElement struct{}

func (nopElement) Open()  {}
func (nopElement) Close() {}
