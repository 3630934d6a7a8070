package webservice

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/ArionMiles/trackmanager/pkg/api"
)

var (
	// ErrNoTarget is reported when the target resolves to an empty URL.
	ErrNoTarget = errors.New("webservice: no request target")
	// ErrEmptyResponse is reported for a successful status with no body.
	ErrEmptyResponse = errors.New("webservice: empty response body")
)

// StatusError is reported for responses outside the 2xx range.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webservice: unexpected status %s", e.Status)
}

// newRequest builds the HTTP request. POST sends params as a form body;
// GET appends them to the URL's query.
func newRequest(ctx context.Context, method, rawURL, requestID string, params api.Parameters) (*http.Request, error) {
	encoded := EncodeParameters(params).Encode()

	var body io.Reader
	if method == http.MethodGet {
		if encoded != "" {
			sep := "?"
			if strings.Contains(rawURL, "?") {
				sep = "&"
			}
			rawURL += sep + encoded
		}
	} else {
		body = strings.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set(RequestIDHeader, requestID)
	return req, nil
}

// roundTrip performs one request and decodes the JSON response.
func (s *Service) roundTrip(ctx context.Context, method, rawURL, requestID string, params api.Parameters) api.Result {
	if rawURL == "" {
		return api.Result{Err: ErrNoTarget}
	}

	req, err := newRequest(ctx, method, rawURL, requestID, params)
	if err != nil {
		return api.Result{Err: fmt.Errorf("building request: %w", err)}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return api.Result{Err: fmt.Errorf("sending request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return api.Result{Err: &StatusError{Code: resp.StatusCode, Status: resp.Status}}
	}

	if resp.StatusCode == http.StatusNoContent {
		return api.Result{}
	}

	body, err := readBody(resp)
	if err != nil {
		return api.Result{Err: fmt.Errorf("reading response: %w", err)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return api.Result{Err: ErrEmptyResponse}
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return api.Result{Err: fmt.Errorf("decoding response: %w", err)}
	}
	return api.Result{Payload: payload}
}

// readBody reads the response body, undoing any content encoding the server
// applied.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body

	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "deflate":
		dr, err := deflateReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer dr.Close()
		r = dr
	case "br":
		r = brotli.NewReader(resp.Body)
	}

	return io.ReadAll(r)
}

// deflateReader decodes an HTTP deflate body. The content coding is zlib
// framed, but some servers send raw DEFLATE, which is accepted as well.
func deflateReader(body io.Reader) (io.ReadCloser, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
		return zr, nil
	}
	return flate.NewReader(bytes.NewReader(raw)), nil
}
