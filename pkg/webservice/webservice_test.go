package webservice

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"

	"github.com/ArionMiles/trackmanager/pkg/api"
	"github.com/ArionMiles/trackmanager/pkg/i18n"
	"github.com/ArionMiles/trackmanager/pkg/logging"
	"github.com/ArionMiles/trackmanager/pkg/session"
)

// fakeHost records every indicator and dialog it hands out.
type fakeHost struct {
	mu         sync.Mutex
	indicators []*fakeIndicator
	dialogs    []*fakeDialog
}

type fakeIndicator struct {
	title, text   string
	opens, closes atomic.Int32
}

func (i *fakeIndicator) Open()  { i.opens.Add(1) }
func (i *fakeIndicator) Close() { i.closes.Add(1) }

type fakeDialog struct {
	title, body, button string
	opens               atomic.Int32
}

func (d *fakeDialog) Open() { d.opens.Add(1) }

func (h *fakeHost) NewIndicator(title, text string) api.Indicator {
	h.mu.Lock()
	defer h.mu.Unlock()
	ind := &fakeIndicator{title: title, text: text}
	h.indicators = append(h.indicators, ind)
	return ind
}

func (h *fakeHost) NewErrorDialog(title, body, button string) api.Dialog {
	h.mu.Lock()
	defer h.mu.Unlock()
	d := &fakeDialog{title: title, body: body, button: button}
	h.dialogs = append(h.dialogs, d)
	return d
}

func (h *fakeHost) openedDialogs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, d := range h.dialogs {
		n += int(d.opens.Load())
	}
	return n
}

// recorded is what the test server saw of a request.
type recorded struct {
	method    string
	path      string
	function  string
	form      url.Values
	requestID string
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, <-chan recorded) {
	t.Helper()
	reqs := make(chan recorded, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		reqs <- recorded{
			method:    r.Method,
			path:      r.URL.Path,
			function:  r.URL.Query().Get("sFunctionName"),
			form:      r.Form,
			requestID: r.Header.Get(RequestIDHeader),
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newTestService(srv *httptest.Server, host api.Host, sess api.SessionProvider) *Service {
	return New(Config{
		Host:       strings.TrimPrefix(srv.URL, "http://"),
		HTTPClient: srv.Client(),
	}, host, i18n.New("en"), sess, logging.Discard())
}

func wait(t *testing.T, ch <-chan api.Result) api.Result {
	t.Helper()
	select {
	case res, ok := <-ch:
		if !ok {
			t.Fatal("result channel closed without a result")
		}
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for result")
	}
	return api.Result{}
}

func TestResolveURL(t *testing.T) {
	svc := New(Config{}, nil, nil, nil, logging.Discard())

	tests := []struct {
		name   string
		target api.Target
		want   string
	}{
		{
			name:   "endpoint",
			target: api.Endpoint{Action: "get", FunctionName: "getUserAccounts"},
			want:   "http://api.track.bplaced.net/get.php?sFunctionName=getUserAccounts",
		},
		{
			name:   "endpoint pointer",
			target: &api.Endpoint{Action: "delete", FunctionName: "deleteAdminUser"},
			want:   "http://api.track.bplaced.net/delete.php?sFunctionName=deleteAdminUser",
		},
		{
			name:   "endpoint is encoded",
			target: api.Endpoint{Action: "get", FunctionName: "get bookings"},
			want:   "http://api.track.bplaced.net/get.php?sFunctionName=get%20bookings",
		},
		{
			name:   "literal path",
			target: api.Path("http://example.com/raw.php?a=b c"),
			want:   "http://example.com/raw.php?a=b c",
		},
		{name: "nil target", target: nil, want: ""},
		{name: "nil endpoint pointer", target: (*api.Endpoint)(nil), want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := svc.ResolveURL(tc.target); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEncodeURI(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "http://h/a.php?x=1&y=2#f", want: "http://h/a.php?x=1&y=2#f"},
		{in: "a b", want: "a%20b"},
		{in: "100%", want: "100%25"},
		{in: "ä", want: "%C3%A4"},
		{in: "[x]", want: "%5Bx%5D"},
		{in: "-_.!~*'()", want: "-_.!~*'()"},
	}
	for _, tc := range tests {
		if got := EncodeURI(tc.in); got != tc.want {
			t.Errorf("EncodeURI(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEncodeParameters(t *testing.T) {
	values := EncodeParameters(api.Parameters{
		"aAccounts": []int{1, 2},
		"oBooking": api.Parameters{
			"iAccountId":    3,
			"fBookingValue": 12.5,
		},
		"rows":    []any{map[string]any{"a": 1}},
		"bActive": true,
		"sEmpty":  nil,
	})

	tests := []struct {
		key  string
		want []string
	}{
		{key: "aAccounts[]", want: []string{"1", "2"}},
		{key: "oBooking[iAccountId]", want: []string{"3"}},
		{key: "oBooking[fBookingValue]", want: []string{"12.5"}},
		{key: "rows[0][a]", want: []string{"1"}},
		{key: "bActive", want: []string{"true"}},
		{key: "sEmpty", want: []string{""}},
	}
	for _, tc := range tests {
		got := values[tc.key]
		if strings.Join(got, ",") != strings.Join(tc.want, ",") {
			t.Errorf("%s: got %v, want %v", tc.key, got, tc.want)
		}
	}
	if len(values) != len(tests) {
		t.Errorf("unexpected keys: %v", values)
	}
}

func TestEncodeParameters_Structs(t *testing.T) {
	day := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	values := EncodeParameters(api.Parameters{
		"oBooking": api.Booking{ID: 42, AccountID: 3, Date: "2024-01-31", Value: 12.5},
		"oUser":    &api.AdminUser{FirstName: "Ada"},
		"aUsers":   []api.AdminUser{{ID: 9, LoginName: "grace"}},
		"dDay":     day,
	})

	tests := []struct {
		key  string
		want string
	}{
		{key: "oBooking[iBookingId]", want: "42"},
		{key: "oBooking[iAccountId]", want: "3"},
		{key: "oBooking[sBookingDate]", want: "2024-01-31"},
		{key: "oBooking[fBookingValue]", want: "12.5"},
		{key: "oUser[sFirstName]", want: "Ada"},
		{key: "aUsers[0][iUserId]", want: "9"},
		{key: "aUsers[0][sLoginName]", want: "grace"},
		{key: "dDay", want: day.String()},
	}
	for _, tc := range tests {
		if got := values.Get(tc.key); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.key, got, tc.want)
		}
	}
	if _, ok := values["oUser[iUserId]"]; ok {
		t.Error("zero user id should be omitted")
	}
	if _, ok := values["oBooking"]; ok {
		t.Errorf("struct sent as a single value: %v", values["oBooking"])
	}
}

func TestExecute_Routing(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		loadingText string
		withSuccess bool
		withError   bool
		wantSuccess int
		wantError   int
		wantDialogs int
	}{
		{name: "both callbacks, success", status: 200, loadingText: "Loading", withSuccess: true, withError: true, wantSuccess: 1},
		{name: "both callbacks, failure", status: 500, loadingText: "Loading", withSuccess: true, withError: true, wantError: 1},
		{name: "success only, success", status: 200, loadingText: "Loading", withSuccess: true, wantSuccess: 1},
		{name: "success only, failure", status: 500, loadingText: "Loading", withSuccess: true, wantDialogs: 1},
		{name: "error only, success", status: 200, loadingText: "Loading", withError: true},
		{name: "error only, failure", status: 500, loadingText: "Loading", withError: true, wantError: 1},
		{name: "no callbacks, success", status: 200, loadingText: "Loading"},
		{name: "no callbacks, failure", status: 500, loadingText: "Loading", wantDialogs: 1},
		// An empty loading text never delivers a success.
		{name: "empty text, both callbacks, success", status: 200, withSuccess: true, withError: true},
		{name: "empty text, both callbacks, failure", status: 500, withSuccess: true, withError: true, wantError: 1},
		{name: "empty text, success only, success", status: 200, withSuccess: true},
		{name: "empty text, success only, failure", status: 500, withSuccess: true, wantDialogs: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, respond(tc.status, `{"aAccounts":[{"iAccountId":1}]}`))
			host := &fakeHost{}
			svc := newTestService(srv, host, nil)

			var successCalls, errorCalls atomic.Int32
			var gotPayload any
			var onSuccess api.SuccessFunc
			var onError api.ErrorFunc
			if tc.withSuccess {
				onSuccess = func(p any) {
					successCalls.Add(1)
					gotPayload = p
				}
			}
			if tc.withError {
				onError = func() { errorCalls.Add(1) }
			}

			res := wait(t, svc.Execute(context.Background(), tc.loadingText, EndpointGetUserAccounts, onSuccess, onError, nil, nil))

			if wantOK := tc.status == 200; res.OK() != wantOK {
				t.Errorf("result OK = %v, want %v (err %v)", res.OK(), wantOK, res.Err)
			}
			if got := int(successCalls.Load()); got != tc.wantSuccess {
				t.Errorf("success calls: got %d, want %d", got, tc.wantSuccess)
			}
			if got := int(errorCalls.Load()); got != tc.wantError {
				t.Errorf("error calls: got %d, want %d", got, tc.wantError)
			}
			if got := host.openedDialogs(); got != tc.wantDialogs {
				t.Errorf("dialogs opened: got %d, want %d", got, tc.wantDialogs)
			}
			if tc.wantSuccess == 1 {
				m, ok := gotPayload.(map[string]any)
				if !ok || m["aAccounts"] == nil {
					t.Errorf("unexpected payload %#v", gotPayload)
				}
			}

			if len(host.indicators) != 1 {
				t.Fatalf("indicators: got %d, want 1", len(host.indicators))
			}
			ind := host.indicators[0]
			if ind.opens.Load() != 1 || ind.closes.Load() != 1 {
				t.Errorf("indicator opened %d, closed %d; want 1 and 1", ind.opens.Load(), ind.closes.Load())
			}
		})
	}
}

func TestExecute_IndicatorText(t *testing.T) {
	srv, _ := newTestServer(t, respond(200, `[]`))
	host := &fakeHost{}
	svc := newTestService(srv, host, nil)

	wait(t, svc.Execute(context.Background(), "", EndpointGetAdminUsers, nil, nil, nil, nil))
	wait(t, svc.Execute(context.Background(), "Loading users", EndpointGetAdminUsers, nil, nil, nil, nil))

	if got := host.indicators[0].text; got != "Loading..." {
		t.Errorf("default text: got %q", got)
	}
	if got := host.indicators[1].text; got != "Loading users" {
		t.Errorf("custom text: got %q", got)
	}
	if got := host.indicators[1].title; got != "Loading..." {
		t.Errorf("title: got %q", got)
	}
}

func TestExecute_ErrorDialogTexts(t *testing.T) {
	srv, _ := newTestServer(t, respond(500, ``))
	host := &fakeHost{}
	svc := New(Config{
		Host:       strings.TrimPrefix(srv.URL, "http://"),
		HTTPClient: srv.Client(),
	}, host, i18n.New("de"), nil, logging.Discard())

	wait(t, svc.Execute(context.Background(), "Lädt", EndpointGetAdminUsers, nil, nil, nil, nil))

	if len(host.dialogs) != 1 {
		t.Fatalf("dialogs: got %d, want 1", len(host.dialogs))
	}
	d := host.dialogs[0]
	if d.title != "Ein Fehler ist aufgetreten" || d.button != "OK" || d.body == "" {
		t.Errorf("unexpected dialog %+v", d)
	}
}

func TestExecute_HideLoading(t *testing.T) {
	srv, _ := newTestServer(t, respond(200, `{}`))
	host := &fakeHost{}
	svc := newTestService(srv, host, nil)

	opts := api.DefaultOptions()
	opts.HideLoading = true
	wait(t, svc.Execute(context.Background(), "Loading", EndpointGetAdminUsers, nil, nil, nil, &opts))

	if len(host.indicators) != 0 {
		t.Errorf("expected no indicator, got %d", len(host.indicators))
	}
}

func TestExecute_Session(t *testing.T) {
	tests := []struct {
		name    string
		session api.SessionProvider
		want    string
		present bool
	}{
		{name: "present", session: session.Static("abc123"), want: "abc123", present: true},
		{name: "empty", session: session.Static("")},
		{name: "none", session: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, reqs := newTestServer(t, respond(200, `{}`))
			svc := newTestService(srv, nil, tc.session)

			params := api.Parameters{"iUserId": 7}
			wait(t, svc.Execute(context.Background(), "Loading", EndpointDeleteAdminUser, nil, nil, params, nil))

			req := <-reqs
			_, ok := req.form[SessionParam]
			if ok != tc.present {
				t.Fatalf("PHPSESSID present = %v, want %v", ok, tc.present)
			}
			if got := req.form.Get(SessionParam); got != tc.want {
				t.Errorf("PHPSESSID: got %q, want %q", got, tc.want)
			}
			if _, mutated := params[SessionParam]; mutated {
				t.Error("caller parameters were mutated")
			}
		})
	}
}

func TestExecute_SessionFromCookie(t *testing.T) {
	calls := 0
	srv, reqs := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.SetCookie(w, &http.Cookie{Name: session.CookieName, Value: "issued", Path: "/"})
		}
		respond(http.StatusOK, `{}`)(w, r)
	})

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("creating jar: %v", err)
	}
	client := srv.Client()
	client.Jar = jar
	base, _ := url.Parse(srv.URL)

	svc := New(Config{
		Host:       base.Host,
		HTTPClient: client,
	}, nil, nil, session.Chain{session.Static(""), session.FromJar(jar, base)}, logging.Discard())

	wait(t, svc.Execute(context.Background(), "Login", EndpointGetUserAccounts, nil, nil, nil, nil))
	if first := <-reqs; first.form.Has(SessionParam) {
		t.Errorf("first call carried a session: %q", first.form.Get(SessionParam))
	}

	wait(t, svc.Execute(context.Background(), "Loading", EndpointGetUserAccounts, nil, nil, nil, nil))
	if got := (<-reqs).form.Get(SessionParam); got != "issued" {
		t.Errorf("second call PHPSESSID: got %q, want issued", got)
	}
}

func TestExecute_Methods(t *testing.T) {
	srv, reqs := newTestServer(t, respond(200, `{}`))
	svc := newTestService(srv, nil, nil)
	params := api.Parameters{"aAccounts": []int{4, 5}}

	wait(t, svc.Execute(context.Background(), "Loading", EndpointGetCategories, nil, nil, params, nil))
	post := <-reqs
	if post.method != http.MethodPost {
		t.Errorf("default method: got %s, want POST", post.method)
	}
	if got := post.form["aAccounts[]"]; len(got) != 2 || got[0] != "4" || got[1] != "5" {
		t.Errorf("POST form: got %v", got)
	}

	opts := api.DefaultOptions()
	opts.UsePost = false
	wait(t, svc.Execute(context.Background(), "Loading", EndpointGetCategories, nil, nil, params, &opts))
	get := <-reqs
	if get.method != http.MethodGet {
		t.Errorf("method: got %s, want GET", get.method)
	}
	if get.function != "getCategories" {
		t.Errorf("function: got %q", get.function)
	}
	if got := get.form["aAccounts[]"]; len(got) != 2 {
		t.Errorf("GET query: got %v", got)
	}
}

func TestExecute_Synchronous(t *testing.T) {
	srv, _ := newTestServer(t, respond(200, `{"ok":true}`))
	svc := newTestService(srv, nil, nil)

	called := false
	opts := api.DefaultOptions()
	opts.Async = false
	ch := svc.Execute(context.Background(), "Loading", EndpointGetUserAccounts, func(any) { called = true }, nil, nil, &opts)

	if !called {
		t.Error("synchronous Execute returned before dispatching")
	}
	select {
	case res := <-ch:
		if !res.OK() {
			t.Errorf("unexpected error %v", res.Err)
		}
	default:
		t.Error("synchronous Execute returned without a result")
	}
	if _, open := <-ch; open {
		t.Error("result channel not closed")
	}
}

func TestExecute_EmptyTarget(t *testing.T) {
	host := &fakeHost{}
	svc := New(Config{}, host, nil, nil, logging.Discard())

	var errorCalls atomic.Int32
	res := wait(t, svc.Execute(context.Background(), "Loading", api.Path(""), func(any) {
		t.Error("success must not be delivered for an empty target")
	}, func() { errorCalls.Add(1) }, nil, nil))

	if !errors.Is(res.Err, ErrNoTarget) {
		t.Errorf("got %v, want ErrNoTarget", res.Err)
	}
	if errorCalls.Load() != 1 {
		t.Errorf("error calls: got %d, want 1", errorCalls.Load())
	}
	if host.indicators[0].closes.Load() != 1 {
		t.Error("indicator not closed")
	}
}

func TestExecute_Responses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr bool
		want    any
	}{
		{name: "json", handler: respond(200, `"42"`), want: "42"},
		{name: "no content", handler: respond(204, ``), want: nil},
		{name: "empty body", handler: respond(200, "  "), wantErr: true},
		{name: "malformed", handler: respond(200, `{"a":`), wantErr: true},
		{name: "not found", handler: respond(404, `{}`), wantErr: true},
		{
			name: "gzip",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				var buf bytes.Buffer
				gz := gzip.NewWriter(&buf)
				_, _ = gz.Write([]byte(`"zipped"`))
				_ = gz.Close()
				w.Header().Set("Content-Encoding", "gzip")
				_, _ = w.Write(buf.Bytes())
			},
			want: "zipped",
		},
		{
			name: "deflate",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				var buf bytes.Buffer
				zw := zlib.NewWriter(&buf)
				_, _ = zw.Write([]byte(`"wrapped"`))
				_ = zw.Close()
				w.Header().Set("Content-Encoding", "deflate")
				_, _ = w.Write(buf.Bytes())
			},
			want: "wrapped",
		},
		{
			name: "raw deflate",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				var buf bytes.Buffer
				fw, _ := flate.NewWriter(&buf, flate.DefaultCompression)
				_, _ = fw.Write([]byte(`"raw"`))
				_ = fw.Close()
				w.Header().Set("Content-Encoding", "deflate")
				_, _ = w.Write(buf.Bytes())
			},
			want: "raw",
		},
		{
			name: "brotli",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				var buf bytes.Buffer
				br := brotli.NewWriter(&buf)
				_, _ = br.Write([]byte(`"squeezed"`))
				_ = br.Close()
				w.Header().Set("Content-Encoding", "br")
				_, _ = w.Write(buf.Bytes())
			},
			want: "squeezed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tc.handler)
			svc := newTestService(srv, nil, nil)

			res := wait(t, svc.Execute(context.Background(), "Loading", EndpointGetUserAccounts, nil, nil, nil, nil))
			if (res.Err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", res.Err, tc.wantErr)
			}
			if !tc.wantErr && res.Payload != tc.want {
				t.Errorf("payload: got %#v, want %#v", res.Payload, tc.want)
			}
		})
	}
}

func TestExecute_StatusError(t *testing.T) {
	srv, _ := newTestServer(t, respond(503, ``))
	svc := newTestService(srv, nil, nil)

	res := wait(t, svc.Execute(context.Background(), "Loading", EndpointGetUserAccounts, nil, nil, nil, nil))

	var statusErr *StatusError
	if !errors.As(res.Err, &statusErr) {
		t.Fatalf("got %v, want *StatusError", res.Err)
	}
	if statusErr.Code != 503 {
		t.Errorf("code: got %d", statusErr.Code)
	}
}

func TestExecute_RequestIDPerCall(t *testing.T) {
	srv, reqs := newTestServer(t, respond(http.StatusOK, `[]`))
	svc := newTestService(srv, nil, nil)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		wait(t, svc.Execute(context.Background(), "Loading", api.Path(srv.URL+"/get.php"), nil, nil, nil, nil))
		id := (<-reqs).requestID
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("request id %q is not a uuid: %v", id, err)
		}
		seen[id] = true
	}
	if len(seen) != 2 {
		t.Error("expected a distinct request id per call")
	}
}
