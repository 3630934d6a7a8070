// Package api defines the core interfaces and data structures for trackmanager.
package api

import "context"

// Target is the logical address of a remote operation.
// It is either a literal Path or a structured Endpoint.
type Target interface {
	isTarget()
}

// Path is a literal request URL that is used as-is.
type Path string

func (Path) isTarget() {}

// Endpoint addresses a function of one of the API's action scripts,
// e.g. {Action: "get", FunctionName: "getUserAccounts"}.
type Endpoint struct {
	Action       string
	FunctionName string
}

func (Endpoint) isTarget() {}

// Parameters maps request parameter names to values.
// Values may be strings, numbers, booleans, slices or nested Parameters.
type Parameters map[string]any

// Clone returns a shallow copy of p. A nil receiver yields an empty map.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Options modify how a request is executed.
type Options struct {
	// HideLoading suppresses the busy indicator.
	HideLoading bool
	// UsePost sends the parameters as a POST form body. When false a GET
	// request carries them in the query string.
	UsePost bool
	// Async runs the request in the background. When false Execute
	// blocks until the request has completed and been dispatched.
	Async bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{HideLoading: false, UsePost: true, Async: true}
}

// Result is the outcome of a single request: either a decoded JSON
// payload or the reason the request failed.
type Result struct {
	Payload any
	Err     error
}

// OK reports whether the request succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// SuccessFunc receives the decoded response body of a successful request.
type SuccessFunc func(payload any)

// ErrorFunc is called when a request fails.
type ErrorFunc func()

// Indicator is a transient busy indicator shown while a request is in flight.
type Indicator interface {
	Open()
	Close()
}

// Dialog is a modal message. Dismissing it disposes it.
type Dialog interface {
	Open()
}

// Host creates the UI elements a request needs. Every call gets its own
// indicator and dialog; they are never shared between requests.
type Host interface {
	NewIndicator(title, text string) Indicator
	NewErrorDialog(title, body, button string) Dialog
}

// Localizer resolves string keys such as "std.loading".
type Localizer interface {
	Text(key string) string
}

// SessionProvider yields the PHP session id attached to outgoing requests.
// An empty string means no session.
type SessionProvider interface {
	SessionID() string
}

// Booking is a single entry in an account.
type Booking struct {
	// ID is zero for bookings that have not been stored yet.
	ID             int     `json:"iBookingId,omitempty"`
	AccountID      int     `json:"iAccountId"`
	MainCategoryID int     `json:"iMainCategoryId"`
	SubCategoryID  int     `json:"iSubCategoryId"`
	Date           string  `json:"sBookingDate"`
	Description    string  `json:"sBookingDescription"`
	Frequency      int     `json:"iBookingFrequency"`
	Type           int     `json:"iBookingType"`
	Value          float64 `json:"fBookingValue"`
}

// Parameters returns the booking in its wire form. The id is only
// included when it is set.
func (b Booking) Parameters() Parameters {
	p := Parameters{
		"iAccountId":          b.AccountID,
		"iMainCategoryId":     b.MainCategoryID,
		"iSubCategoryId":      b.SubCategoryID,
		"sBookingDate":        b.Date,
		"sBookingDescription": b.Description,
		"iBookingFrequency":   b.Frequency,
		"iBookingType":        b.Type,
		"fBookingValue":       b.Value,
	}
	if b.ID != 0 {
		p["iBookingId"] = b.ID
	}
	return p
}

// AdminUser is a user managed through the admin functions.
type AdminUser struct {
	// ID is zero for users that have not been created yet.
	ID        int    `json:"iUserId,omitempty"`
	FirstName string `json:"sFirstName"`
	LastName  string `json:"sLastName"`
	LoginName string `json:"sLoginName"`
}

// Parameters returns the user in its wire form.
func (u AdminUser) Parameters() Parameters {
	p := Parameters{
		"sFirstName": u.FirstName,
		"sLastName":  u.LastName,
		"sLoginName": u.LoginName,
	}
	if u.ID != 0 {
		p["iUserId"] = u.ID
	}
	return p
}

// Writer consumes bookings from a channel and writes them to a destination.
// Implementations return when the channel is closed or ctx is done.
type Writer interface {
	Write(ctx context.Context, in <-chan *Booking) error
}
