// Package session provides the PHP session id that the webservice attaches to
// every outgoing request. Providers are passed to the webservice explicitly.
package session

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/ArionMiles/trackmanager/pkg/api"
)

// CookieName is the name of the PHP session cookie.
const CookieName = "PHPSESSID"

var (
	_ api.SessionProvider = Static("")
	_ api.SessionProvider = (*Jar)(nil)
	_ api.SessionProvider = (*File)(nil)
	_ api.SessionProvider = Chain(nil)
)

// Static always yields the same session id.
type Static string

// SessionID returns s.
func (s Static) SessionID() string {
	return string(s)
}

// Jar reads the session id from a cookie jar, so a cookie set by a login
// response is picked up by later requests.
type Jar struct {
	jar http.CookieJar
	url *url.URL
}

// FromJar returns a provider reading PHPSESSID for u from jar.
func FromJar(jar http.CookieJar, u *url.URL) *Jar {
	return &Jar{jar: jar, url: u}
}

// SessionID returns the value of the PHPSESSID cookie or "".
func (j *Jar) SessionID() string {
	if j == nil || j.jar == nil || j.url == nil {
		return ""
	}
	for _, c := range j.jar.Cookies(j.url) {
		if c.Name == CookieName {
			return c.Value
		}
	}
	return ""
}

// File reads the session id from a file on every call. A missing file means
// no session.
type File struct {
	path string
}

// FromFile returns a provider backed by the file at path.
func FromFile(path string) *File {
	return &File{path: path}
}

// SessionID returns the trimmed file content or "".
func (f *File) SessionID() string {
	if f == nil || f.path == "" {
		return ""
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(data))
}

// Save stores id in the file, creating the directory if needed.
func (f *File) Save(id string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

// Chain returns the first non-empty id of its providers.
type Chain []api.SessionProvider

// SessionID implements api.SessionProvider.
func (c Chain) SessionID() string {
	for _, p := range c {
		if p == nil {
			continue
		}
		if id := p.SessionID(); id != "" {
			return id
		}
	}
	return ""
}
