// Package region maps inbound requests to a regional identification backend.
package region

import (
	"fmt"
	"net/url"
	"strings"
)

// Region identifies a regional backend.
type Region string

const (
	US Region = "us"
	EU Region = "eu"
	AP Region = "ap"
)

// QueryParam is the request query parameter that selects the region.
const QueryParam = "region"

// Default hosts of the regional backends and of the agent CDN.
const (
	DefaultUSHost  = "api.fpjs.io"
	DefaultEUHost  = "eu.api.fpjs.io"
	DefaultAPHost  = "ap.api.fpjs.io"
	DefaultCDNHost = "fpcdn.io"
)

// Backend is a named upstream origin.
type Backend struct {
	Name string
	URL  *url.URL
}

// NewBackend parses rawURL into a backend. A bare host gets an https scheme.
func NewBackend(name, rawURL string) (Backend, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Backend{}, fmt.Errorf("backend %s: %w", name, err)
	}
	if u.Host == "" {
		return Backend{}, fmt.Errorf("backend %s: missing host in %q", name, rawURL)
	}
	return Backend{Name: name, URL: u}, nil
}

// Map selects a backend for a request URL. It is read-only after New.
type Map struct {
	backends map[Region]Backend
}

// New builds a map from per-region backend URLs. The us entry is required;
// regions absent from urls fall back to it.
func New(urls map[Region]string) (*Map, error) {
	m := &Map{backends: make(map[Region]Backend, len(urls))}
	for r, raw := range urls {
		if raw == "" {
			continue
		}
		b, err := NewBackend(string(r), raw)
		if err != nil {
			return nil, err
		}
		m.backends[r] = b
	}
	if _, ok := m.backends[US]; !ok {
		return nil, fmt.Errorf("region map: %s backend is required", US)
	}
	return m, nil
}

// Defaults returns the production backend URLs.
func Defaults() map[Region]string {
	return map[Region]string{
		US: "https://" + DefaultUSHost,
		EU: "https://" + DefaultEUHost,
		AP: "https://" + DefaultAPHost,
	}
}

// Resolve returns the region selected by u: the region query parameter,
// case-insensitive. Unknown values, missing values and regions without a
// backend resolve to US.
func (m *Map) Resolve(u *url.URL) Region {
	if u == nil {
		return US
	}
	r := Region(strings.ToLower(strings.TrimSpace(u.Query().Get(QueryParam))))
	if _, ok := m.backends[r]; !ok {
		return US
	}
	return r
}

// Select returns the region and backend for u.
func (m *Map) Select(u *url.URL) (Region, Backend) {
	r := m.Resolve(u)
	return r, m.backends[r]
}

// Backend returns the backend configured for r.
func (m *Map) Backend(r Region) (Backend, bool) {
	b, ok := m.backends[r]
	return b, ok
}
