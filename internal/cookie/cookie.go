// Package cookie rewrites Cookie request headers against a whitelist.
package cookie

import (
	"net/http"
	"strings"
)

// TrackingCookieName is the only cookie the ingress backend is allowed to see.
const TrackingCookieName = "_iidt"

// KeepTracking is the keep predicate used for ingress requests.
func KeepTracking(name string) bool {
	return name == TrackingCookieName
}

// Filter parses a raw Cookie header, keeps the pairs whose name satisfies
// keep and serializes them again. ok is false when nothing survives.
func Filter(header string, keep func(name string) bool) (string, bool) {
	if strings.TrimSpace(header) == "" {
		return "", false
	}

	var kept []string
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" || !keep(name) {
			continue
		}
		kept = append(kept, name+"="+strings.TrimSpace(value))
	}

	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, "; "), true
}

// ApplyFilter rewrites the Cookie header of h in place. The header is
// removed when no cookie survives and is never added when it was absent.
func ApplyFilter(h http.Header, keep func(name string) bool) {
	values := h.Values("Cookie")
	if len(values) == 0 {
		return
	}

	filtered, ok := Filter(strings.Join(values, "; "), keep)
	if !ok {
		h.Del("Cookie")
		return
	}
	h.Set("Cookie", filtered)
}
