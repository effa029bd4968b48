// Package response turns a one-shot upstream response into an immutable
// value that can be handed to the client and to any number of plugins.
package response

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// MaxBodySize caps how much of a response body Buffer holds in memory.
const MaxBodySize = 8 << 20

// ErrBodyTooLarge is returned by BufferLimit when the body exceeds the limit.
// The response is left readable from the start.
var ErrBodyTooLarge = errors.New("response body exceeds buffer limit")

// Snapshot is a fully buffered response. The body is read from the network
// exactly once; every consumer gets its own reader over the same bytes.
type Snapshot struct {
	StatusCode int
	Status     string
	Header     http.Header
	body       []byte
}

// Buffer reads and closes resp.Body and returns a snapshot of resp. Bodies
// larger than MaxBodySize fail with ErrBodyTooLarge.
func Buffer(resp *http.Response) (*Snapshot, error) {
	return BufferLimit(resp, MaxBodySize)
}

// BufferLimit is Buffer with an explicit limit. When the body is larger than
// limit, resp.Body is replaced by a reader that replays the bytes already
// consumed followed by the rest of the stream, so resp can still be passed
// through unchanged.
func BufferLimit(resp *http.Response, limit int64) (*Snapshot, error) {
	if resp.ContentLength > limit {
		return nil, ErrBodyTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > limit {
		resp.Body = replayBody{
			Reader: io.MultiReader(bytes.NewReader(body), resp.Body),
			Closer: resp.Body,
		}
		return nil, ErrBodyTooLarge
	}
	resp.Body.Close()
	return FromBytes(body, resp), nil
}

type replayBody struct {
	io.Reader
	io.Closer
}

// FromBytes builds a snapshot from an already buffered body, keeping the
// status line and headers of resp. resp.Body is not touched.
func FromBytes(body []byte, resp *http.Response) *Snapshot {
	return &Snapshot{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		body:       body,
	}
}

// Body returns the buffered body. Callers must not modify it.
func (s *Snapshot) Body() []byte {
	return s.body
}

// Successful reports whether the status code is within [200, 299].
func (s *Snapshot) Successful() bool {
	return s.StatusCode >= 200 && s.StatusCode < 300
}

// HTTPResponse constructs a new, independent *http.Response. Each call
// returns a fresh header map and body reader, so one consumer reading or
// mutating its copy never affects another.
func (s *Snapshot) HTTPResponse() *http.Response {
	header := s.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        s.Status,
		StatusCode:    s.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(s.body)),
		ContentLength: int64(len(s.body)),
	}
}

// Write sends resp to the client. Hop-by-hop and length headers are
// recomputed by net/http.
func Write(w http.ResponseWriter, resp *http.Response) error {
	defer resp.Body.Close()

	dst := w.Header()
	for k, vv := range resp.Header {
		if isHopByHop(k) {
			continue
		}
		dst[k] = append([]string(nil), vv...)
	}
	if resp.ContentLength >= 0 && resp.Header.Get("Content-Length") == "" && resp.Header.Get("Transfer-Encoding") == "" {
		dst.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("write response body: %w", err)
	}
	return nil
}

var hopByHop = map[string]struct{}{
	"Connection":          {},
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func isHopByHop(name string) bool {
	_, ok := hopByHop[http.CanonicalHeaderKey(name)]
	return ok
}

// StripHopByHop removes hop-by-hop headers from h in place.
func StripHopByHop(h http.Header) {
	for k := range h {
		if isHopByHop(k) {
			h.Del(k)
		}
	}
}
