// Package testutil holds helpers shared by package tests.
package testutil

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// volatileHeaders change on every run and are dropped before a cassette is saved.
var volatileHeaders = []string{"Traceparent", "Tracestate", "User-Agent"}

// NewRecorder replays testdata/fixtures/<name>.yaml. Set VCR_MODE=record to
// capture a fresh cassette against the live backends.
//
// Interactions match on method and URL, and on every header recorded in the
// cassette request, so cassettes double as assertions about what was sent.
func NewRecorder(t *testing.T, name string) *recorder.Recorder {
	t.Helper()

	mode := recorder.ModeReplaying
	if os.Getenv("VCR_MODE") == "record" {
		mode = recorder.ModeRecording
	}

	r, err := recorder.NewAsMode(filepath.Join("testdata", "fixtures", name), mode, nil)
	if err != nil {
		t.Fatalf("create recorder for %s: %v", name, err)
	}

	r.SetMatcher(matchRequest)
	r.AddFilter(func(i *cassette.Interaction) error {
		for _, h := range volatileHeaders {
			delete(i.Request.Headers, h)
		}
		return nil
	})

	t.Cleanup(func() {
		if err := r.Stop(); err != nil {
			t.Errorf("stop recorder for %s: %v", name, err)
		}
	})
	return r
}

func matchRequest(r *http.Request, i cassette.Request) bool {
	if r.Method != i.Method || r.URL.String() != i.URL {
		return false
	}
	for name, want := range i.Headers {
		got := r.Header.Values(name)
		if len(got) != len(want) {
			return false
		}
		for k := range want {
			if got[k] != want[k] {
				return false
			}
		}
	}
	return true
}
