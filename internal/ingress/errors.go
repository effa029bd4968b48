package ingress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

const requestIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ingressError is the body returned to the agent when an identification
// submission cannot be proxied. It mirrors the backend's own envelope so the
// agent can surface the reason.
type ingressError struct {
	V         string         `json:"v"`
	Error     errorData      `json:"error"`
	RequestID string         `json:"requestId"`
	Products  map[string]any `json:"products"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ingressErrorResponse builds the 500 response for a failed submission.
func ingressErrorResponse(r *http.Request, reason string) *http.Response {
	return jsonResponse(r, http.StatusInternalServerError, ingressError{
		V: "2",
		Error: errorData{
			Code:    "IntegrationFailed",
			Message: "An error occurred with the integration. Reason: " + reason,
		},
		RequestID: newRequestID(time.Now()),
		Products:  map[string]any{},
	})
}

// fallbackErrorResponse builds the 500 response for everything else.
func fallbackErrorResponse(r *http.Request, reason string) *http.Response {
	return jsonResponse(r, http.StatusInternalServerError, map[string]string{"error": reason})
}

func notFoundResponse(r *http.Request) *http.Response {
	resp := jsonResponse(r, http.StatusNotFound, map[string]string{
		"error": fmt.Sprintf("unmatched path %s", r.URL.Path),
	})
	resp.Header.Del("Access-Control-Allow-Origin")
	resp.Header.Del("Access-Control-Allow-Credentials")
	return resp
}

func jsonResponse(r *http.Request, status int, v any) *http.Response {
	body, err := json.Marshal(v)
	if err != nil {
		body = []byte(`{"error":"internal error"}`)
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}

	h := make(http.Header)
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Content-Type", "application/json")

	return &http.Response{
		StatusCode:    status,
		Status:        strconv.Itoa(status) + " " + http.StatusText(status),
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// newRequestID returns "<unix millis>.<6 random alphanumerics>".
func newRequestID(now time.Time) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = requestIDAlphabet[rand.IntN(len(requestIDAlphabet))]
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "." + string(suffix)
}
