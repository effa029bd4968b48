// Package codec holds the small byte decoding helpers shared by the ingress
// path and the unsealer.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned when a buffered body is not valid UTF-8 text.
var ErrInvalidUTF8 = errors.New("invalid utf-8 sequence")

// DecodeBase64 decodes standard-alphabet base64. Padding is optional and
// surrounding whitespace is ignored. An empty input yields an empty slice.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []byte{}, nil
	}

	enc := base64.StdEncoding
	if !strings.HasSuffix(s, "=") && len(s)%4 != 0 {
		enc = base64.RawStdEncoding
	}

	out, err := enc.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return out, nil
}

// DecodeUTF8 interprets b as UTF-8 text. Unlike a lenient conversion it
// reports malformed input instead of substituting replacement characters.
func DecodeUTF8(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}
