package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrUnsupportedEncoding is returned for a Content-Encoding this package
	// cannot reverse, such as br.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
	// ErrTooLarge is returned when decoded content exceeds the limit.
	ErrTooLarge = errors.New("decoded content exceeds limit")
)

// DecodeContent reverses the codings listed in a Content-Encoding header
// value, last applied first. An empty or identity encoding returns body
// unchanged. At most limit decoded bytes are produced.
func DecodeContent(encoding string, body []byte, limit int64) ([]byte, error) {
	codings := strings.Split(encoding, ",")
	out := body
	for i := len(codings) - 1; i >= 0; i-- {
		coding := strings.ToLower(strings.TrimSpace(codings[i]))
		if coding == "" || coding == "identity" {
			continue
		}
		r, err := decoder(coding, out, limit)
		if err != nil {
			return nil, err
		}
		out, err = readLimited(r, limit)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", coding, err)
		}
	}
	return out, nil
}

func decoder(coding string, b []byte, limit int64) (io.ReadCloser, error) {
	src := bytes.NewReader(b)
	switch coding {
	case "gzip", "x-gzip":
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("decode gzip: %w", err)
		}
		return r, nil
	case "deflate":
		r, err := zlib.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("decode deflate: %w", err)
		}
		return r, nil
	case "zstd":
		d, err := zstd.NewReader(src, zstd.WithDecoderMaxMemory(uint64(limit)))
		if err != nil {
			return nil, fmt.Errorf("decode zstd: %w", err)
		}
		return d.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, coding)
	}
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, ErrTooLarge
	}
	return out, nil
}
