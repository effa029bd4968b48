// Package sealed implements the sealed result envelope carried in ingress
// responses.
//
// # Wire format
//
//	+----------------+-------------+--------------------------------+
//	| header (4)     | nonce (12)  | AES-256-GCM ciphertext || tag  |
//	| 9e 85 dc ed    |             | (tag is the trailing 16 bytes) |
//	+----------------+-------------+--------------------------------+
//
// The plaintext is a raw DEFLATE stream (no zlib or gzip container) holding
// a UTF-8 JSON object. The envelope travels base64 encoded inside the
// "sealedResult" field of the ingress response body.
package sealed

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/pkg/codec"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
	// MaxPlaintextSize caps the inflated payload.
	MaxPlaintextSize = 8 << 20
)

// Header is the fixed prefix of every sealed envelope.
var Header = []byte{0x9e, 0x85, 0xdc, 0xed}

// Unsealer opens sealed envelopes. The zero value is ready to use.
type Unsealer struct {
	// NewAEAD builds the cipher for a key. Nil means AES-256-GCM.
	NewAEAD func(key []byte) (cipher.AEAD, error)
}

var defaultUnsealer = &Unsealer{}

// Unseal decodes, authenticates, decrypts, inflates and parses a base64
// sealed envelope using a base64 encoded key.
func Unseal(sealedB64, keyB64 string) (Event, error) {
	return defaultUnsealer.Unseal(sealedB64, keyB64)
}

// Unseal is the method form of the package-level Unseal.
func (u *Unsealer) Unseal(sealedB64, keyB64 string) (Event, error) {
	data, err := codec.DecodeBase64(sealedB64)
	if err != nil {
		return nil, fmt.Errorf("sealed data: %w", err)
	}
	key, err := codec.DecodeBase64(keyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	plain, err := u.Open(data, key)
	if err != nil {
		return nil, err
	}

	text, err := codec.DecodeUTF8(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var event Event
	if err := json.Unmarshal([]byte(text), &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if event == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidPayload)
	}
	return event, nil
}

// Open validates the header, decrypts and inflates raw envelope bytes and
// returns the decompressed plaintext.
func (u *Unsealer) Open(data, key []byte) ([]byte, error) {
	if len(data) < len(Header) || !bytes.Equal(data[:len(Header)], Header) {
		return nil, ErrInvalidHeader
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}

	rest := data[len(Header):]
	if len(rest) < NonceSize+TagSize {
		return nil, fmt.Errorf("%w: %d bytes after header", ErrTruncated, len(rest))
	}
	nonce, ciphertext := rest[:NonceSize], rest[NonceSize:]

	aead, err := u.aead(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	compressed, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	plain, err := inflate(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	return plain, nil
}

// Seal compresses, encrypts and frames a JSON-encodable value with a fresh
// random nonce and returns the base64 envelope.
func Seal(v any, key []byte) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	raw, err := SealBytes(payload, key, nonce)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// SealBytes frames plaintext with an explicit nonce and returns the raw
// (not base64 encoded) envelope.
func SealBytes(plaintext, key, nonce []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}

	compressed, err := deflate(plaintext)
	if err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(Header)+NonceSize+len(compressed)+TagSize)
	out = append(out, Header...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, compressed, nil), nil
}

func (u *Unsealer) aead(key []byte) (cipher.AEAD, error) {
	if u.NewAEAD != nil {
		return u.NewAEAD(key)
	}
	return newGCM(key)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func inflate(compressed []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	plain, err := io.ReadAll(io.LimitReader(r, MaxPlaintextSize+1))
	if err != nil {
		return nil, err
	}
	if len(plain) > MaxPlaintextSize {
		return nil, fmt.Errorf("inflated payload exceeds %d bytes", MaxPlaintextSize)
	}
	return plain, nil
}

func deflate(plain []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plain); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
