package sealed

import "errors"

var (
	// ErrInvalidKey is returned when the decryption key is not a base64
	// encoded 32-byte AES-256 key.
	ErrInvalidKey = errors.New("invalid decryption key")
	// ErrInvalidHeader is returned when the envelope does not start with
	// the sealed header. No decryption is attempted in that case.
	ErrInvalidHeader = errors.New("invalid sealed data header")
	// ErrTruncated is returned when the envelope is too short to hold a
	// nonce and an authentication tag.
	ErrTruncated = errors.New("sealed data too short")
	// ErrDecrypt is returned when the AEAD open fails (wrong key or
	// tampered ciphertext).
	ErrDecrypt = errors.New("decryption failed")
	// ErrDecompress is returned when the plaintext is not valid raw DEFLATE.
	ErrDecompress = errors.New("decompression failed")
	// ErrInvalidPayload is returned when the decompressed bytes are not a
	// UTF-8 JSON object.
	ErrInvalidPayload = errors.New("invalid sealed payload")
)
