// Package secretstore looks up secrets from the environment and from a
// directory of files, such as a mounted Kubernetes secret.
package secretstore

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/core/ports"
)

// DefaultEnvPrefix prefixes secret environment variables:
// EDGE_SECRET_PROXY_SECRET holds PROXY_SECRET.
const DefaultEnvPrefix = "EDGE_SECRET_"

// Store implements ports.SecretStore. Lookups hit the environment and the
// filesystem every time so rotated secrets take effect without a restart.
// The environment wins over files.
type Store struct {
	envPrefix string
	dir       string
}

var _ ports.SecretStore = (*Store)(nil)

// New creates a store. dir may be empty to use the environment only.
func New(envPrefix, dir string) *Store {
	return &Store{envPrefix: envPrefix, dir: dir}
}

// Get returns the secret named key. Trailing newlines from files are trimmed.
func (s *Store) Get(key string) ([]byte, bool) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return nil, false
	}

	if s.envPrefix != "" {
		if v, ok := os.LookupEnv(s.envPrefix + key); ok {
			return []byte(v), true
		}
	}

	if s.dir == "" {
		return nil, false
	}
	b, err := os.ReadFile(filepath.Join(s.dir, key))
	if err != nil {
		return nil, false
	}
	return bytes.TrimRight(b, "\r\n"), true
}
