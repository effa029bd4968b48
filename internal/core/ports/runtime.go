package ports

import "context"

// ConfigStore is a read-only key/value lookup for integration settings.
// Implementations: koanf file + env (default), edge dictionary, etc.
type ConfigStore interface {
	Get(key string) (string, bool)
}

// SecretStore is a read-only lookup for secret material such as the proxy
// secret and the decryption key. Values are returned as raw bytes and are
// decoded by the caller on demand.
// Implementations: env + directory (default), vault, etc.
type SecretStore interface {
	Get(key string) ([]byte, bool)
}

// ConfigWatcher is implemented by stores that can reload themselves.
type ConfigWatcher interface {
	Watch(ctx context.Context, onChange func()) error
	Close() error
}

// ConfigStoreFunc adapts a function to ConfigStore.
type ConfigStoreFunc func(key string) (string, bool)

// Get calls f(key).
func (f ConfigStoreFunc) Get(key string) (string, bool) { return f(key) }

// SecretStoreFunc adapts a function to SecretStore.
type SecretStoreFunc func(key string) ([]byte, bool)

// Get calls f(key).
func (f SecretStoreFunc) Get(key string) ([]byte, bool) { return f(key) }
