package storage

import "errors"

// ErrNotFound is returned by Get when no value exists for a key.
var ErrNotFound = errors.New("storage: key not found")

// Store is the key-value capability the rest of the application persists
// through. Keys are namespaced strings ("projects/<user>", "logs/<project>");
// values are serialized JSON records. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}
