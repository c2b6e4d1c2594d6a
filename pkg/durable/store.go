package durable

import (
	"errors"
	"strings"
)

// Store errors.
var (
	ErrNotFound   = errors.New("key not found")
	ErrClosed     = errors.New("store closed")
	ErrInvalidKey = errors.New("invalid key or namespace")
)

// MaxKeyLength is the longest accepted key or namespace, matching common
// flash key-value implementations.
const MaxKeyLength = 15

// Opener opens namespaces of a durable backend.
type Opener interface {
	// Open returns a handle on the namespace, creating it if needed.
	Open(namespace string) (Store, error)
}

// Store is an open durable namespace.
type Store interface {
	// Exists reports whether a value is stored under key.
	Exists(key string) (bool, error)

	// Get returns a copy of the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put replaces the value stored under key.
	Put(key string, value []byte) error

	// Close releases the handle. Further calls return ErrClosed.
	Close() error
}

// validName rejects names that cannot be used as a file name or are longer
// than MaxKeyLength.
func validName(name string) error {
	if name == "" || len(name) > MaxKeyLength {
		return ErrInvalidKey
	}
	if strings.ContainsAny(name, `/\:`) || name == "." || name == ".." {
		return ErrInvalidKey
	}
	return nil
}
