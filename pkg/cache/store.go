// Package cache is the persisted local cache the resolver consults before
// going to the network. It remembers the last known user across restarts
// under a single well-known key.
//
// Backends share a small synchronous key/value interface: in-memory for
// tests and ephemeral hosts, a file per key for CLI use, and SQLite for
// hosts that already carry a database.
package cache

import "errors"

// UserKey is the single key holding the JSON-serialized last-known user.
const UserKey = "sessioncore:last_user"

// ErrStoreClosed is returned when operations are attempted on a closed
// store.
var ErrStoreClosed = errors.New("cache: store is closed")

// Store is a synchronous key/value cache. Get returns (nil, nil) on a
// miss; Delete of a missing key is not an error. Implementations must be
// safe for concurrent use.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, data []byte) error
	Delete(key string) error
	Close() error
}
