package cache

import (
	"encoding/json"
	"time"

	"github.com/craftwork/sessioncore/pkg/session"
)

// userRecord is the envelope persisted under UserKey. ExpiresAt is
// optional: zero means the record is trusted indefinitely, preserving the
// documented cache-trust policy.
type userRecord struct {
	User      *session.User `json:"user"`
	SavedAt   time.Time     `json:"saved_at"`
	ExpiresAt time.Time     `json:"expires_at,omitempty"`
}

// SaveUser persists the user as the last-known user. A zero ttl stores the
// record without expiry.
func SaveUser(store Store, u *session.User, ttl time.Duration) error {
	if u == nil {
		return store.Delete(UserKey)
	}
	rec := userRecord{User: u, SavedAt: time.Now()}
	if ttl > 0 {
		rec.ExpiresAt = rec.SavedAt.Add(ttl)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return store.Set(UserKey, data)
}

// LoadUser returns the cached last-known user, or nil when there is none,
// the record is corrupt, or it has expired. Corrupt and expired records are
// removed. The role is re-normalized on the way out since older records may
// predate normalization.
func LoadUser(store Store) (*session.User, error) {
	data, err := store.Get(UserKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil || rec.User == nil {
		store.Delete(UserKey)
		return nil, nil
	}
	if !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		store.Delete(UserKey)
		return nil, nil
	}

	rec.User.Role = session.NormalizeRole(rec.User.Role)
	return rec.User, nil
}

// ClearUser removes the last-known user record. Called on logout.
func ClearUser(store Store) error {
	return store.Delete(UserKey)
}
