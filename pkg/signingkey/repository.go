package signingkey

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoActiveKey is returned when the store holds no active signing key.
// Callers treat this as a fatal configuration error: rotation has never
// run, or it is persistently failing.
var ErrNoActiveKey = errors.New("no active signing key")

// KeyRepository defines the storage contract for signing keys.
//
// Implementations must be safe for concurrent use by the rotation loop
// and arbitrarily many simultaneous issuance and JWKS reads. Key records
// are immutable once added; only the active flag transitions, via
// DeactivateActiveKey, from true to false.
type KeyRepository interface {
	// GetActiveKey returns the key currently used for signing.
	// Returns ErrNoActiveKey when no key is active.
	GetActiveKey(ctx context.Context) (*SigningKey, error)

	// GetVerificationKeys returns every key still valid for signature
	// verification: the active key plus retired keys not yet expired.
	GetVerificationKeys(ctx context.Context) ([]*SigningKey, error)

	// GetKeyByKid returns the key with the given kid.
	GetKeyByKid(ctx context.Context, kid string) (*SigningKey, error)

	// AddKey stores a new key. Fails if the kid already exists.
	AddKey(ctx context.Context, key *SigningKey) error

	// DeactivateKey retires the key with the given kid. Rotation inserts
	// the replacement key before calling this, so during the handover
	// both keys are briefly active and GetActiveKey must prefer the
	// newest one; a reader never observes zero active keys.
	DeactivateKey(ctx context.Context, kid string) error

	// CleanupExpiredKeys removes keys whose expiry has passed and that
	// are no longer needed for verification. Returns the number removed.
	CleanupExpiredKeys(ctx context.Context, now time.Time) (int64, error)
}

// InMemoryKeyRepository implements KeyRepository with mutex-protected
// in-process storage. Used in tests and single-node demo setups.
type InMemoryKeyRepository struct {
	keys  []SigningKey
	mutex sync.RWMutex
}

// NewInMemoryKeyRepository creates an empty in-memory key repository
func NewInMemoryKeyRepository() *InMemoryKeyRepository {
	return &InMemoryKeyRepository{}
}

// GetActiveKey returns the currently active signing key. When two keys
// are briefly active during a rotation handover, the newest one wins.
func (r *InMemoryKeyRepository) GetActiveKey(ctx context.Context) (*SigningKey, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for i := len(r.keys) - 1; i >= 0; i-- {
		if r.keys[i].Active {
			keyCopy := r.keys[i]
			return &keyCopy, nil
		}
	}

	return nil, ErrNoActiveKey
}

// GetVerificationKeys returns all keys still valid for verification
func (r *InMemoryKeyRepository) GetVerificationKeys(ctx context.Context) ([]*SigningKey, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	now := time.Now().UTC()
	var keys []*SigningKey
	for _, key := range r.keys {
		if key.UsableForVerification(now) {
			keyCopy := key
			keys = append(keys, &keyCopy)
		}
	}

	return keys, nil
}

// GetKeyByKid returns the key with the given kid
func (r *InMemoryKeyRepository) GetKeyByKid(ctx context.Context, kid string) (*SigningKey, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, key := range r.keys {
		if key.Kid == kid {
			keyCopy := key
			return &keyCopy, nil
		}
	}

	return nil, fmt.Errorf("key not found: %s", kid)
}

// AddKey stores a new key
func (r *InMemoryKeyRepository) AddKey(ctx context.Context, key *SigningKey) error {
	if err := key.Validate(); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existing := range r.keys {
		if existing.Kid == key.Kid {
			return fmt.Errorf("key already exists: %s", key.Kid)
		}
	}

	r.keys = append(r.keys, *key)
	return nil
}

// DeactivateKey retires the key with the given kid
func (r *InMemoryKeyRepository) DeactivateKey(ctx context.Context, kid string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i := range r.keys {
		if r.keys[i].Kid == kid {
			r.keys[i].Active = false
			return nil
		}
	}

	return fmt.Errorf("key not found: %s", kid)
}

// CleanupExpiredKeys removes expired keys, preserving the active key
func (r *InMemoryKeyRepository) CleanupExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var kept []SigningKey
	var removed int64
	for _, key := range r.keys {
		if key.Active || !key.IsExpired(now) {
			kept = append(kept, key)
		} else {
			removed++
		}
	}

	r.keys = kept
	return removed, nil
}
