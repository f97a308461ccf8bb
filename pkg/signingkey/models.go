package signingkey

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Default parameters for new signing keys
const (
	DefaultAlgorithm = "RS256"
	DefaultKeyBits   = 2048

	// DefaultKeyLifetime is how long a newly generated key stays valid
	// for verification before it must be removed from the key set.
	DefaultKeyLifetime = 365 * 24 * time.Hour
)

// SigningKey represents one RSA key pair used for signing bearer tokens.
// A key is immutable once stored; only its Active flag transitions from
// true to false, exactly once, when the key is replaced during rotation.
type SigningKey struct {
	// Kid is the key identifier carried in JWT headers and JWKS entries
	Kid string `json:"kid"`

	// Alg is the signature algorithm this key is used with
	Alg string `json:"alg"`

	// RSA private key, never serialized directly
	PrivateKey *rsa.PrivateKey `json:"-"`

	// RSA public key (derived from the private key)
	PublicKey *rsa.PublicKey `json:"-"`

	// Whether this is the key currently used for signing new tokens.
	// Inactive keys remain usable for verification until they expire.
	Active bool `json:"active"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Generate creates a new signing key with a fresh UUID kid and the given
// key size and lifetime. The caller decides whether the key is active.
func Generate(bits int, lifetime time.Duration) (*SigningKey, error) {
	privateKey, err := GenerateRSAKeyPair(bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	now := time.Now().UTC()
	return &SigningKey{
		Kid:        uuid.New().String(),
		Alg:        DefaultAlgorithm,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		CreatedAt:  now,
		ExpiresAt:  now.Add(lifetime),
	}, nil
}

// IsExpired reports whether the key is past its expiry at the given time.
func (k *SigningKey) IsExpired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}

// UsableForSigning reports whether the key may sign new tokens.
func (k *SigningKey) UsableForSigning(now time.Time) bool {
	return k.Active && !k.IsExpired(now)
}

// UsableForVerification reports whether relying parties may still verify
// tokens with this key. Deactivated keys stay verifiable until expiry.
func (k *SigningKey) UsableForVerification(now time.Time) bool {
	return !k.IsExpired(now)
}

// Validate checks the structural invariants of a key record.
func (k *SigningKey) Validate() error {
	if k.Kid == "" {
		return fmt.Errorf("signing key has no kid")
	}
	if k.PrivateKey == nil {
		return fmt.Errorf("signing key %s has no private key material", k.Kid)
	}
	if !k.ExpiresAt.After(k.CreatedAt) {
		return fmt.Errorf("signing key %s expires_at must be after created_at", k.Kid)
	}
	return nil
}

// MarshalJSON serializes the key with PEM-encoded key material so it can
// be persisted by file- or document-based stores.
func (k *SigningKey) MarshalJSON() ([]byte, error) {
	type Alias SigningKey
	return json.Marshal(&struct {
		*Alias
		PrivateKeyPEM string `json:"private_key_pem"`
		PublicKeyPEM  string `json:"public_key_pem"`
	}{
		Alias:         (*Alias)(k),
		PrivateKeyPEM: EncodePrivateKeyToPEM(k.PrivateKey),
		PublicKeyPEM:  EncodePublicKeyToPEM(k.PublicKey),
	})
}

// UnmarshalJSON restores a key from its PEM-carrying JSON form.
func (k *SigningKey) UnmarshalJSON(data []byte) error {
	type Alias SigningKey
	aux := &struct {
		*Alias
		PrivateKeyPEM string `json:"private_key_pem"`
		PublicKeyPEM  string `json:"public_key_pem"`
	}{
		Alias: (*Alias)(k),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	privateKey, err := DecodePrivateKeyFromPEM(aux.PrivateKeyPEM)
	if err != nil {
		return err
	}
	k.PrivateKey = privateKey

	publicKey, err := DecodePublicKeyFromPEM(aux.PublicKeyPEM)
	if err != nil {
		return err
	}
	k.PublicKey = publicKey

	return nil
}
