package jwks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tavernkeep/identity/pkg/signingkey"
)

// Service publishes the set of public keys relying parties use to verify
// token signatures. It is a pure read layer over the key repository: the
// document always reflects the active key plus any retired keys that are
// still within their verification window.
type Service struct {
	repository signingkey.KeyRepository
}

// NewService creates a JWKS publisher backed by the given key repository
func NewService(repository signingkey.KeyRepository) *Service {
	return &Service{
		repository: repository,
	}
}

// GetJWKS returns the public keys in JWKS format.
//
// A key whose material cannot be rendered is logged and skipped rather
// than failing the whole document; one corrupt record must not stop
// relying parties from verifying tokens signed with the healthy keys.
func (s *Service) GetJWKS(ctx context.Context) (*JWKS, error) {
	keys, err := s.repository.GetVerificationKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list verification keys: %w", err)
	}

	doc := &JWKS{
		Keys: make([]JWK, 0, len(keys)),
	}

	for _, key := range keys {
		jwk, err := FromSigningKey(key)
		if err != nil {
			slog.Error("Skipping unrenderable signing key in JWKS", "kid", key.Kid, "err", err)
			continue
		}
		doc.Keys = append(doc.Keys, *jwk)
	}

	return doc, nil
}
