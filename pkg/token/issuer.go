package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tavernkeep/identity/pkg/signingkey"
)

// Lifetime is the fixed validity window of every issued token
const Lifetime = time.Hour

// Claims is the claim set carried by every issued token. The shape is a
// fixed struct rather than an open-ended map so the token contents stay
// statically checkable.
type Claims struct {
	Name              string   `json:"name,omitempty"`
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Email             string   `json:"email,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Subject identifies the authenticated principal a token is issued for
type Subject struct {
	ID    uuid.UUID
	Name  string
	Email string
	Roles []string
}

// Issuer mints RS256-signed bearer tokens using the currently active
// signing key. Issuance is a pure read-and-sign operation; nothing is
// persisted.
type Issuer struct {
	keys   signingkey.KeyRepository
	issuer string
}

// NewIssuer creates a token issuer. The issuer string goes into every
// token's iss claim.
func NewIssuer(keys signingkey.KeyRepository, issuer string) *Issuer {
	return &Issuer{
		keys:   keys,
		issuer: issuer,
	}
}

// Issue signs a token for the given subject, addressed to the given
// audience (the requesting client's registered URL). The active key's
// kid goes into the token header so verifiers can select the matching
// public key from the JWKS document.
//
// Returns signingkey.ErrNoActiveKey when the store holds no active key;
// callers treat that as a fatal configuration error.
func (g *Issuer) Issue(ctx context.Context, subject Subject, audience string) (string, error) {
	key, err := g.keys.GetActiveKey(ctx)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	claims := Claims{
		Name:              subject.Name,
		PreferredUsername: subject.Email,
		Email:             subject.Email,
		Roles:             subject.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(Lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    g.issuer,
			Subject:   subject.ID.String(),
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.Kid

	tokenString, err := token.SignedString(key.PrivateKey)
	if err != nil {
		slog.Error("Failed to sign token", "kid", key.Kid, "err", err)
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}
