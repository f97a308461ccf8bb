package token

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tavernkeep/identity/pkg/signingkey"
)

func seedActiveKey(t *testing.T, repo *signingkey.InMemoryKeyRepository) *signingkey.SigningKey {
	t.Helper()

	key, err := signingkey.Generate(1024, 24*time.Hour)
	require.NoError(t, err)
	key.Active = true
	require.NoError(t, repo.AddKey(context.Background(), key))
	return key
}

func parseIssued(t *testing.T, tokenStr string, key *signingkey.SigningKey) *Claims {
	t.Helper()

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key.PublicKey, nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	return claims
}

func TestIssuer(t *testing.T) {
	ctx := context.Background()

	subject := Subject{
		ID:    uuid.New(),
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
		Roles: []string{"admin", "player"},
	}

	t.Run("Issue", func(t *testing.T) {
		repo := signingkey.NewInMemoryKeyRepository()
		key := seedActiveKey(t, repo)
		issuer := NewIssuer(repo, "tavernkeep-identity")

		tokenStr, err := issuer.Issue(ctx, subject, "https://app.example")
		require.NoError(t, err)
		require.NotEmpty(t, tokenStr)

		claims := parseIssued(t, tokenStr, key)
		assert.Equal(t, subject.ID.String(), claims.Subject)
		assert.Equal(t, "tavernkeep-identity", claims.Issuer)
		assert.Equal(t, jwt.ClaimStrings{"https://app.example"}, claims.Audience)
		assert.Equal(t, "Ada Lovelace", claims.Name)
		assert.Equal(t, "ada@example.com", claims.Email)
		assert.Equal(t, "ada@example.com", claims.PreferredUsername)
		assert.Equal(t, []string{"admin", "player"}, claims.Roles)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("ExpiryIsExactlyOneHourAfterIssuedAt", func(t *testing.T) {
		repo := signingkey.NewInMemoryKeyRepository()
		key := seedActiveKey(t, repo)
		issuer := NewIssuer(repo, "tavernkeep-identity")

		tokenStr, err := issuer.Issue(ctx, subject, "https://app.example")
		require.NoError(t, err)

		claims := parseIssued(t, tokenStr, key)
		assert.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
	})

	t.Run("KidHeaderSelectsActiveKey", func(t *testing.T) {
		repo := signingkey.NewInMemoryKeyRepository()
		key := seedActiveKey(t, repo)
		issuer := NewIssuer(repo, "tavernkeep-identity")

		tokenStr, err := issuer.Issue(ctx, subject, "https://app.example")
		require.NoError(t, err)

		parsed, _, err := jwt.NewParser().ParseUnverified(tokenStr, &Claims{})
		require.NoError(t, err)
		assert.Equal(t, key.Kid, parsed.Header["kid"])
		assert.Equal(t, "RS256", parsed.Header["alg"])
	})

	t.Run("FreshTokenIDPerIssue", func(t *testing.T) {
		repo := signingkey.NewInMemoryKeyRepository()
		key := seedActiveKey(t, repo)
		issuer := NewIssuer(repo, "tavernkeep-identity")

		first, err := issuer.Issue(ctx, subject, "https://app.example")
		require.NoError(t, err)
		second, err := issuer.Issue(ctx, subject, "https://app.example")
		require.NoError(t, err)

		assert.NotEqual(t, parseIssued(t, first, key).ID, parseIssued(t, second, key).ID)
	})

	t.Run("NoActiveKey", func(t *testing.T) {
		issuer := NewIssuer(signingkey.NewInMemoryKeyRepository(), "tavernkeep-identity")

		_, err := issuer.Issue(ctx, subject, "https://app.example")
		assert.ErrorIs(t, err, signingkey.ErrNoActiveKey)
	})

	t.Run("SignedUnderNewestKeyAfterRotation", func(t *testing.T) {
		repo := signingkey.NewInMemoryKeyRepository()
		oldKey := seedActiveKey(t, repo)
		newKey := seedActiveKey(t, repo)
		require.NoError(t, repo.DeactivateKey(ctx, oldKey.Kid))

		issuer := NewIssuer(repo, "tavernkeep-identity")
		tokenStr, err := issuer.Issue(ctx, subject, "https://app.example")
		require.NoError(t, err)

		parsed, _, err := jwt.NewParser().ParseUnverified(tokenStr, &Claims{})
		require.NoError(t, err)
		assert.Equal(t, newKey.Kid, parsed.Header["kid"])
	})
}
