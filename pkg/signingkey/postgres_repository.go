package signingkey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresKeyRepository implements KeyRepository using PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE signing_keys (
//	    kid             TEXT PRIMARY KEY,
//	    alg             TEXT NOT NULL,
//	    private_key_pem TEXT NOT NULL,
//	    public_key_pem  TEXT NOT NULL,
//	    active          BOOLEAN NOT NULL,
//	    created_at      TIMESTAMPTZ NOT NULL,
//	    expires_at      TIMESTAMPTZ NOT NULL
//	);
type PostgresKeyRepository struct {
	db *pgxpool.Pool
}

// NewPostgresKeyRepository creates a new PostgreSQL key repository
func NewPostgresKeyRepository(db *pgxpool.Pool) (*PostgresKeyRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}

	return &PostgresKeyRepository{db: db}, nil
}

const keyColumns = "kid, alg, private_key_pem, public_key_pem, active, created_at, expires_at"

// GetActiveKey returns the currently active signing key, preferring the
// newest record when a rotation handover leaves two keys active.
func (r *PostgresKeyRepository) GetActiveKey(ctx context.Context) (*SigningKey, error) {
	query := `
		SELECT ` + keyColumns + `
		FROM signing_keys
		WHERE active
		ORDER BY created_at DESC
		LIMIT 1
	`

	key, err := scanKey(r.db.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveKey
		}
		return nil, fmt.Errorf("failed to get active key: %w", err)
	}

	return key, nil
}

// GetVerificationKeys returns all keys still valid for verification
func (r *PostgresKeyRepository) GetVerificationKeys(ctx context.Context) ([]*SigningKey, error) {
	query := `
		SELECT ` + keyColumns + `
		FROM signing_keys
		WHERE expires_at > NOW()
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query verification keys: %w", err)
	}
	defer rows.Close()

	var keys []*SigningKey
	for rows.Next() {
		var key SigningKey
		var privateKeyPEM, publicKeyPEM string

		err := rows.Scan(
			&key.Kid,
			&key.Alg,
			&privateKeyPEM,
			&publicKeyPEM,
			&key.Active,
			&key.CreatedAt,
			&key.ExpiresAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to read verification keys: %w", err)
		}

		// A corrupt record must not take down the whole key set. The
		// key is dropped from the result and reported; every remaining
		// key stays verifiable.
		key.PrivateKey, err = DecodePrivateKeyFromPEM(privateKeyPEM)
		if err != nil {
			slog.Error("Skipping signing key with corrupt private key material", "kid", key.Kid, "err", err)
			continue
		}
		key.PublicKey, err = DecodePublicKeyFromPEM(publicKeyPEM)
		if err != nil {
			slog.Error("Skipping signing key with corrupt public key material", "kid", key.Kid, "err", err)
			continue
		}

		keys = append(keys, &key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read verification keys: %w", err)
	}

	return keys, nil
}

// GetKeyByKid returns the key with the given kid
func (r *PostgresKeyRepository) GetKeyByKid(ctx context.Context, kid string) (*SigningKey, error) {
	query := `
		SELECT ` + keyColumns + `
		FROM signing_keys
		WHERE kid = $1
	`

	key, err := scanKey(r.db.QueryRow(ctx, query, kid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("key not found: %s", kid)
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}

	return key, nil
}

// AddKey stores a new key
func (r *PostgresKeyRepository) AddKey(ctx context.Context, key *SigningKey) error {
	if err := key.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO signing_keys (` + keyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		key.Kid,
		key.Alg,
		EncodePrivateKeyToPEM(key.PrivateKey),
		EncodePublicKeyToPEM(key.PublicKey),
		key.Active,
		key.CreatedAt,
		key.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert key %s: %w", key.Kid, err)
	}

	return nil
}

// DeactivateKey retires the key with the given kid
func (r *PostgresKeyRepository) DeactivateKey(ctx context.Context, kid string) error {
	tag, err := r.db.Exec(ctx, "UPDATE signing_keys SET active = FALSE WHERE kid = $1", kid)
	if err != nil {
		return fmt.Errorf("failed to deactivate key %s: %w", kid, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("key not found: %s", kid)
	}

	return nil
}

// CleanupExpiredKeys removes expired keys, preserving the active key
func (r *PostgresKeyRepository) CleanupExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM signing_keys WHERE NOT active AND expires_at < $1", now)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired keys: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanKey(row pgx.Row) (*SigningKey, error) {
	var key SigningKey
	var privateKeyPEM, publicKeyPEM string

	err := row.Scan(
		&key.Kid,
		&key.Alg,
		&privateKeyPEM,
		&publicKeyPEM,
		&key.Active,
		&key.CreatedAt,
		&key.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	privateKey, err := DecodePrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key for %s: %w", key.Kid, err)
	}
	key.PrivateKey = privateKey

	publicKey, err := DecodePublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key for %s: %w", key.Kid, err)
	}
	key.PublicKey = publicKey

	return &key, nil
}
