package login

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinzhu/copier"
)

// PostgresAccountRepository implements AccountRepository backed by
// PostgreSQL. Expected schema:
//
//	CREATE TABLE users (
//	    id            UUID PRIMARY KEY,
//	    name          TEXT NOT NULL,
//	    email         TEXT NOT NULL UNIQUE,
//	    password_hash TEXT NOT NULL
//	);
//
//	CREATE TABLE clients (
//	    client_id TEXT PRIMARY KEY,
//	    name      TEXT NOT NULL,
//	    url       TEXT NOT NULL
//	);
//
//	CREATE TABLE user_roles (
//	    user_id   UUID NOT NULL REFERENCES users (id),
//	    role_name TEXT NOT NULL,
//	    PRIMARY KEY (user_id, role_name)
//	);
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

type userRow struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
}

type clientRow struct {
	ID   string
	Name string
	URL  string
}

func (r *PostgresAccountRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, name, email, password_hash
		FROM users
		WHERE LOWER(email) = LOWER($1)`

	var row userRow
	err := r.pool.QueryRow(ctx, query, email).Scan(&row.ID, &row.Name, &row.Email, &row.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	var user User
	if err := copier.Copy(&user, &row); err != nil {
		return nil, fmt.Errorf("failed to map user row: %w", err)
	}
	return &user, nil
}

func (r *PostgresAccountRepository) GetClientByID(ctx context.Context, clientID string) (*Client, error) {
	query := `
		SELECT client_id, name, url
		FROM clients
		WHERE client_id = $1`

	var row clientRow
	err := r.pool.QueryRow(ctx, query, clientID).Scan(&row.ID, &row.Name, &row.URL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client by id: %w", err)
	}

	var client Client
	if err := copier.Copy(&client, &row); err != nil {
		return nil, fmt.Errorf("failed to map client row: %w", err)
	}
	return &client, nil
}

func (r *PostgresAccountRepository) GetRolesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `
		SELECT role_name
		FROM user_roles
		WHERE user_id = $1
		ORDER BY role_name`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles for user: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}
