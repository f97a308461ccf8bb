package login

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// AccountRepository is the account/credential lookup consumed by the
// login service. Accounts and clients are managed elsewhere; this
// subsystem only reads them.
type AccountRepository interface {
	// GetUserByEmail returns the user registered under the given
	// email, or ErrUserNotFound. Email matching is case-insensitive.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetClientByID returns the client registered under the given
	// client id, or ErrClientNotFound.
	GetClientByID(ctx context.Context, clientID string) (*Client, error)

	// GetRolesForUser returns the role names assigned to the user.
	// A user with no roles yields an empty slice, not an error.
	GetRolesForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// InMemoryAccountRepository is a map-backed AccountRepository for
// tests and local development.
type InMemoryAccountRepository struct {
	mu      sync.RWMutex
	users   map[string]User // keyed by lowercase email
	clients map[string]Client
	roles   map[uuid.UUID][]string
}

func NewInMemoryAccountRepository() *InMemoryAccountRepository {
	return &InMemoryAccountRepository{
		users:   make(map[string]User),
		clients: make(map[string]Client),
		roles:   make(map[uuid.UUID][]string),
	}
}

// AddUser registers a user for lookup by email
func (r *InMemoryAccountRepository) AddUser(user User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[strings.ToLower(user.Email)] = user
}

// AddClient registers a client for lookup by id
func (r *InMemoryAccountRepository) AddClient(client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ID] = client
}

// AssignRole appends a role name to the user's role set
func (r *InMemoryAccountRepository) AssignRole(userID uuid.UUID, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[userID] = append(r.roles[userID], role)
}

func (r *InMemoryAccountRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := user
	return &copied, nil
}

func (r *InMemoryAccountRepository) GetClientByID(ctx context.Context, clientID string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[clientID]
	if !ok {
		return nil, ErrClientNotFound
	}
	copied := client
	return &copied, nil
}

func (r *InMemoryAccountRepository) GetRolesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]string, len(r.roles[userID]))
	copy(roles, r.roles[userID])
	return roles, nil
}
