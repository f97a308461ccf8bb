package login

import (
	"github.com/google/uuid"
)

// User is a credential principal. The password hash is opaque to the
// service; only the configured PasswordHasher can interpret it.
type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
}

// Client is a registered relying application. Clients are created
// out-of-band and are read-only here. URL doubles as the audience
// claim of tokens issued for the client.
type Client struct {
	ID   string
	Name string
	URL  string
}
