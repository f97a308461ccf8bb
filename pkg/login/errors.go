package login

import "errors"

var (
	// ErrInvalidCredentials covers every credential failure: unknown
	// client, unknown user, and password mismatch all map to this one
	// error so the response cannot be used to probe which check
	// failed. The underlying cause is logged server-side only.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrUserNotFound   = errors.New("user not found")
	ErrClientNotFound = errors.New("client not found")
)
