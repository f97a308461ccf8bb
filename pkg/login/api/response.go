package api

// LoginRequest is the POST /login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	ClientID string `json:"clientId"`
}

// LoginResponse is the POST /login success body
type LoginResponse struct {
	Token string `json:"token"`
}

// ErrorResponse is the body of every non-2xx login response. Errors
// carries field-level validation messages and is omitted otherwise.
type ErrorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}
