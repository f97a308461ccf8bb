package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tavernkeep/identity/pkg/login"
	"github.com/tavernkeep/identity/pkg/signingkey"
)

// InvalidCredentialsMessage is the one message returned for every
// credential failure. Unknown client, unknown user, and wrong password
// must be indistinguishable from the response alone.
const InvalidCredentialsMessage = "Invalid credentials."

type Handle struct {
	loginService *login.LoginService
}

type Option func(*Handle)

func WithLoginService(ls *login.LoginService) Option {
	return func(h *Handle) {
		h.loginService = ls
	}
}

func NewHandle(opts ...Option) Handle {
	h := Handle{}
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// RegisterRoutes mounts the login endpoint on the given router
func (h Handle) RegisterRoutes(r chi.Router) {
	r.Post("/login", h.PostLogin)
}

// Login a user
// (POST /login)
func (h Handle) PostLogin(w http.ResponseWriter, r *http.Request) {
	data := LoginRequest{}
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: "Unable to parse request body"})
		return
	}

	if fieldErrors := data.validate(); len(fieldErrors) > 0 {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Message: "Invalid request",
			Errors:  fieldErrors,
		})
		return
	}

	slog.Info("Login request", "email", data.Email, "clientId", data.ClientID)

	signed, err := h.loginService.Login(r.Context(), data.Email, data.Password, data.ClientID)
	if err != nil {
		if errors.Is(err, login.ErrInvalidCredentials) {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, ErrorResponse{Message: InvalidCredentialsMessage})
			return
		}

		if errors.Is(err, signingkey.ErrNoActiveKey) {
			slog.Error("Token issuance failed: no active signing key, rotation has never succeeded")
		} else {
			slog.Error("Login failed", "err", err)
		}
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Message: "Internal server error"})
		return
	}

	render.JSON(w, r, LoginResponse{Token: signed})
}

func (d LoginRequest) validate() map[string]string {
	fieldErrors := make(map[string]string)

	if strings.TrimSpace(d.Email) == "" {
		fieldErrors["email"] = "email is required"
	} else if !strings.Contains(d.Email, "@") {
		fieldErrors["email"] = "email is malformed"
	}
	if d.Password == "" {
		fieldErrors["password"] = "password is required"
	}
	if strings.TrimSpace(d.ClientID) == "" {
		fieldErrors["clientId"] = "clientId is required"
	}

	return fieldErrors
}
