// Package wellknown serves the discovery endpoints relying parties use
// to fetch this service's public signing keys.
//
// Two routes return the same JSON Web Key Set document:
//
//   - /.well-known/jwks.json - standard discovery location
//   - /jwks - short alias
//
// No cache-control headers are set; relying parties are expected to
// re-fetch periodically or on a kid cache-miss so they observe key
// rotation within the retention window.
package wellknown

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tavernkeep/identity/pkg/jwks"
)

// Handler provides HTTP handlers for well-known endpoints
type Handler struct {
	jwksService *jwks.Service
}

// NewHandler creates a new well-known endpoints handler
func NewHandler(jwksService *jwks.Service) *Handler {
	return &Handler{
		jwksService: jwksService,
	}
}

// JWKS handles GET /.well-known/jwks.json. The document is rebuilt
// from storage on every request so it always reflects the current key
// set.
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	doc, err := h.jwksService.GetJWKS(r.Context())
	if err != nil {
		slog.Error("Failed to load JWKS", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		slog.Error("Failed to encode JWKS response", "err", err)
	}
}

// RegisterRoutes mounts the discovery endpoints on the given router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/.well-known/jwks.json", h.JWKS)
	r.Get("/jwks", h.JWKS)
}
