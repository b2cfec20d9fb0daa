package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-cardlink-api/internal/application/claim"
	"github.com/go-cardlink-api/internal/domain"
	"github.com/go-cardlink-api/internal/pkg/validate"
	"github.com/go-cardlink-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// ClaimHandler reserves custom profile URLs.
type ClaimHandler struct {
	svc claim.Service
}

func NewClaimHandler(svc claim.Service) *ClaimHandler { return &ClaimHandler{svc: svc} }

func (h *ClaimHandler) Available(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	available, err := h.svc.Available(r.Context(), username)
	if err != nil {
		h.claimError(w, r, username, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimEnvelope{Success: true, Username: username, Available: &available})
}

func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.ClaimUsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "Username is required")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validate.Username(req.Username).Error())
		return
	}
	c, err := h.svc.Claim(r.Context(), claims.UserID, req.Username)
	if err != nil {
		h.claimError(w, r, req.Username, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimEnvelope{
		Success:  true,
		Username: c.Username,
		Message:  "Username saved successfully",
	})
}

func (h *ClaimHandler) claimError(w http.ResponseWriter, r *http.Request, username string, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		msg := "invalid username"
		if verr := validate.Username(strings.ToLower(strings.TrimSpace(username))); verr != nil {
			msg = verr.Error()
		}
		writeError(w, http.StatusBadRequest, msg)
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "Username is already taken")
	default:
		httpError(w, r, err, "Failed to save username")
	}
}
