package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-cardlink-api/internal/application/user"
	"github.com/go-cardlink-api/internal/domain"
	"github.com/go-cardlink-api/internal/pkg/validate"
)

// UserHandler handles account existence checks and registration.
type UserHandler struct {
	svc user.Service
}

func NewUserHandler(svc user.Service) *UserHandler { return &UserHandler{svc: svc} }

func (h *UserHandler) CheckUser(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	exists, err := h.svc.CheckExists(r.Context(), req)
	if errors.Is(err, domain.ErrBadRequest) {
		writeError(w, http.StatusBadRequest, "Email or mobile number is required")
		return
	}
	if err != nil {
		httpError(w, r, err, "Failed to check user existence")
		return
	}
	msg := "User does not exist. You can proceed with registration."
	if exists {
		msg = "User already exists. Please login."
	}
	writeJSON(w, http.StatusOK, CheckUserEnvelope{Success: true, Exists: exists, Message: msg})
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	switch {
	case errors.Is(err, domain.ErrEmailTaken):
		writeError(w, http.StatusConflict, "An account with this email already exists")
		return
	case errors.Is(err, domain.ErrPhoneTaken):
		writeError(w, http.StatusConflict, "An account with this phone number already exists")
		return
	case err != nil:
		httpError(w, r, err, "Registration failed. Please try again.")
		return
	}
	writeJSON(w, http.StatusCreated, UserEnvelope{
		Success: true,
		Message: "Account created successfully",
		User:    toSafeUser(u),
	})
}
