package handler

import (
	"net/http"

	"github.com/go-cardlink-api/internal/application/session"
	"github.com/go-cardlink-api/internal/transport/http/middleware"
)

// SessionHandler handles session endpoints.
type SessionHandler struct {
	svc    session.Service
	cookie CookieOptions
}

func NewSessionHandler(svc session.Service, cookie CookieOptions) *SessionHandler {
	return &SessionHandler{svc: svc, cookie: cookie}
}

func (h *SessionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sess, err := h.svc.GetCurrent(r.Context(), claims.SessionID)
	if err != nil {
		httpError(w, r, err, "Failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, SessionEnvelope{Session: sess, User: toSafeUser(sess.User)})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Logout(r.Context(), claims.SessionID); err != nil {
		httpError(w, r, err, "Failed to log out")
		return
	}
	clearSessionCookie(w, h.cookie)
	writeJSON(w, http.StatusOK, MessageEnvelope{Success: true, Message: "logged out"})
}
