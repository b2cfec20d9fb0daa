package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-cardlink-api/internal/domain"
)

// errorResponse pairs a status code with the message shown to the caller.
type errorResponse struct {
	status  int
	message string
}

var verifyErrors = []struct {
	target error
	resp   errorResponse
}{
	{domain.ErrMissingInput, errorResponse{http.StatusBadRequest, "Email/Phone and OTP are required"}},
	{domain.ErrNoCodeFound, errorResponse{http.StatusBadRequest, "No verification code found. Please request a new code."}},
	{domain.ErrCodeExpired, errorResponse{http.StatusBadRequest, "Verification code has expired. Please request a new code."}},
	{domain.ErrCodeMismatch, errorResponse{http.StatusBadRequest, "Invalid verification code. Please check and try again."}},
	{domain.ErrUserNotFound, errorResponse{http.StatusNotFound, "User account not found. Please register first."}},
	{domain.ErrUserCreationFailed, errorResponse{http.StatusInternalServerError, "Failed to create user account. Please try again."}},
}

// verifyError maps an OTP verification failure to its status and message.
// Anything outside the verification taxonomy is an infrastructure failure.
func verifyError(err error) errorResponse {
	for _, e := range verifyErrors {
		if errors.Is(err, e.target) {
			return e.resp
		}
	}
	return errorResponse{http.StatusInternalServerError, "Failed to verify code"}
}

// httpError writes err as a JSON error. Client errors keep the mapped message;
// server errors log the detail and report it to Sentry, exposing only fallback.
func httpError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var resp errorResponse
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		resp = errorResponse{http.StatusBadRequest, fallback}
	case errors.Is(err, domain.ErrUnauthorized):
		resp = errorResponse{http.StatusUnauthorized, "unauthorized"}
	case errors.Is(err, domain.ErrNotFound):
		resp = errorResponse{http.StatusNotFound, fallback}
	case errors.Is(err, domain.ErrConflict):
		resp = errorResponse{http.StatusConflict, fallback}
	default:
		resp = errorResponse{http.StatusInternalServerError, fallback}
	}
	writeResponseError(w, r, err, resp)
}

func writeResponseError(w http.ResponseWriter, r *http.Request, err error, resp errorResponse) {
	if resp.status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		captureError(r, err)
	} else {
		slog.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", resp.status, "error", err)
	}
	writeError(w, resp.status, resp.message)
}

func captureError(r *http.Request, err error) {
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}
