package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-cardlink-api/internal/application/otp"
	"github.com/go-cardlink-api/internal/domain"
)

// OTPHandler issues and verifies one-time codes.
type OTPHandler struct {
	svc    otp.Service
	cookie CookieOptions
}

func NewOTPHandler(svc otp.Service, cookie CookieOptions) *OTPHandler {
	return &OTPHandler{svc: svc, cookie: cookie}
}

func (h *OTPHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req domain.SendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	channel, err := h.svc.RequestCode(r.Context(), req)
	if err != nil {
		httpError(w, r, err, "Failed to send verification code")
		return
	}
	writeJSON(w, http.StatusOK, SendCodeEnvelope{
		Success: true,
		Channel: channel,
		Message: "Verification code sent",
	})
}

func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.Verify(r.Context(), req)
	if err != nil {
		writeResponseError(w, r, err, verifyError(err))
		return
	}
	setSessionCookie(w, res.Token, h.cookie)
	writeJSON(w, http.StatusOK, VerifyEnvelope{
		Success:  true,
		Verified: true,
		Message:  "Email verified successfully",
		User:     toSafeUser(res.User),
	})
}
