package otp

import (
	"errors"

	"github.com/go-cardlink-api/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "OTP verification attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	codesIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_codes_issued_total",
			Help: "Verification codes issued by channel and delivery path",
		},
		[]string{"channel", "delivery"},
	)
)

func outcome(err error) string {
	switch {
	case err == nil:
		return "verified"
	case errors.Is(err, domain.ErrMissingInput):
		return "missing_input"
	case errors.Is(err, domain.ErrNoCodeFound):
		return "no_code"
	case errors.Is(err, domain.ErrCodeExpired):
		return "expired"
	case errors.Is(err, domain.ErrCodeMismatch):
		return "mismatch"
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, domain.ErrUserCreationFailed):
		return "creation_failed"
	default:
		return "error"
	}
}

func recordOutcome(channel domain.Channel, err error) {
	verificationsTotal.WithLabelValues(string(channel), outcome(err)).Inc()
}

func recordIssued(channel domain.Channel, delivery string) {
	codesIssuedTotal.WithLabelValues(string(channel), delivery).Inc()
}
