package twilio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-cardlink-api/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
	twiliogo "github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
)

const (
	statusApproved = "approved"
	breakerName    = "twilio-verify"
)

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "otp_provider_breaker_state",
		Help: "State of the verification provider circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

// ErrProviderUnavailable is returned while the breaker is open.
var ErrProviderUnavailable = gobreaker.ErrOpenState

type verifyAPI interface {
	CreateVerification(serviceSid string, params *verify.CreateVerificationParams) (*verify.VerifyV2Verification, error)
	CreateVerificationCheck(serviceSid string, params *verify.CreateVerificationCheckParams) (*verify.VerifyV2VerificationCheck, error)
}

// BreakerConfig tunes the circuit breaker around provider calls.
type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// Verifier checks and starts SMS verifications through Twilio Verify.
// One instance is built at start-up and shared by all requests.
type Verifier struct {
	api        verifyAPI
	serviceSID string
	breaker    *gobreaker.CircuitBreaker[string]
}

// NewVerifier builds the provider client from configuration.
func NewVerifier(cfg *config.Config) *Verifier {
	rc := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	rc.SetTimeout(cfg.ProviderTimeout)
	return newVerifier(rc.VerifyV2, cfg.TwilioVerifyServiceSID, DefaultBreakerConfig())
}

func newVerifier(api verifyAPI, serviceSID string, bc BreakerConfig) *Verifier {
	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}
	breakerState.WithLabelValues(breakerName).Set(0)
	return &Verifier{
		api:        api,
		serviceSID: serviceSID,
		breaker:    gobreaker.NewCircuitBreaker[string](settings),
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Check asks the provider whether code is valid for phone. A false result
// with a nil error is a denial; any error means the provider could not answer.
func (v *Verifier) Check(ctx context.Context, phone, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	status, err := v.breaker.Execute(func() (string, error) {
		params := &verify.CreateVerificationCheckParams{}
		params.SetTo(phone)
		params.SetCode(code)
		res, err := v.api.CreateVerificationCheck(v.serviceSID, params)
		if err != nil {
			// No pending verification for this number is a denial, not an outage.
			if isNotFound(err) {
				return "", nil
			}
			return "", err
		}
		if res.Status == nil {
			return "", nil
		}
		return *res.Status, nil
	})
	if err != nil {
		return false, fmt.Errorf("provider check: %w", err)
	}
	return status == statusApproved, nil
}

// Start asks the provider to send a code to phone by SMS.
func (v *Verifier) Start(ctx context.Context, phone string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := v.breaker.Execute(func() (string, error) {
		params := &verify.CreateVerificationParams{}
		params.SetTo(phone)
		params.SetChannel("sms")
		res, err := v.api.CreateVerification(v.serviceSID, params)
		if err != nil {
			return "", err
		}
		if res.Status == nil {
			return "", nil
		}
		return *res.Status, nil
	})
	if err != nil {
		return fmt.Errorf("provider start: %w", err)
	}
	return nil
}

func (v *Verifier) State() gobreaker.State {
	return v.breaker.State()
}

func isNotFound(err error) bool {
	var rest *client.TwilioRestError
	return errors.As(err, &rest) && rest.Status == http.StatusNotFound
}
