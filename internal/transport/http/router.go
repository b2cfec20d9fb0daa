package http

import (
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-cardlink-api/internal/application/claim"
	"github.com/go-cardlink-api/internal/application/otp"
	"github.com/go-cardlink-api/internal/application/session"
	"github.com/go-cardlink-api/internal/application/user"
	"github.com/go-cardlink-api/internal/config"
	jwtinfra "github.com/go-cardlink-api/internal/infrastructure/jwt"
	"github.com/go-cardlink-api/internal/transport/http/handler"
	appmiddleware "github.com/go-cardlink-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Services holds the application services exposed over HTTP.
type Services struct {
	OTP      otp.Service
	Users    user.Service
	Sessions session.Service
	Claims   claim.Service
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, svcs Services, jwtProvider *jwtinfra.Provider) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	r.Use(appmiddleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10, on code issuance and verification.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	cookie := handler.CookieOptions{MaxAge: cfg.SessionExpiry, Secure: cfg.IsProduction()}

	healthH := handler.NewHealthHandler()
	otpH := handler.NewOTPHandler(svcs.OTP, cookie)
	userH := handler.NewUserHandler(svcs.Users)
	sessionH := handler.NewSessionHandler(svcs.Sessions, cookie)
	claimH := handler.NewClaimHandler(svcs.Claims)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(sensitiveRL.Limit)
			r.Post("/send-otp", otpH.SendCode)
			r.Post("/verify-otp", otpH.Verify)
			r.Post("/auth/check-user", userH.CheckUser)
			r.Post("/auth/register", userH.Register)
		})

		r.Get("/claim-url/{username}", claimH.Available)

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(jwtProvider, svcs.Sessions))
			r.Get("/sessions/current", sessionH.GetCurrent)
			r.Post("/sessions/logout", sessionH.Logout)
			r.Post("/claim-url", claimH.Claim)
		})
	})

	return r
}
