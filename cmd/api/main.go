package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-cardlink-api/internal/application/claim"
	"github.com/go-cardlink-api/internal/application/otp"
	"github.com/go-cardlink-api/internal/application/session"
	"github.com/go-cardlink-api/internal/application/user"
	"github.com/go-cardlink-api/internal/config"
	"github.com/go-cardlink-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-cardlink-api/internal/infrastructure/jwt"
	"github.com/go-cardlink-api/internal/infrastructure/memory"
	"github.com/go-cardlink-api/internal/infrastructure/postgres"
	redisinfra "github.com/go-cardlink-api/internal/infrastructure/redis"
	"github.com/go-cardlink-api/internal/infrastructure/smtp"
	"github.com/go-cardlink-api/internal/infrastructure/sns"
	"github.com/go-cardlink-api/internal/infrastructure/twilio"
	transporthttp "github.com/go-cardlink-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.AppEnv}); err != nil {
			slog.Warn("sentry init failed", "error", err)
		}
	}

	err := run(ctx, cfg)
	sentry.Flush(2 * time.Second)
	if err != nil {
		slog.Error("server exited", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	// Creates the tables if they don't exist.
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	emailCodes, phoneCodes, err := codeStores(ctx, cfg, dynamoClient)
	if err != nil {
		return err
	}

	userDeps := user.ServiceDeps{DefaultCountryCode: cfg.DefaultCountryCode}
	switch cfg.DirectoryBackend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Bootstrap(ctx, pool); err != nil {
			return err
		}
		userDeps.UserRepo = postgres.NewUserRepo(pool)
	case "dynamo":
		userDeps.UserRepo = dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users, cfg.DynamoTables.UserUniques)
	default:
		return fmt.Errorf("unknown DIRECTORY_BACKEND %q", cfg.DirectoryBackend)
	}
	slog.Info("user directory selected", "backend", cfg.DirectoryBackend)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	smsSender, err := sns.NewSender(ctx, cfg)
	if err != nil {
		return fmt.Errorf("sns sender: %w", err)
	}

	// Left as a nil interface when Twilio is not configured.
	var provider otp.Provider
	if cfg.ProviderConfigured() {
		provider = twilio.NewVerifier(cfg)
		slog.Info("external verification provider enabled", "provider", "twilio")
	}

	userSvc := user.NewService(userDeps)
	sessionSvc := session.NewService(session.ServiceDeps{
		SessionRepo: dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions),
		Users:       userSvc,
		JWTProvider: jwtProvider,
		Expiry:      cfg.SessionExpiry,
	})
	otpSvc := otp.NewService(otp.ServiceDeps{
		EmailCodes:             emailCodes,
		PhoneCodes:             phoneCodes,
		Provider:               provider,
		Users:                  userSvc,
		Sessions:               sessionSvc,
		SMS:                    smsSender,
		Mailer:                 smtp.NewMailer(cfg),
		DefaultCountryCode:     cfg.DefaultCountryCode,
		PlaceholderEmailDomain: cfg.PlaceholderEmailDomain,
		CodeTTL:                cfg.OTPTTL,
	})
	claimSvc := claim.NewService(claim.ServiceDeps{
		ClaimRepo: dynamo.NewClaimRepo(dynamoClient, cfg.DynamoTables.UsernameClaims),
	})

	router := transporthttp.NewRouter(cfg, transporthttp.Services{
		OTP:      otpSvc,
		Users:    userSvc,
		Sessions: sessionSvc,
		Claims:   claimSvc,
	}, jwtProvider)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// codeStores builds the email and phone verification code stores for CODE_STORE.
func codeStores(ctx context.Context, cfg *config.Config, client dynamo.API) (otp.CodeStore, otp.CodeStore, error) {
	slog.Info("verification code store selected", "backend", cfg.CodeStore)
	switch cfg.CodeStore {
	case "dynamo":
		return dynamo.NewVerificationRepo(client, cfg.DynamoTables.EmailVerifications, cfg.OTPRetention),
			dynamo.NewVerificationRepo(client, cfg.DynamoTables.PhoneVerifications, cfg.OTPRetention),
			nil
	case "redis":
		rdb, err := redisinfra.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return redisinfra.NewCodeStore(rdb, redisinfra.EmailPrefix, cfg.OTPRetention),
			redisinfra.NewCodeStore(rdb, redisinfra.PhonePrefix, cfg.OTPRetention),
			nil
	case "memory":
		email := memory.NewCodeStore(cfg.OTPRetention)
		phone := memory.NewCodeStore(cfg.OTPRetention)
		go email.Run(ctx, time.Minute)
		go phone.Run(ctx, time.Minute)
		return email, phone, nil
	default:
		return nil, nil, fmt.Errorf("unknown CODE_STORE %q", cfg.CodeStore)
	}
}
