// server runs the session HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"auth-session-service/internal/audit"
	"auth-session-service/internal/config"
	"auth-session-service/internal/db"
	healthhandler "auth-session-service/internal/health/handler"
	identityhandler "auth-session-service/internal/identity/handler"
	identityrepo "auth-session-service/internal/identity/repository"
	identityservice "auth-session-service/internal/identity/service"
	"auth-session-service/internal/logger"
	"auth-session-service/internal/policy/engine"
	"auth-session-service/internal/security"
	"auth-session-service/internal/server"
	"auth-session-service/internal/server/httputil"
	"auth-session-service/internal/server/middleware"
	sessionhandler "auth-session-service/internal/session/handler"
	sessionrepo "auth-session-service/internal/session/repository"
	sessionservice "auth-session-service/internal/session/service"
	"auth-session-service/internal/telemetry"
	otelsetup "auth-session-service/internal/telemetry/otel"
	"auth-session-service/internal/telemetry/producer"
)

const (
	serviceName         = "auth-session-service"
	healthCheckInterval = 10 * time.Second
	shutdownTimeout     = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(log)

	providers, err := otelsetup.NewProviders(ctx, cfg.OTelEndpoint, serviceName, cfg.OTelInsecure)
	if err != nil {
		return err
	}
	providers.SetGlobal()

	pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	secrets := security.NewSecretGenerator(cfg.HMACKey())
	if !secrets.Keyed() {
		log.Warn("REFRESH_TOKEN_HMAC_KEY is not set; refresh secrets are stored as plain SHA-256 digests")
	}
	tokens, err := loadTokenProvider(cfg, log)
	if err != nil {
		return err
	}

	evaluator, err := engine.NewOPAEvaluator(ctx, engine.DefaultPolicy, log)
	if err != nil {
		return err
	}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.SecurityEventsKafkaBrokersList(), cfg.SecurityEventsKafkaTopic)
	if err != nil {
		return err
	}
	emitters := []telemetry.EventEmitter{otelsetup.NewEventEmitter(providers.LoggerProvider)}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		log.Info("security events forwarded to kafka", "topic", cfg.SecurityEventsKafkaTopic)
	}
	events := audit.NewSecurityLogger(log, evaluator, emitters...)

	metrics, err := sessionservice.NewMetrics(providers.Meter(serviceName + "/session"))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	sessions := sessionrepo.NewPostgresRepository(pool, secrets, cfg.StoreTimeout)
	sessionEngine := sessionservice.NewEngine(cfg.Session(), sessions, secrets, events,
		sessionservice.WithMetrics(metrics),
		sessionservice.WithLogger(log),
	)
	facade := sessionservice.NewFacade(sessionEngine, tokens)
	accounts := identityservice.NewAuthService(identityrepo.NewPostgresRepository(pool), security.NewHasher(cfg.BcryptCost))

	health := healthhandler.NewServer(sessions, evaluator, log)
	go health.Run(ctx, healthCheckInterval)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := server.NewRouter(server.Deps{
		Logger:         log,
		Sessions:       sessionhandler.NewHandler(facade, accounts, httputil.CookieOptions{Secure: cfg.CookieSecure}, log),
		Accounts:       identityhandler.NewHandler(accounts, log),
		Health:         health,
		Tokens:         tokens,
		RateLimiter:    middleware.NewRateLimiter(ctx, cfg.AuthRateLimitRPS, cfg.AuthRateLimitBurst),
		TrustedProxies: cfg.TrustedProxiesList(),
	})
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	grpcSrv := server.NewGRPCServer(health)
	lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCHealthAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		log.Info("grpc health server listening", "addr", cfg.GRPCHealthAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("server failed", "error", runErr)
	}

	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	grpcSrv.GracefulStop()

	// Let in-flight async security-event emits finish before closing their sinks.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := kafkaProducer.Close(); err != nil {
		log.Error("kafka producer close", "error", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error("otel shutdown", "error", err)
	}
	log.Info("stopped")
	return runErr
}

// loadTokenProvider reads the JWT key pair. Outside production, missing keys fall back to an ephemeral key.
func loadTokenProvider(cfg *config.Config, log *slog.Logger) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey == "" && cfg.JWTPublicKey == "" && !cfg.IsProduction() {
		log.Warn("JWT keys not set; using an ephemeral signing key, access tokens will not survive a restart")
		return security.NewEphemeralTokenProvider(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessTTL)
	}
	return security.LoadTokenProvider(cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessTTL)
}
