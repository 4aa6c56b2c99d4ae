// Server runs the auth HTTP API: registration, login, refresh rotation,
// logout, and session management.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	authhandler "storyhub/backend/internal/auth/handler"
	authsvc "storyhub/backend/internal/auth/service"
	"storyhub/backend/internal/audit"
	auditrepo "storyhub/backend/internal/audit/repository"
	"storyhub/backend/internal/config"
	"storyhub/backend/internal/db"
	"storyhub/backend/internal/ratelimit"
	"storyhub/backend/internal/security"
	"storyhub/backend/internal/server"
	sessionrepo "storyhub/backend/internal/session/repository"
	sessionsvc "storyhub/backend/internal/session/service"
	"storyhub/backend/internal/telemetry"
	telemetryotel "storyhub/backend/internal/telemetry/otel"
	"storyhub/backend/internal/telemetry/producer"
	userrepo "storyhub/backend/internal/user/repository"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config")
	}
	if cfg.Env == "development" {
		log.SetLevel(logrus.DebugLevel)
	}

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database")
	}
	defer sqlDB.Close()

	priv, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.WithError(err).Fatal("JWT_PRIVATE_KEY")
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.WithError(err).Fatal("JWT_PUBLIC_KEY")
	}
	tokens := security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	ctx := context.Background()
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "storyhub", cfg.OTLPInsecure)
	if err != nil {
		log.WithError(err).Fatal("telemetry")
	}
	providers.SetGlobal()

	recorder, err := telemetry.NewRecorder(providers.MeterProvider.Meter("storyhub/auth"), log)
	if err != nil {
		log.WithError(err).Fatal("telemetry recorder")
	}
	go recorder.Run()

	emitters := telemetry.MultiEmitter{
		telemetryotel.NewEventEmitter(providers.LoggerProvider),
		recorder,
	}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		log.WithError(err).Fatal("kafka producer")
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		defer kafkaProducer.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}
	limiter := ratelimit.New(redisClient, cfg.RateLimitWindowDuration(), int64(cfg.RateLimitMax), log)

	sessions := sessionsvc.NewService(sessionrepo.NewPostgresRepository(sqlDB), sessionsvc.Config{
		RefreshTTL:           cfg.RefreshTTLDuration(),
		RefreshTTLRememberMe: cfg.RefreshTTLRememberMeDuration(),
		RefreshTokenBytes:    cfg.RefreshTokenBytes,
	})
	auditor := audit.NewLogger(auditrepo.NewPostgresRepository(sqlDB), audit.ClientFromContext, log)
	auth := authsvc.NewAuthService(
		userrepo.NewPostgresRepository(sqlDB),
		sessions,
		security.NewHasher(cfg.BcryptCost),
		tokens,
		auditor,
		emitters,
		authsvc.Config{
			PasswordChangePolicy: cfg.PasswordChangePolicy,
			LogoutRateWindow:     cfg.LogoutRateWindow(),
			LogoutRateMax:        int64(cfg.LogoutRateMax),
		},
		log,
	)

	router := server.NewRouter(server.Deps{
		Auth:    authhandler.NewHandler(auth, log),
		Tokens:  tokens,
		Limiter: limiter,
		DB:      sqlDB,
		Log:     log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("serve")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down http server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}

	// Let in-flight async telemetry emits finish before tearing down providers.
	time.Sleep(telemetry.ShutdownDrainDuration)
	recorder.Close()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("telemetry shutdown")
	}
	log.Info("http server stopped")
}
