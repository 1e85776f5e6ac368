package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/config"
	"github.com/medconnect/medconnect/internal/domain/broadcast"
	"github.com/medconnect/medconnect/internal/domain/chat"
	"github.com/medconnect/medconnect/internal/domain/identity"
	"github.com/medconnect/medconnect/internal/domain/pharmacy"
	"github.com/medconnect/medconnect/internal/domain/prescription"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/blobstore"
	"github.com/medconnect/medconnect/internal/platform/db"
	"github.com/medconnect/medconnect/internal/platform/middleware"
	"github.com/medconnect/medconnect/internal/platform/notification"
	"github.com/medconnect/medconnect/internal/platform/telemetry"
	"github.com/medconnect/medconnect/internal/platform/websocket"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// notificationSinks returns the publisher fan-out: live sockets always, plus
// Kafka when brokers are configured or the log otherwise. The returned
// close func flushes the Kafka writer.
func notificationSinks(cfg *config.Config, hub *websocket.Hub, logger zerolog.Logger) (notification.Publisher, func() error) {
	sinks := notification.Multi{notification.NewHubPublisher(hub)}
	if cfg.KafkaEnabled() {
		kafka := notification.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		return append(sinks, kafka), kafka.Close
	}
	return append(sinks, notification.NewLogPublisher(logger)), func() error { return nil }
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)
	if cfg.UsingDevSigningKey() {
		logger.Warn().Msg("signing tokens with the development key")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")
	txm := db.NewTxManager(pool)

	// Realtime delivery
	hub := websocket.NewHub(logger)
	upgrader := websocket.NewUpgrader(hub, cfg.CORSOrigins)
	sinks, closeSinks := notificationSinks(cfg, hub, logger)

	// Metrics
	metrics := telemetry.New(true)
	metrics.Gauge("ws_clients", "Connected WebSocket clients.", func() float64 {
		return float64(hub.ClientCount())
	})
	notifier := notification.NewNotifier(metrics.Publisher(sinks), logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(echomw.Secure())
	e.Use(echomw.BodyLimit("6M"))

	// Auth middleware
	tokens := newTokenIssuer(cfg)
	e.Use(auth.Middleware(tokens))

	// API group
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	// Identity domain
	userRepo := identity.NewUserRepoPG(pool)
	identitySvc := identity.NewService(userRepo, identity.NewPatientProfileRepoPG(pool),
		identity.NewPharmacyProfileRepoPG(pool), txm, tokens, logger)
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)

	// Pharmacy directory and catalogue
	medicineRepo := pharmacy.NewMedicineRepoPG(pool)
	directory := pharmacy.NewDirectory(pharmacy.NewLocationRepoPG(pool))
	pharmacySvc := pharmacy.NewService(medicineRepo, directory, cfg.MatchRadiusKm, logger)
	pharmacy.NewHandler(pharmacySvc).RegisterRoutes(apiV1)

	// Chat rooms
	registry := chat.NewRegistry(chat.NewRepoPG(pool), txm, hub, logger)
	chat.NewHandler(registry, upgrader, logger).RegisterRoutes(apiV1)

	// Prescriptions and orders
	prescriptionRepo := prescription.NewPrescriptionRepoPG(pool)
	orderRepo := prescription.NewOrderRepoPG(pool)
	matcher := prescription.NewMatcher(prescriptionRepo, orderRepo, directory, userRepo, medicineRepo,
		txm, notifier, prescription.MatchConfig{
			RadiusKm:     cfg.MatchRadiusKm,
			VerifiedOnly: cfg.MatchVerifiedOnly,
		}, logger)
	prescriptionSvc := prescription.NewService(prescriptionRepo, orderRepo, directory, medicineRepo,
		registry, txm, notifier, logger)
	prescription.NewHandler(matcher, prescriptionSvc).RegisterRoutes(apiV1)

	// Medication broadcasts
	broadcastSvc := broadcast.NewService(broadcast.NewBroadcastRepoPG(pool), broadcast.NewResponseRepoPG(pool),
		txm, notifier, time.Duration(cfg.DiscountWindowDays)*24*time.Hour, logger)
	broadcast.NewHandler(broadcastSvc).RegisterRoutes(apiV1)

	// Prescription image uploads
	blobstore.NewHandler(blobstore.NewImages(blobstore.NewPGStore(pool))).RegisterRoutes(apiV1)

	// Notification socket
	websocket.NewNotificationHandler(upgrader).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	notifier.Wait()
	if err := closeSinks(); err != nil {
		logger.Error().Err(err).Msg("close notification sinks")
	}
	logger.Info().Msg("server stopped")
	return nil
}
