package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sdko-org/photo-insights/internal/cache"
	"github.com/sdko-org/photo-insights/internal/config"
	"github.com/sdko-org/photo-insights/internal/database"
	"github.com/sdko-org/photo-insights/internal/handlers"
	httpserver "github.com/sdko-org/photo-insights/internal/http"
	"github.com/sdko-org/photo-insights/internal/storage"
	"github.com/sdko-org/photo-insights/internal/vision"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Invalid LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Missing storage or vision settings are reported per request.
	var store storage.Storage
	if cfg.Storage.Configured() {
		store, err = storage.New(logger, cfg.Storage)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize storage")
		}
	} else {
		logger.WithField("missing", cfg.Storage.MissingSetting()).Warn("Storage not configured")
	}

	var analyzer handlers.Analyzer
	if cfg.Vision.Configured() {
		analyzer = vision.NewClient(logger, cfg.Vision)
	} else {
		logger.Warn("Vision endpoint not configured")
	}

	var db *gorm.DB
	if cfg.Postgres.Enabled {
		db, err = database.NewPostgresDB(logger, cfg.Postgres)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize database")
		}
		go database.NewAccessLogPurger(logger, db, cfg.AccessLogRetention).Start(ctx)
	}

	limiter := handlers.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	go limiter.Cleanup(ctx, 3*time.Minute)

	apiHandler := handlers.NewAPIHandler(logger, cfg, store, analyzer, cache.NewRecentCache(cfg.RecentCacheTTL()))

	r := mux.NewRouter()
	r.Use(handlers.LoggingMiddleware(logger, db))
	r.Use(limiter.Middleware)
	handlers.RegisterRoutes(r, logger, apiHandler, cfg.APIKey)

	// Preflights never match a mux route, so CORS wraps the whole router.
	handler := handlers.CORSMiddleware(cfg.CORSAllowedOrigins)(r)

	if err := httpserver.Run(ctx, logger, cfg.Server, handler); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}
