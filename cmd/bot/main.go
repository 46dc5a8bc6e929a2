package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/pawpoint/pawpoint/internal/bothandler"
	"github.com/pawpoint/pawpoint/internal/cache"
	"github.com/pawpoint/pawpoint/internal/config"
	"github.com/pawpoint/pawpoint/internal/database"
	"github.com/pawpoint/pawpoint/internal/middleware"
	"github.com/pawpoint/pawpoint/internal/monitoring"
	"github.com/pawpoint/pawpoint/internal/places"
	"github.com/pawpoint/pawpoint/internal/telemetry"
	"github.com/pawpoint/pawpoint/internal/vision"
	"github.com/pawpoint/pawpoint/internal/weather"
)

const serviceVersion = "1.0.0"

func main() {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := config.Load()

	logConfig := telemetry.DefaultLogConfig()
	logConfig.Level = telemetry.LogLevel(cfg.LogLevel)
	if err := telemetry.InitGlobalLogger(logConfig); err != nil {
		panic(err)
	}

	ctx := telemetry.WithCorrelationID(context.Background(), telemetry.NewCorrelationID())
	logger := telemetry.GetContextualLogger(ctx)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	shutdownOTel, err := telemetry.InitializeOpenTelemetry(ctx, telemetry.LoadOTelConfigFromEnv())
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}
	defer shutdownOTel()

	placesService := places.NewService(places.NewClient(places.ClientConfig{
		Endpoint:    cfg.OverpassURL,
		UserAgent:   cfg.OverpassUserAgent,
		Timeout:     cfg.OverpassTimeout,
		MaxAttempts: cfg.OverpassAttempts,
	}))

	if metrics, err := telemetry.NewMetrics(); err != nil {
		logger.WithError(err).Warn("Failed to create metrics, continuing without them")
	} else {
		placesService = placesService.WithMetrics(metrics)
	}

	var redisService *cache.RedisService
	if cfg.RedisAddr != "" {
		redisService, err = cache.NewRedisService(&cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing without result cache")
			redisService = nil
		} else {
			defer redisService.Close()
			placesService = placesService.WithCache(redisService)
			logger.Info("Result cache enabled")
		}
	}

	var db *database.DB
	if cfg.DatabaseURL != "" {
		db, err = database.NewInstrumentedConnection(cfg.DatabaseURL)
		if err != nil {
			logger.WithError(err).Warn("Database unavailable, continuing without search history")
			db = nil
		} else {
			defer db.Close()
			store := database.NewSearchLogStore(db)
			if err := store.EnsureSchema(ctx); err != nil {
				logger.WithError(err).Warn("Failed to ensure search_logs schema")
			}
			placesService = placesService.WithHistory(store)
			logger.Info("Search history enabled")
		}
	}

	weatherService := weather.NewService(weather.Config{APIKey: cfg.CWAKey})
	if !weatherService.Enabled() {
		logger.Info("CWA_KEY not set, weather lookups disabled")
	}

	visionAnalyzer := vision.NewAnalyzer(vision.Config{
		Endpoint: cfg.VisionEndpoint,
		APIKey:   cfg.VisionAPIKey,
	})
	if !visionAnalyzer.Enabled() {
		logger.Info("Vision endpoint not set, photo analysis disabled")
	}

	b, err := bot.New(cfg.BotToken)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create bot")
	}

	botInfo, err := b.GetMe(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to get bot info")
	}
	logger.WithField("username", botInfo.Username).Info("Authorized bot account")

	handler := bothandler.NewHandler(b, placesService, weatherService, visionAnalyzer)

	health := monitoring.NewHealthChecker("pawpoint-bot", serviceVersion)
	health.RegisterTelegramBotCheck("telegram", b)
	health.RegisterHTTPServiceCheck("overpass",
		strings.Replace(cfg.OverpassURL, "/interpreter", "/status", 1), 10*time.Second, http.StatusOK)
	if redisService != nil {
		health.RegisterRedisCheck("redis", redisService)
	}
	if db != nil {
		health.RegisterDatabaseCheck("database", db)
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(handler.HandleWebhook, health)

	if cfg.WebhookURL != "" {
		if _, err := b.SetWebhook(ctx, &bot.SetWebhookParams{URL: cfg.WebhookURL + "/webhook"}); err != nil {
			logger.WithError(err).Fatal("Failed to set webhook")
		}
		logger.WithField("url", cfg.WebhookURL+"/webhook").Info("Webhook registered")
	} else {
		if _, err := b.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
			logger.WithError(err).Warn("Failed to remove webhook")
		}
		handler.RegisterHandlers()
		go b.Start(ctx)
		logger.Info("Bot started in polling mode")
	}

	srv := &http.Server{
		Addr:    ":" + cfg.BotPort,
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.BotPort).Info("Starting bot server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

// newRouter wires the webhook and health endpoints.
func newRouter(webhook gin.HandlerFunc, health *monitoring.HealthChecker) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("pawpoint-bot"))
	router.Use(middleware.LoggingMiddleware(middleware.DefaultLoggingConfig()))

	router.GET("/health", health.HealthHandler())
	router.GET("/health/ready", health.ReadinessHandler())
	router.GET("/health/live", health.LivenessHandler())

	router.POST("/webhook", webhook)

	return router
}
