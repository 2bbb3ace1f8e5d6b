package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"security-gate/internal/config"
	"security-gate/internal/handler"
	"security-gate/internal/logger"
	"security-gate/internal/metrics"
	"security-gate/internal/middleware"
	"security-gate/internal/service"
	"security-gate/internal/storage"
)

func main() {
	// Carregar configurações
	configLoader := config.NewConfigLoader()
	cfg, err := configLoader.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Inicializar logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	appLogger.Info("Starting Security Gate API", map[string]interface{}{
		"version":   "1.0.0",
		"log_level": cfg.LogLevel,
		"port":      cfg.ServerPort,
	})

	if cfg.CSRFSecretGenerated {
		appLogger.Warn("CSRF_SECRET not set, using a random secret; tokens will not survive restarts", nil)
	}

	// Inicializar storage
	factory := storage.NewStorageFactory()
	windowStore := factory.CreateWindowStore(appLogger)

	sink, err := factory.CreateEventSink(&storage.EventSinkConfig{
		Type:     storage.SinkType(cfg.EventSink),
		Capacity: cfg.EventSinkCapacity,
		RedisConfig: &storage.RedisConfig{
			Host:      cfg.RedisHost,
			Port:      cfg.RedisPort,
			Password:  cfg.RedisPassword,
			Database:  cfg.RedisDB,
			EventsKey: cfg.RedisEventsKey,
		},
	}, appLogger)
	if err != nil {
		appLogger.Error("Failed to create event sink", err, map[string]interface{}{
			"type": cfg.EventSink,
		})
		os.Exit(1)
	}
	events := storage.NewAsyncEventSink(sink, cfg.EventSinkCapacity, appLogger)

	// Métricas
	recorder := metrics.NewRecorder()
	recorder.TrackClients(windowStore)
	recorder.TrackDroppedEvents(events.Dropped)

	// Inicializar services
	limiter := service.NewRateLimiterService(windowStore, cfg.RateLimit, appLogger)
	validator := service.NewContentValidator(service.NewPatternScreener(), cfg.Security)
	csrfTTL := time.Duration(cfg.Security.CSRFTokenTTL) * time.Second
	csrf := service.NewCSRFService(cfg.CSRFSecret, csrfTTL, appLogger)

	// Inicializar handlers
	handlers := handler.NewHandlers(handler.Dependencies{
		Limiter: limiter,
		CSRF:    csrf,
		Store:   windowStore,
		Events:  events,
		Gate: middleware.NewSecurityGateMiddleware(
			limiter,
			validator,
			limiter.Config(),
			cfg.Security,
			appLogger,
			middleware.WithEventSink(events),
			middleware.WithMetrics(recorder),
			middleware.WithTrustedProxyHeaders(cfg.TrustProxyHeaders),
		),
		CSRFGuard:  middleware.NewCSRFMiddleware(csrf, cfg.Security, appLogger, nil),
		Prometheus: recorder.Handler(),
		CSRFTTL:    csrfTTL,
		Logger:     appLogger,
	})

	// Configurar Gin
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Criar router
	router := gin.New()

	// Middlewares globais
	router.Use(gin.Recovery())

	// Middleware de logging customizado
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))

	// Configurar rotas
	handlers.SetupRoutes(router)

	// Configurar servidor HTTP
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Iniciar servidor em goroutine
	go func() {
		appLogger.Info("Starting HTTP server", map[string]interface{}{
			"port": cfg.ServerPort,
			"addr": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Failed to start server", err, nil)
			os.Exit(1)
		}
	}()

	// Aguardar sinais de interrupção
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	appLogger.Info("Security Gate API is running", map[string]interface{}{
		"port": cfg.ServerPort,
		"endpoints": []string{
			"GET  /health",
			"GET  /metrics",
			"GET  /metrics/prometheus",
			"GET  /csrf-token",
			"GET  /",
			"POST /echo             (csrf protected)",
			"GET  /admin/status",
			"POST /admin/reset",
			"GET  /admin/events",
		},
		"rate_limits": map[string]interface{}{
			"per_minute":     cfg.RateLimit.RequestsPerMinute,
			"per_hour":       cfg.RateLimit.RequestsPerHour,
			"per_day":        cfg.RateLimit.RequestsPerDay,
			"burst":          cfg.RateLimit.BurstLimit,
			"block_duration": cfg.RateLimit.BlockDuration,
		},
		"event_sink":    cfg.EventSink,
		"blocked_ips":   len(cfg.Security.BlockedIPs),
		"csrf_enabled":  cfg.Security.EnableCSRFProtection,
		"xss_enabled":   cfg.Security.EnableXSSProtection,
		"trust_proxies": cfg.TrustProxyHeaders,
	})

	// Bloquear até receber sinal
	<-quit
	appLogger.Info("Shutting down server...", nil)

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", err, nil)
		os.Exit(1)
	}

	if err := events.Close(); err != nil {
		appLogger.Error("Failed to close event sink", err, nil)
	}
	if err := windowStore.Close(); err != nil {
		appLogger.Error("Failed to close window store", err, nil)
	}

	appLogger.Info("Server stopped gracefully", nil)
}
