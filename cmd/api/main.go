package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akarpov/linkpulse/internal/config"
	"github.com/akarpov/linkpulse/internal/enrich"
	"github.com/akarpov/linkpulse/internal/handler"
	"github.com/akarpov/linkpulse/internal/middleware"
	"github.com/akarpov/linkpulse/internal/repository"
	"github.com/akarpov/linkpulse/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Миграция схемы
	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer migrateCancel()
	if err := db.Migrate(migrateCtx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Подключение к Redis
	redis, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Инициализация репозиториев
	linkRepo := repository.NewLinkRepository(db)
	cacheRepo := repository.NewCacheRepository(redis)
	clickRepo := repository.NewClickRepository(db)

	// Инициализация сервисов
	linkService := service.NewLinkService(linkRepo, cacheRepo, logger)
	analyticsService := service.NewAnalyticsService(linkRepo, clickRepo, logger)

	// Geo-резолвер с кэшем в Redis и троттлингом внешнего API
	geoClient := enrich.NewGeoClient(enrich.GeoClientConfig{
		APIEndpoint: cfg.Geo.APIEndpoint,
		CacheTTL:    cfg.Geo.CacheTTL,
		Timeout:     cfg.Geo.Timeout,
		MaxPerMin:   cfg.Geo.MaxPerMin,
	}, redis.Client, logger)

	// Инициализация процессора кликов (Worker Pool)
	clickProcessor := service.NewClickProcessor(clickRepo, linkRepo, geoClient, service.ClickProcessorConfig{
		IPSalt:      cfg.Clicks.IPSalt,
		WorkerCount: cfg.Clicks.Workers,
		BufferSize:  cfg.Clicks.BufferSize,
	}, logger)
	clickProcessor.Start()
	defer clickProcessor.Stop()

	// Инициализация middleware
	var counterStore middleware.CounterStore
	if cfg.RateLimit.Store == "redis" {
		counterStore = middleware.NewRedisCounterStore(redis.Client, "ratelimit:")
	} else {
		counterStore = middleware.NewMemoryCounterStore()
	}
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Window:       cfg.RateLimit.Window,
		GeneralLimit: cfg.RateLimit.GeneralLimit,
		CreateLimit:  cfg.RateLimit.CreateLimit,
	}, counterStore, logger)

	// API ключ опционален: анонимные запросы работают без аккаунта
	var apiKeyMiddleware gin.HandlerFunc
	if len(cfg.Auth.APIKeys) > 0 {
		apiKeyMiddleware = middleware.OptionalAPIKey(cfg.Auth.APIKeys)
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	}

	// Настройка роутера
	router := handler.NewRouter(linkService, analyticsService, clickProcessor, rateLimiter, apiKeyMiddleware, cfg.App.BaseURL, logger)

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
