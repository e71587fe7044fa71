package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/openedu/course-service/internal/cache"
	"github.com/openedu/course-service/internal/config"
	"github.com/openedu/course-service/internal/events"
	"github.com/openedu/course-service/internal/handlers"
	"github.com/openedu/course-service/internal/renderer"
	"github.com/openedu/course-service/internal/repositories/casdoor"
	"github.com/openedu/course-service/internal/repositories/postgres"
	"github.com/openedu/course-service/internal/services"
	"github.com/openedu/course-service/internal/validator"
	"github.com/openedu/course-service/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Failed to initialize Redis, running without cache", "error", err)
		}
	}

	repoConfig := &postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
		Casdoor: casdoor.Config{
			Endpoint:         cfg.Casdoor.Endpoint,
			ClientID:         cfg.Casdoor.ClientID,
			ClientSecret:     cfg.Casdoor.ClientSecret,
			Certificate:      cfg.Casdoor.Cert,
			OrganizationName: cfg.Casdoor.Organization,
			ApplicationName:  cfg.Casdoor.Application,
		},
		Logger: logger,
	}
	repoManager := postgres.NewRepositoryManager(repoConfig, logger)
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	cacheManager := cache.NewCacheManager(redisClient)

	var publisher events.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = events.NewKafkaEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			log.Fatalf("Failed to initialize event publisher: %v", err)
		}
	} else {
		logger.Warn("KAFKA_BROKERS not set, events will not be published")
		publisher = events.NewMockEventPublisher(logger)
	}

	rendererClient := renderer.NewClient(cfg.Renderer.URL, cfg.Renderer.Timeout, logger)

	v := validator.New()

	serviceManager := services.NewServiceManager(
		repoManager.GetRepository(),
		rendererClient,
		publisher,
		cacheManager,
		logger,
		v,
		services.ServiceManagerConfig{ShowSolutionsDelay: cfg.ShowSolutionsDelay},
	)

	handlerManager := handlers.NewHandlerManager(
		serviceManager,
		logger,
		cfg.Casdoor,
		repoManager.GetRepository().User(),
	)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if err := serviceManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown services", "error", err)
	}
	if err := repoManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown repositories", "error", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close redis client", "error", err)
		}
	}

	logger.Info("Server exited")
}
