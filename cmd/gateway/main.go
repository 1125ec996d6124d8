package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/openshelf/api-gateway/internal/gateway"
	"github.com/openshelf/api-gateway/internal/logger"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	environment := os.Getenv("APP_ENV")
	if environment == "" {
		environment = "production"
	}

	// Default: JSON logs in production, text in development
	logJSONEnv := os.Getenv("LOG_JSON")
	var logJSON bool
	if logJSONEnv != "" {
		logJSON = logJSONEnv == "true"
	} else {
		logJSON = environment != "development"
	}

	appLogger := logger.InitLogger(environment, logJSON)

	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := gateway.LoadConfig()
	if err != nil {
		appLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	registry, err := gateway.NewServiceRegistry(cfg)
	if err != nil {
		appLogger.Error("failed to build service registry", "error", err)
		os.Exit(1)
	}

	rules := gateway.DefaultRoutes()
	if cfg.RoutesFile != "" {
		rules, err = gateway.LoadRoutesFile(cfg.RoutesFile)
		if err != nil {
			appLogger.Error("failed to load routes file", "file", cfg.RoutesFile, "error", err)
			os.Exit(1)
		}
	}
	table, err := gateway.NewRouteTable(rules)
	if err != nil {
		appLogger.Error("invalid route table", "error", err)
		os.Exit(1)
	}
	if err := registry.Validate(table.Rules()); err != nil {
		appLogger.Error("route table references unknown service", "error", err)
		os.Exit(1)
	}

	appLogger.Info("gateway configuration loaded",
		"listen_address", cfg.ListenAddress,
		"auth_service", cfg.AuthServiceURL,
		"content_service", cfg.ContentServiceURL,
		"search_service", cfg.SearchServiceURL,
		"activity_service", cfg.ActivityServiceURL,
		"media_service", cfg.MediaServiceURL,
		"routes", len(table.Rules()),
	)

	srv := gateway.NewServer(cfg, registry, table, appLogger)

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		appLogger.Info("gateway listening", "address", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("gateway server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down gateway...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("gateway shutdown error", "error", err)
	}
	appLogger.Info("gateway stopped")
}
