package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/stephenolajire/stumart-query/config"
	"github.com/stephenolajire/stumart-query/core"
	"github.com/stephenolajire/stumart-query/filter"
	"github.com/stephenolajire/stumart-query/logger"
	"github.com/stephenolajire/stumart-query/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config, empty for defaults")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("Error loading config:", err)
	}

	zapLogger, syncLogger, err := logger.New(cfg.Logging.Production)
	if err != nil {
		log.Fatal("Error creating logger:", err)
	}
	defer func() { _ = syncLogger() }()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, sess, err := core.Setup(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to set up services", zap.Error(err))
	}

	if token := os.Getenv(config.EnvPrefix + "_TOKEN"); token != "" {
		sess.Login(session.Credentials{
			Token:       token,
			Institution: os.Getenv(config.EnvPrefix + "_INSTITUTION"),
		})
	}

	if err := registry.StartAll(ctx); err != nil {
		zapLogger.Fatal("Failed to start services", zap.Error(err))
	}

	// Warm the shop list and keep authenticated order lists fresh
	shops := sess.Queries().Shops(filter.Set{})
	if st := shops.Load(ctx); st.Error != nil {
		zapLogger.Warn("Initial shop load failed", zap.Error(st.Error))
	}
	if sess.AuthContext().Authenticated {
		orders := sess.Queries().Orders(filter.Set{})
		orders.StartAutoRefetch(ctx)
		defer orders.Close()
	}

	zapLogger.Info("Services started", zap.String("port", cfg.Ops.Port))

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Received shutdown signal, stopping services...")
	cancel()
	registry.StopAll()
}
