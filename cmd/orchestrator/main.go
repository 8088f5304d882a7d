package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/orderflow/backbone/common/config"
	"github.com/orderflow/backbone/orchestrator"
)

func main() {
	_ = godotenv.Load()

	var cfg config.OrchestratorConfig
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	app, err := orchestrator.Build(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		logger.Error("app exited with error", zap.Error(err))
		os.Exit(1)
	}
}
