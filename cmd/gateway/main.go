package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/orderflow/backbone/common/config"
	"github.com/orderflow/backbone/common/logger"
	"github.com/orderflow/backbone/gateway"
)

func main() {
	_ = godotenv.Load()

	var cfg config.GatewayConfig
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	log := logger.New(cfg.ServiceName)

	app, err := gateway.Build(cfg, log)
	if err != nil {
		log.Error("failed to build app", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("received shutdown signal")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Error("app exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}
