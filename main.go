package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keygate-hq/keygate-signer/pkg/config"
	"github.com/keygate-hq/keygate-signer/pkg/gateway"
	"github.com/keygate-hq/keygate-signer/pkg/logger"
	"github.com/keygate-hq/keygate-signer/pkg/service"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := newLogger(cfg.LoggerConfig)

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 30*time.Second)
	gw, err := gateway.Dial(dialCtx, cfg.GatewayRPCURL, cfg.WalletID, l)
	dialCancel()
	if err != nil {
		log.Fatalf("Failed to connect to execution gateway: %v", err)
	}

	// Create the signer service
	svc, err := service.NewService(cfg, gw, l)
	if err != nil {
		gw.Close()
		log.Fatalf("Failed to create signer service: %v", err)
	}

	// Set up signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		l.Notice("Received termination signal, shutting down gracefully...")
		cancel()
	}()

	// Start the service
	l.Info("Starting the signer service...")
	svc.Start(ctx)
}

func newLogger(cfg config.LoggerConfig) logger.Logger {
	if cfg.File.Path == "" {
		return logger.NewStdLogger(cfg.Coloring, cfg.Level)
	}
	// Rotated files are written without color codes
	return logger.NewStdLoggerWithWriter(logger.NewFileWriter(cfg.File), false, cfg.Level)
}
