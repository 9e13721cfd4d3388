package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hupay-bridge/internal/config"
	"github.com/hupay-bridge/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
