package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stockroom/internal/auth"
	"stockroom/internal/backend/rest"
	"stockroom/internal/cli"
	"stockroom/internal/config"
	"stockroom/internal/inventory"
	"stockroom/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger.Initialize(logger.ParseLevel(cfg.LogLevel), cfg.IsDevelopment())
	if cfg.UsingPlaceholders() {
		logger.Warn("Backend URL or anon key not configured, requests will fail", "url", cfg.SupabaseURL)
	}

	client := rest.New(cfg.SupabaseURL, cfg.SupabaseAnonKey,
		rest.WithSessionFile(cfg.SessionFile),
		rest.WithAutoRefresh(cfg.AutoRefreshToken),
	)

	app := &cli.App{
		Account:   client,
		Store:     auth.NewStore(client, auth.WithVerbose(cfg.AuthVerboseLogging)),
		Inventory: inventory.NewService(client),
		Out:       os.Stdout,
		Err:       os.Stderr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = cli.Run(ctx, app, os.Args[1:])
	stop()
	client.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "stockctl: %v\n", err)
		os.Exit(1)
	}
}
