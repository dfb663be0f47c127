// Package main checks whether a mint is tradable against SOL. It needs no wallet.
//
// Usage:
//
//	probe -mint <address> [-wait 60s] [-config config.yaml] [-env .env]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nep7une-w/jupiter-trading-bot/internal/app"
	"github.com/nep7une-w/jupiter-trading-bot/internal/config"
	"github.com/nep7une-w/jupiter-trading-bot/internal/execution"
)

func main() {
	mint := flag.String("mint", "", "Token mint to check (required)")
	wait := flag.Duration("wait", 0, "Keep probing up to this long (0 = MAX_RETRY_DURATION_MS)")
	configPath := flag.String("config", "", "Optional YAML config file")
	envFile := flag.String("env", ".env", "Optional .env file")

	flag.Parse()

	if *mint == "" {
		fmt.Fprintln(os.Stderr, "-mint is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger, *mint, *wait)
	stop()

	switch {
	case errors.Is(err, errNoRoute):
		fmt.Printf("%s: no route\n", *mint)
		os.Exit(1)
	case err != nil:
		logger.Error("probe failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	fmt.Printf("%s: tradable\n", *mint)
}

var errNoRoute = errors.New("no route")

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, mint string, wait time.Duration) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	p := a.Probe()
	if wait > 0 {
		p = execution.NewProbe(a.Quotes, execution.ProbeConfig{Interval: time.Second, MaxDuration: wait}, logger)
	}

	if !p.IsAvailable(ctx, mint) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return errNoRoute
	}
	return nil
}
