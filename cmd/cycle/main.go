// Package main runs one buy, hold, sell cycle for a mint.
//
// Usage:
//
//	cycle -mint <address> [-probe] [-buy-sol 0.05] [-dry-run] [-config config.yaml] [-env .env]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nep7une-w/jupiter-trading-bot/internal/app"
	"github.com/nep7une-w/jupiter-trading-bot/internal/config"
	"github.com/nep7une-w/jupiter-trading-bot/internal/flow"
)

func main() {
	mint := flag.String("mint", "", "Token mint to trade (required)")
	probe := flag.Bool("probe", false, "Wait for a route before buying")
	buySOL := flag.String("buy-sol", "", "Override the buy amount in SOL for this run")
	dryRun := flag.Bool("dry-run", false, "Build, sign and simulate the buy without sending")
	configPath := flag.String("config", "", "Optional YAML config file")
	envFile := flag.String("env", ".env", "Optional .env file")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics address (overrides METRICS_ADDR)")

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
	if *metricsAddr != "" {
		cfg.Telemetry.MetricsAddr = *metricsAddr
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *mint, *probe, *buySOL, *dryRun); err != nil {
		logger.Error("cycle failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, mint string, probe bool, buySOL string, dryRun bool) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	a.ServeMetrics(ctx, cfg.Telemetry.MetricsAddr)
	logger.Info("starting", zap.String("mint", mint), zap.Stringer("app", a))

	ctrl, err := a.Controller(probe)
	if err != nil {
		return err
	}

	req := flow.Request{Mint: mint, SkipProbe: !probe}
	if buySOL != "" {
		lamports, err := config.SOLToLamports(buySOL)
		if err != nil {
			return fmt.Errorf("-buy-sol: %w", err)
		}
		req.BuyLamports = &lamports
	}

	if dryRun {
		res, err := ctrl.DryRun(ctx, req)
		if err != nil {
			return err
		}
		logger.Info("dry run complete",
			zap.String("signature", res.Signature),
			zap.Uint64("quoted_out", res.Quote.OutAmount),
			zap.Strings("route", res.Quote.Venues()),
			zap.Int("slippage_bps", res.SlippageBps))
		return nil
	}

	pos, err := ctrl.Run(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("interrupted", zap.String("state", string(pos.FailedIn)))
		}
		return err
	}

	logger.Info("cycle complete",
		zap.String("position", pos.ID.String()),
		zap.String("buy", pos.BuySignature),
		zap.String("sell", pos.SellSignature),
		zap.Uint64("lamports_in", pos.LamportsIn),
		zap.Uint64("lamports_out", pos.LamportsOut),
		zap.Duration("duration", pos.Duration()))
	return nil
}
