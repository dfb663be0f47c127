// Package app wires configuration into the cycle components shared by the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nep7une-w/jupiter-trading-bot/internal/config"
	"github.com/nep7une-w/jupiter-trading-bot/internal/execution"
	"github.com/nep7une-w/jupiter-trading-bot/internal/flow"
	"github.com/nep7une-w/jupiter-trading-bot/internal/jupiter"
	"github.com/nep7une-w/jupiter-trading-bot/internal/logger"
	"github.com/nep7une-w/jupiter-trading-bot/internal/notify"
	"github.com/nep7une-w/jupiter-trading-bot/internal/observability"
	"github.com/nep7une-w/jupiter-trading-bot/internal/solana"
	"github.com/nep7une-w/jupiter-trading-bot/internal/storage"
	"github.com/nep7une-w/jupiter-trading-bot/internal/storage/memory"
	"github.com/nep7une-w/jupiter-trading-bot/internal/storage/migrations"
	"github.com/nep7une-w/jupiter-trading-bot/internal/storage/postgres"
	"github.com/nep7une-w/jupiter-trading-bot/internal/wallet"
)

// NewLogger builds the process logger from cfg.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	opts := logger.DefaultOptions()
	if cfg.Log.Level != "" {
		opts.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		opts.Format = cfg.Log.Format
	}
	opts.Dir = cfg.Log.Dir
	return logger.New(opts)
}

// App holds the long-lived clients built from configuration.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	RPC     solana.RPCClient
	WS      solana.SignatureSubscriber // nil without a WS endpoint
	Jupiter jupiter.Client
	Quotes  *execution.QuoteGateway
	Store   storage.PositionStore
	Notify  notify.Notifier

	pool *postgres.Pool
}

// New builds the clients. It does not need a wallet.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logger.OrNop(log)

	a := &App{Config: cfg, Logger: log}

	a.RPC = solana.NewHTTPClient(cfg.Solana.RPCEndpoint,
		solana.WithObserver(func(method string, elapsed time.Duration, err error) {
			observability.RecordRPCLatency(method, elapsed.Seconds(), err)
		}),
	)

	jupOpts := []jupiter.ClientOption{
		jupiter.WithRateLimit(cfg.Jupiter.RateLimitRPS, 1),
		jupiter.WithLogger(log),
	}
	if cfg.Jupiter.APIKey != "" {
		jupOpts = append(jupOpts, jupiter.WithAPIKey(cfg.Jupiter.APIKey))
	}
	a.Jupiter = jupiter.NewHTTPClient(cfg.Jupiter.APIURL, jupOpts...)
	a.Quotes = execution.NewQuoteGateway(a.Jupiter, log)

	if cfg.Solana.WSEndpoint != "" {
		wsCfg := solana.DefaultWSConfig()
		ws, err := solana.NewWSClient(ctx, cfg.Solana.WSEndpoint, &wsCfg, log)
		if err != nil {
			log.Warn("websocket unavailable, confirmation will poll only", zap.Error(err))
		} else {
			a.WS = ws
		}
	}

	if cfg.Storage.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool, log); err != nil {
			pool.Close()
			a.Close()
			return nil, err
		}
		a.pool = pool
		a.Store = postgres.NewPositionStore(pool)
	} else {
		a.Store = memory.NewPositionStore()
	}

	a.Notify = notify.Nop{}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, log)
		if err != nil {
			log.Warn("telegram unavailable, notifications disabled", zap.Error(err))
		} else {
			a.Notify = tg
		}
	}

	return a, nil
}

// Probe builds the availability probe.
func (a *App) Probe() *execution.Probe {
	return execution.NewProbe(a.Quotes, execution.ProbeConfig{
		Interval:    execution.DefaultProbeInterval,
		MaxDuration: a.Config.MaxRetryDuration(),
	}, a.Logger)
}

// Controller builds the cycle controller. It requires the signing key.
func (a *App) Controller(withProbe bool) (*flow.Controller, error) {
	cfg := a.Config
	if err := cfg.RequireWallet(); err != nil {
		return nil, err
	}
	w, err := wallet.FromBase58(cfg.Wallet.PrivateKey)
	if err != nil {
		return nil, err
	}
	buyLamports, err := cfg.BuyLamports()
	if err != nil {
		return nil, err
	}

	opts := flow.Options{
		Quotes:   a.Quotes,
		Preparer: execution.NewPreparer(a.Jupiter, w, a.Logger),
		Submitter: execution.NewSubmitter(a.RPC, a.WS, execution.SubmitterConfig{
			PollInterval: cfg.ConfirmPoll(),
			Timeout:      cfg.ConfirmTimeout(),
		}, a.Logger),
		Watcher: execution.NewWatcher(a.RPC, execution.WatcherConfig{
			MaxAttempts: cfg.Timing.BalanceCheckRetries,
			Interval:    cfg.BalanceCheckDelay(),
		}, a.Logger),
		Wallet:   w,
		RPC:      a.RPC,
		Store:    a.Store,
		Notifier: a.Notify,
		Logger:   a.Logger,
		Slippage: execution.SlippagePolicy{
			FlatBps:            cfg.Trading.SlippageBps,
			NewAssetMultiplier: cfg.Trading.NewAssetSlippageMultiplier,
			MinBps:             cfg.Trading.MinSlippageBps,
			MaxBps:             cfg.Trading.MaxSlippageBps,
			NewAssetMode:       cfg.Trading.NewAssetMode,
		},
		Priority: execution.PriorityConfig{
			MaxLamports:                   cfg.Trading.PriorityFeeLamports,
			Level:                         cfg.Trading.PriorityLevel,
			ComputeUnitLimit:              cfg.Trading.ComputeUnitLimit,
			ComputeUnitPriceMicroLamports: cfg.Trading.ComputeUnitPriceMicroLamports,
		},
		BuyLamports: buyLamports,
		SellDelay:   cfg.SellDelay(),
		Policies:    flow.DefaultPolicies(cfg.RetryDelay()),
	}
	if withProbe {
		opts.Probe = a.Probe()
	}

	a.Logger.Info("wallet loaded", zap.String("address", w.Address()))
	return flow.New(opts), nil
}

// ServeMetrics serves /metrics and /health on addr until ctx is done.
func (a *App) ServeMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		a.Logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("metrics server", zap.Error(err))
		}
	}()
}

// Close releases connections.
func (a *App) Close() {
	if a.WS != nil {
		if err := a.WS.Close(); err != nil {
			a.Logger.Debug("close websocket", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.Logger.Sync()
}

// String summarizes the endpoints in use.
func (a *App) String() string {
	return fmt.Sprintf("rpc=%s ws=%t jupiter=%s journal=%T", a.Config.Solana.RPCEndpoint, a.WS != nil, a.Config.Jupiter.APIURL, a.Store)
}
