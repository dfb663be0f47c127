package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
	"github.com/nep7une-w/jupiter-trading-bot/internal/observability"
	"github.com/nep7une-w/jupiter-trading-bot/internal/solana"
)

// Default balance polling settings.
const (
	DefaultBalanceAttempts = 5
	DefaultBalanceInterval = 2 * time.Second
)

// WatcherConfig holds balance polling settings.
type WatcherConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// BalanceChange is the result of waiting for a balance to move.
type BalanceChange struct {
	Initial  uint64
	Final    uint64
	Decimals uint8
	Changed  bool
	Polls    int // re-polls after the baseline
}

// Watcher polls an owner's balance of a mint.
type Watcher struct {
	rpc    solana.RPCClient
	cfg    WatcherConfig
	logger *zap.Logger
}

// NewWatcher creates a balance watcher.
func NewWatcher(rpc solana.RPCClient, cfg WatcherConfig, logger *zap.Logger) *Watcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultBalanceAttempts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultBalanceInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		rpc:    rpc,
		cfg:    cfg,
		logger: logger.Named("balance"),
	}
}

// Sample reads owner's current balance of mint. The native mint reads lamports.
func (w *Watcher) Sample(ctx context.Context, owner, mint string) (domain.BalanceSample, error) {
	sample := domain.BalanceSample{Owner: owner, Mint: mint}

	if solana.IsNative(mint) {
		lamports, err := w.rpc.GetBalance(ctx, owner)
		observability.RecordBalancePoll(err)
		if err != nil {
			return sample, err
		}
		sample.Amount = lamports
		sample.Decimals = solana.NativeDecimals
		return sample, nil
	}

	bal, err := w.rpc.GetTokenBalance(ctx, owner, mint)
	observability.RecordBalancePoll(err)
	if err != nil {
		return sample, err
	}
	sample.Amount = bal.Amount
	sample.Decimals = bal.Decimals
	return sample, nil
}

// WaitForChange takes an initial sample and waits for the balance to differ from it.
func (w *Watcher) WaitForChange(ctx context.Context, owner, mint string) BalanceChange {
	initial, err := w.Sample(ctx, owner, mint)
	if err != nil {
		w.logger.Warn("initial balance sample failed, assuming zero",
			zap.String("mint", mint), zap.Error(err))
	}
	return w.WaitForChangeFrom(ctx, owner, mint, initial.Amount)
}

// WaitForChangeFrom re-polls up to MaxAttempts times until the balance differs
// from baseline. It never fails: sample errors are logged and use up an attempt.
// When nothing changes, Final holds the last amount observed.
func (w *Watcher) WaitForChangeFrom(ctx context.Context, owner, mint string, baseline uint64) BalanceChange {
	change := BalanceChange{Initial: baseline, Final: baseline}
	log := w.logger.With(zap.String("owner", owner), zap.String("mint", mint))

	for change.Polls < w.cfg.MaxAttempts {
		if err := wait(ctx, w.cfg.Interval); err != nil {
			log.Warn("balance wait canceled", zap.Int("polls", change.Polls))
			return change
		}
		change.Polls++

		sample, err := w.Sample(ctx, owner, mint)
		if err != nil {
			log.Warn("balance sample failed", zap.Int("poll", change.Polls), zap.Error(err))
			continue
		}
		change.Final = sample.Amount
		change.Decimals = sample.Decimals

		if sample.Amount != baseline {
			change.Changed = true
			log.Info("balance changed",
				zap.Uint64("from", baseline),
				zap.Uint64("to", sample.Amount),
				zap.String("ui_amount", UIAmount(sample.Amount, sample.Decimals)),
				zap.Int("polls", change.Polls))
			return change
		}
	}

	log.Warn("balance unchanged", zap.Uint64("amount", change.Final), zap.Int("polls", change.Polls))
	return change
}

// UIAmount formats base units as a decimal string.
func UIAmount(amount uint64, decimals uint8) string {
	return decimal.NewFromUint64(amount).Shift(-int32(decimals)).String()
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
