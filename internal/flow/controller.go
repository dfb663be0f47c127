// Package flow drives one buy, hold, sell cycle for a mint.
// States: Idle → Buying → AwaitingReceipt → Holding → Selling → Closed,
// with Failed reachable from any non-terminal state.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
	"github.com/nep7une-w/jupiter-trading-bot/internal/execution"
	"github.com/nep7une-w/jupiter-trading-bot/internal/notify"
	"github.com/nep7une-w/jupiter-trading-bot/internal/observability"
	"github.com/nep7une-w/jupiter-trading-bot/internal/retry"
	"github.com/nep7une-w/jupiter-trading-bot/internal/solana"
	"github.com/nep7une-w/jupiter-trading-bot/internal/storage"
)

// ErrRouteUnavailable is returned when the availability probe finds no route.
var ErrRouteUnavailable = errors.New("route unavailable")

// Policies are the retry policies of a cycle.
type Policies struct {
	Inner retry.Policy // simulate and submit within one attempt
	Buy   retry.Policy // whole buy attempts
	Sell  retry.Policy // whole sell attempts
}

// DefaultPolicies returns the cycle policies with outer attempts spaced from base.
func DefaultPolicies(base time.Duration) Policies {
	if base <= 0 {
		base = time.Second
	}
	inner := retry.Exponential(2, 500*time.Millisecond, 2*time.Second)
	inner.Retryable = func(err error) bool { return !execution.IsPermanent(err) }

	return Policies{
		Inner: inner,
		Buy:   retry.Exponential(3, base, 0),
		Sell:  retry.Exponential(5, base, 0),
	}
}

// Options for creating a Controller.
type Options struct {
	// Required collaborators
	Quotes    *execution.QuoteGateway
	Preparer  *execution.Preparer
	Submitter *execution.Submitter
	Watcher   *execution.Watcher
	Wallet    execution.Signer

	// Optional collaborators
	Probe    *execution.Probe      // nil disables the route gate
	RPC      solana.RPCClient      // decimals fallback for the sell side
	Store    storage.PositionStore // journal of finished cycles
	Notifier notify.Notifier       // finished cycle reports
	Logger   *zap.Logger

	Slippage    execution.SlippagePolicy
	Priority    execution.PriorityConfig
	BuyLamports uint64        // default buy amount
	SellDelay   time.Duration // hold between receipt and sell
	Policies    Policies

	Sleeper retry.Sleeper    // backoff wait, nil = real timer
	Now     func() time.Time // clock, nil = time.Now
}

// Controller runs cycles. It holds only read-only collaborators, so
// concurrent Runs for different mints are safe.
type Controller struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New creates a new Controller.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Policies.Inner.MaxAttempts == 0 {
		opts.Policies = DefaultPolicies(time.Second)
	}
	return &Controller{
		opts:   opts,
		logger: logger.Named("flow"),
		now:    now,
	}
}

// Request describes one cycle.
type Request struct {
	Mint string

	// BuyLamports overrides the configured buy amount for this cycle only.
	BuyLamports *uint64

	// SkipProbe bypasses the availability probe.
	SkipProbe bool
}

// cycle is the per-Run state.
type cycle struct {
	pos    *domain.Position
	logger *zap.Logger
	start  time.Time

	// unsettled holds submissions of the current side that timed out
	// while their blockhash was still valid. They may still land.
	unsettled []unsettledSwap
}

type unsettledSwap struct {
	tx    *domain.SignedTransaction
	quote *domain.Quote
}

// Run executes the cycle and returns the finished position. The error is
// non-nil exactly when the position ends Failed.
func (c *Controller) Run(ctx context.Context, req Request) (*domain.Position, error) {
	owner := c.opts.Wallet.PublicKey().String()
	cy := &cycle{
		pos:    domain.NewPosition(req.Mint, owner, c.now()),
		logger: c.logger.With(zap.String("mint", req.Mint)),
		start:  time.Now(),
	}
	cy.logger = cy.logger.With(zap.String("position", cy.pos.ID.String()))

	err := c.run(ctx, cy, req)
	if err != nil {
		from := cy.pos.State
		cy.pos.Fail(err, c.now())
		c.transitioned(cy, from)
		cy.logger.Error("cycle failed", zap.String("failed_in", string(cy.pos.FailedIn)), zap.Error(err))
	} else {
		cy.logger.Info("cycle closed",
			zap.Uint64("lamports_in", cy.pos.LamportsIn),
			zap.Uint64("lamports_out", cy.pos.LamportsOut),
			zap.Duration("duration", cy.pos.Duration()))
	}

	observability.RecordCycle(string(cy.pos.State), time.Since(cy.start).Seconds(), cy.pos.ClosedAt.Unix())
	c.finish(ctx, cy)
	return cy.pos, err
}

func (c *Controller) run(ctx context.Context, cy *cycle, req Request) error {
	if !solana.IsValidAddress(req.Mint) {
		return fmt.Errorf("%w: mint %q", execution.ErrInvalidAssetIdentity, req.Mint)
	}

	lamports := c.opts.BuyLamports
	if req.BuyLamports != nil {
		lamports = *req.BuyLamports
	}
	if lamports == 0 {
		return fmt.Errorf("%w: buy amount is zero", execution.ErrInvalidAmount)
	}

	if c.opts.Probe != nil && !req.SkipProbe {
		if !c.opts.Probe.IsAvailable(ctx, req.Mint) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s", ErrRouteUnavailable, req.Mint)
		}
	}

	// Baseline for the receipt check, read before anything is spent.
	baseline, err := c.opts.Watcher.Sample(ctx, cy.pos.Owner, req.Mint)
	if err != nil {
		cy.logger.Warn("pre-buy balance unavailable, assuming zero", zap.Error(err))
	}

	c.transition(cy, domain.StateBuying)
	if err := c.buy(ctx, cy, lamports); err != nil {
		return err
	}

	c.transition(cy, domain.StateAwaitingReceipt)
	change := c.opts.Watcher.WaitForChangeFrom(ctx, cy.pos.Owner, req.Mint, baseline.Amount)
	if !change.Changed {
		cy.logger.Warn("no balance change after buy, continuing",
			zap.Uint64("balance", change.Final),
			zap.Int("polls", change.Polls))
	} else if change.Final > baseline.Amount {
		cy.pos.TokensReceived = change.Final - baseline.Amount
		cy.pos.TokenDecimals = change.Decimals
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.transition(cy, domain.StateHolding)
	if err := c.hold(ctx, cy); err != nil {
		return err
	}

	c.transition(cy, domain.StateSelling)
	if err := c.sell(ctx, cy); err != nil {
		return err
	}

	from := cy.pos.State
	cy.pos.Close(c.now())
	c.transitioned(cy, from)
	return nil
}

func (c *Controller) buy(ctx context.Context, cy *cycle, lamports uint64) error {
	cy.unsettled = nil
	slippage := c.opts.Slippage.ForFlow()
	cy.pos.LamportsIn = lamports

	out := retry.Do(ctx, "buy", c.opts.Policies.Buy, func(ctx context.Context, a retry.Attempt) (*swapResult, error) {
		cy.pos.BuyAttempts = a.Index
		return c.swap(ctx, cy, domain.SwapSideBuy, solana.NativeMint, cy.pos.Mint, lamports, slippage)
	}, c.retryOptions(cy)...)
	if !out.OK() {
		return out.Err
	}

	cy.pos.BuySignature = out.Value.confirmation.Signature
	cy.logger.Info("buy confirmed",
		zap.String("signature", cy.pos.BuySignature),
		zap.Uint64("lamports", lamports),
		zap.Uint64("quoted_out", out.Value.quote.OutAmount),
		zap.Int("slippage_bps", slippage),
		zap.Int("attempts", len(out.Attempts)))
	return nil
}

func (c *Controller) hold(ctx context.Context, cy *cycle) error {
	if c.opts.SellDelay <= 0 {
		return nil
	}
	cy.logger.Info("holding", zap.Duration("delay", c.opts.SellDelay))

	t := time.NewTimer(c.opts.SellDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Controller) sell(ctx context.Context, cy *cycle) error {
	sample, err := c.opts.Watcher.Sample(ctx, cy.pos.Owner, cy.pos.Mint)
	if err != nil {
		return fmt.Errorf("read balance before sell: %w", err)
	}
	if sample.Amount == 0 {
		return fmt.Errorf("%w: %s holds no %s", execution.ErrNoBalance, cy.pos.Owner, cy.pos.Mint)
	}

	decimals := sample.Decimals
	if decimals == 0 && c.opts.RPC != nil {
		if d, err := c.opts.RPC.GetTokenDecimals(ctx, cy.pos.Mint); err == nil {
			decimals = d
		} else {
			cy.logger.Warn("token decimals unavailable", zap.Error(err))
		}
	}
	cy.pos.TokenDecimals = decimals
	cy.pos.TokensSold = sample.Amount
	cy.unsettled = nil
	cy.logger.Info("selling full balance",
		zap.Uint64("amount", sample.Amount),
		zap.String("ui_amount", execution.UIAmount(sample.Amount, decimals)))

	slippage := c.opts.Slippage.ForFlow()
	out := retry.Do(ctx, "sell", c.opts.Policies.Sell, func(ctx context.Context, a retry.Attempt) (*swapResult, error) {
		cy.pos.SellAttempts = a.Index
		return c.swap(ctx, cy, domain.SwapSideSell, cy.pos.Mint, solana.NativeMint, sample.Amount, slippage)
	}, c.retryOptions(cy)...)
	if !out.OK() {
		return out.Err
	}

	cy.pos.SellSignature = out.Value.confirmation.Signature
	cy.pos.LamportsOut = out.Value.quote.OutAmount
	cy.logger.Info("sell confirmed",
		zap.String("signature", cy.pos.SellSignature),
		zap.Uint64("quoted_lamports", cy.pos.LamportsOut),
		zap.Int("attempts", len(out.Attempts)))
	return nil
}

type swapResult struct {
	quote        *domain.Quote
	confirmation *domain.ConfirmationResult
}

// swap is one outer attempt: a fresh quote and request, then build, sign,
// simulate and submit under the inner policy.
func (c *Controller) swap(ctx context.Context, cy *cycle, side domain.SwapSide, in, out string, amount uint64, slippage int) (*swapResult, error) {
	if landed, err := c.settleEarlier(ctx, cy); landed != nil || err != nil {
		return landed, err
	}

	quote, err := c.opts.Quotes.GetQuote(ctx, in, out, amount, slippage)
	if err != nil {
		return nil, err
	}
	req := execution.BuildSwapRequest(c.opts.Wallet.PublicKey(), quote, c.opts.Priority)

	label := side.String() + "-submit"
	var settled *swapResult
	res := retry.Do(ctx, label, c.opts.Policies.Inner, func(ctx context.Context, a retry.Attempt) (*domain.ConfirmationResult, error) {
		if a.Index > 1 {
			landed, err := c.settleEarlier(ctx, cy)
			if err != nil {
				return nil, err
			}
			if landed != nil {
				settled = landed
				return landed.confirmation, nil
			}
		}

		signed, err := c.opts.Preparer.Prepare(ctx, &req)
		if err != nil {
			return nil, err
		}
		conf, err := c.opts.Submitter.Execute(ctx, signed)
		if errors.Is(err, execution.ErrConfirmationTimeout) {
			cy.unsettled = append(cy.unsettled, unsettledSwap{tx: signed, quote: quote})
		}
		return conf, err
	}, c.retryOptions(cy)...)
	if !res.OK() {
		return nil, res.Err
	}
	if settled != nil {
		return settled, nil
	}
	return &swapResult{quote: quote, confirmation: res.Value}, nil
}

// settleEarlier checks whether a timed-out submission of this side landed
// after all, so it is not bought or sold twice. A landed failure is dropped;
// a landed success is the side's result.
func (c *Controller) settleEarlier(ctx context.Context, cy *cycle) (*swapResult, error) {
	pending := cy.unsettled[:0]
	for _, u := range cy.unsettled {
		conf, err := c.opts.Submitter.Lookup(ctx, u.tx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			cy.logger.Warn("lookup of earlier submission failed", zap.String("signature", u.tx.Signature), zap.Error(err))
			pending = append(pending, u)
		case conf == nil:
			pending = append(pending, u)
		case conf.Status == domain.StatusConfirmed:
			cy.logger.Info("earlier submission landed", zap.String("signature", u.tx.Signature))
			cy.unsettled = nil
			return &swapResult{quote: u.quote, confirmation: conf}, nil
		default:
			cy.logger.Warn("earlier submission failed on chain", zap.String("signature", u.tx.Signature))
		}
	}
	cy.unsettled = pending
	return nil, nil
}

func (c *Controller) retryOptions(cy *cycle) []retry.Option {
	opts := []retry.Option{retry.WithLogger(cy.logger)}
	if c.opts.Sleeper != nil {
		opts = append(opts, retry.WithSleeper(c.opts.Sleeper))
	}
	return opts
}

func (c *Controller) transition(cy *cycle, to domain.PositionState) {
	from := cy.pos.State
	cy.pos.State = to
	c.transitioned(cy, from)
}

func (c *Controller) transitioned(cy *cycle, from domain.PositionState) {
	observability.RecordTransition(string(from), string(cy.pos.State))
	cy.logger.Info("state transition",
		zap.String("from", string(from)),
		zap.String("to", string(cy.pos.State)))
}

// finish journals and reports the position. Failures here never change the
// cycle's outcome.
func (c *Controller) finish(ctx context.Context, cy *cycle) {
	// Journal even when the cycle was canceled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if c.opts.Store != nil {
		if err := c.opts.Store.Insert(ctx, cy.pos); err != nil {
			cy.logger.Error("journal position", zap.Error(err))
		}
	}
	if err := c.opts.Notifier.NotifyPosition(ctx, cy.pos); err != nil {
		cy.logger.Warn("notify position", zap.Error(err))
	}
}
