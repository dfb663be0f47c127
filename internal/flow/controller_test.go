package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
	"github.com/nep7une-w/jupiter-trading-bot/internal/execution"
	jupstub "github.com/nep7une-w/jupiter-trading-bot/internal/jupiter/stub"
	"github.com/nep7une-w/jupiter-trading-bot/internal/retry"
	"github.com/nep7une-w/jupiter-trading-bot/internal/solana"
	solstub "github.com/nep7une-w/jupiter-trading-bot/internal/solana/stub"
	"github.com/nep7une-w/jupiter-trading-bot/internal/storage/memory"
	"github.com/nep7une-w/jupiter-trading-bot/internal/wallet"
)

const testMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

type harness struct {
	rpc    *solstub.RPCClient
	jup    *jupstub.Client
	wallet *wallet.Wallet
	store  *memory.PositionStore
	opts   Options
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	w, err := wallet.FromKey(solanago.NewWallet().PrivateKey)
	require.NoError(t, err)

	rpc := solstub.NewRPCClient()
	rpc.AutoConfirm = true
	rpc.BlockHeights = []uint64{10}
	rpc.Decimals[testMint] = 6

	jup := jupstub.NewClient()
	jup.BuildTx = jupstub.TransferTx

	quotes := execution.NewQuoteGateway(jup, nil)
	store := memory.NewPositionStore()

	return &harness{
		rpc:    rpc,
		jup:    jup,
		wallet: w,
		store:  store,
		opts: Options{
			Quotes:      quotes,
			Preparer:    execution.NewPreparer(jup, w, nil),
			Submitter:   execution.NewSubmitter(rpc, nil, execution.SubmitterConfig{PollInterval: time.Millisecond, Timeout: 5 * time.Second}, nil),
			Watcher:     execution.NewWatcher(rpc, execution.WatcherConfig{MaxAttempts: 5, Interval: time.Millisecond}, nil),
			Wallet:      w,
			RPC:         rpc,
			Store:       store,
			Slippage:    execution.DefaultSlippagePolicy(),
			BuyLamports: 1_000_000_000,
			Policies:    DefaultPolicies(time.Second),
			Sleeper:     noSleep,
		},
	}
}

func (h *harness) controller() *Controller {
	return New(h.opts)
}

// tradable prices 1 SOL at 500000 base units (0.5 tokens with 6 decimals)
// and the way back at 2000 lamports per base unit.
func (h *harness) tradable() {
	h.jup.SetRate(solana.NativeMint, testMint, 0.0005)
	h.jup.SetRate(testMint, solana.NativeMint, 2000)
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t)
	h.tradable()
	h.rpc.SetTokenBalances(h.wallet.Address(), testMint, 0, 500_000)

	pos, err := h.controller().Run(context.Background(), Request{Mint: testMint})
	require.NoError(t, err)

	assert.Equal(t, domain.StateClosed, pos.State)
	assert.Equal(t, uint64(1_000_000_000), pos.LamportsIn)
	assert.Equal(t, uint64(500_000), pos.TokensReceived)
	assert.Equal(t, uint8(6), pos.TokenDecimals)
	assert.Equal(t, uint64(500_000), pos.TokensSold)
	assert.Equal(t, uint64(1_000_000_000), pos.LamportsOut)
	assert.NotEmpty(t, pos.BuySignature)
	assert.NotEmpty(t, pos.SellSignature)
	assert.NotEqual(t, pos.BuySignature, pos.SellSignature)
	assert.Equal(t, 1, pos.BuyAttempts)
	assert.Equal(t, 1, pos.SellAttempts)
	assert.False(t, pos.ClosedAt.IsZero())

	require.Len(t, h.jup.Quotes, 2)
	assert.Equal(t, solana.NativeMint, h.jup.Quotes[0].InputMint)
	assert.Equal(t, testMint, h.jup.Quotes[1].InputMint)
	assert.Equal(t, uint64(500_000), h.jup.Quotes[1].Amount)
	assert.Equal(t, execution.DefaultSlippageBps, h.jup.Quotes[0].SlippageBps)
	assert.Equal(t, 2, h.rpc.SentCount())

	journaled, err := h.store.GetByID(context.Background(), pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, journaled.State)
}

func TestRun_TimedOutSubmissionThatLandsIsNotResent(t *testing.T) {
	h := newHarness(t)
	h.tradable()
	h.rpc.SetTokenBalances(h.wallet.Address(), testMint, 0, 500_000)
	// Every lookup outlives the confirmation timeout; the second lookup of a
	// signature finds it landed.
	h.rpc.AutoConfirmPolls = 1
	h.rpc.GetTransactionDelay = 200 * time.Millisecond
	h.opts.Submitter = execution.NewSubmitter(h.rpc, nil, execution.SubmitterConfig{PollInterval: time.Millisecond, Timeout: 50 * time.Millisecond}, nil)

	pos, err := h.controller().Run(context.Background(), Request{Mint: testMint})
	require.NoError(t, err)

	assert.Equal(t, domain.StateClosed, pos.State)
	assert.Equal(t, 1, pos.BuyAttempts)
	assert.Equal(t, 1, pos.SellAttempts)
	assert.Equal(t, uint64(1_000_000_000), pos.LamportsOut)
	assert.Equal(t, 2, h.jup.QuoteCount())
	assert.Equal(t, 2, h.jup.SwapCount())
	assert.Equal(t, 2, h.rpc.SentCount())
}

func TestRun_NoBalanceBeforeSellQuote(t *testing.T) {
	h := newHarness(t)
	h.tradable()
	h.rpc.SetTokenBalances(h.wallet.Address(), testMint, 0)

	pos, err := h.controller().Run(context.Background(), Request{Mint: testMint})

	require.ErrorIs(t, err, execution.ErrNoBalance)
	assert.Equal(t, domain.StateFailed, pos.State)
	assert.Equal(t, domain.StateSelling, pos.FailedIn)
	assert.NotEmpty(t, pos.BuySignature)
	// Only the buy was quoted.
	assert.Equal(t, 1, h.jup.QuoteCount())
	assert.Equal(t, 1, h.rpc.SentCount())
	// Baseline, five receipt polls, one sell read.
	assert.Equal(t, 7, h.rpc.TokenBalanceCallCount(h.wallet.Address(), testMint))
}

func TestRun_BuyFailureSkipsSell(t *testing.T) {
	h := newHarness(t)
	// No rates: every quote fails.

	pos, err := h.controller().Run(context.Background(), Request{Mint: testMint})

	require.ErrorIs(t, err, execution.ErrQuoteUnavailable)
	var exhausted *retry.ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "buy", exhausted.Label)
	assert.Len(t, exhausted.Attempts, 3)

	assert.Equal(t, domain.StateFailed, pos.State)
	assert.Equal(t, domain.StateBuying, pos.FailedIn)
	assert.Equal(t, 3, pos.BuyAttempts)
	assert.Equal(t, 3, h.jup.QuoteCount())
	assert.Equal(t, 0, h.jup.SwapCount())
	assert.Equal(t, 0, h.rpc.SentCount())
	assert.Equal(t, 1, h.store.Len())
}

func TestRun_OnChainErrorIsNotRetriedWithinAttempt(t *testing.T) {
	h := newHarness(t)
	h.tradable()
	h.rpc.AutoConfirmErr = map[string]interface{}{"InstructionError": []interface{}{3, map[string]interface{}{"Custom": 6001}}}

	pos, err := h.controller().Run(context.Background(), Request{Mint: testMint})

	require.ErrorIs(t, err, execution.ErrOnChainExecution)
	assert.Equal(t, domain.StateBuying, pos.FailedIn)
	// One broadcast per outer attempt.
	assert.Equal(t, 3, h.rpc.SentCount())
	assert.Equal(t, 3, h.jup.QuoteCount())
}

func TestRun_SimulationRejectedNeverBroadcasts(t *testing.T) {
	h := newHarness(t)
	h.tradable()
	h.rpc.SimulationErr = "InsufficientFundsForRent"

	_, err := h.controller().Run(context.Background(), Request{Mint: testMint})

	require.ErrorIs(t, err, execution.ErrSimulationRejected)
	// Two inner attempts per outer attempt.
	assert.Len(t, h.rpc.Simulated, 6)
	assert.Equal(t, 6, h.jup.SwapCount())
	assert.Equal(t, 0, h.rpc.SentCount())
}

func TestRun_TransientFailuresRecover(t *testing.T) {
	h := newHarness(t)
	h.tradable()
	h.rpc.SetTokenBalances(h.wallet.Address(), testMint, 0, 500_000)
	h.jup.QuoteErrs = []error{errors.New("502 bad gateway")}
	h.jup.SwapErrs = []error{errors.New("503")}

	pos, err := h.controller().Run(context.Background(), Request{Mint: testMint})
	require.NoError(t, err)

	assert.Equal(t, domain.StateClosed, pos.State)
	assert.Equal(t, 2, pos.BuyAttempts)
	assert.Equal(t, 2, h.rpc.SentCount())
}

func TestRun_BuyOverrideIsPerRequest(t *testing.T) {
	h := newHarness(t)
	h.tradable()
	h.rpc.SetTokenBalances(h.wallet.Address(), testMint, 0, 1_000_000, 1_000_000)

	override := uint64(2_000_000_000)
	pos, err := h.controller().Run(context.Background(), Request{Mint: testMint, BuyLamports: &override})
	require.NoError(t, err)
	assert.Equal(t, override, pos.LamportsIn)
	assert.Equal(t, override, h.jup.Quotes[0].Amount)

	// The configured default is untouched.
	h.jup.Quotes = nil
	_, _ = h.controller().Run(context.Background(), Request{Mint: testMint})
	require.NotEmpty(t, h.jup.Quotes)
	assert.Equal(t, uint64(1_000_000_000), h.jup.Quotes[0].Amount)
}

func TestRun_InvalidMint(t *testing.T) {
	h := newHarness(t)

	pos, err := h.controller().Run(context.Background(), Request{Mint: "not a mint"})

	require.ErrorIs(t, err, execution.ErrInvalidAssetIdentity)
	assert.Equal(t, domain.StateIdle, pos.FailedIn)
	assert.Equal(t, 0, h.jup.QuoteCount())
}

func TestRun_ProbeGate(t *testing.T) {
	h := newHarness(t)
	h.opts.Probe = execution.NewProbe(h.opts.Quotes, execution.ProbeConfig{Interval: time.Millisecond, MaxDuration: 10 * time.Millisecond}, nil)

	pos, err := h.controller().Run(context.Background(), Request{Mint: testMint})

	require.ErrorIs(t, err, ErrRouteUnavailable)
	assert.Equal(t, domain.StateIdle, pos.FailedIn)
	assert.Equal(t, 0, h.jup.SwapCount())

	// SkipProbe goes straight to buying.
	_, err = h.controller().Run(context.Background(), Request{Mint: testMint, SkipProbe: true})
	assert.ErrorIs(t, err, execution.ErrQuoteUnavailable)
}

func TestRun_HoldIsCancellable(t *testing.T) {
	h := newHarness(t)
	h.tradable()
	h.rpc.SetTokenBalances(h.wallet.Address(), testMint, 0, 500_000)
	h.opts.SellDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	pos, err := h.controller().Run(ctx, Request{Mint: testMint})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.StateHolding, pos.FailedIn)
	assert.Equal(t, 1, h.rpc.SentCount())
	// Journaled despite the canceled context.
	assert.Equal(t, 1, h.store.Len())
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) NotifyPosition(context.Context, *domain.Position) error {
	f.calls++
	return errors.New("telegram down")
}

func TestRun_NotifyFailureDoesNotChangeOutcome(t *testing.T) {
	h := newHarness(t)
	h.tradable()
	h.rpc.SetTokenBalances(h.wallet.Address(), testMint, 0, 500_000)
	n := &failingNotifier{}
	h.opts.Notifier = n

	pos, err := h.controller().Run(context.Background(), Request{Mint: testMint})

	require.NoError(t, err)
	assert.Equal(t, domain.StateClosed, pos.State)
	assert.Equal(t, 1, n.calls)
}

func TestDryRun(t *testing.T) {
	h := newHarness(t)
	h.tradable()

	res, err := h.controller().DryRun(context.Background(), Request{Mint: testMint})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Signature)
	assert.Equal(t, uint64(500_000), res.Quote.OutAmount)
	assert.Equal(t, h.wallet.Address(), res.Request.UserPublicKey)
	assert.Len(t, h.rpc.Simulated, 1)
	assert.Equal(t, 0, h.rpc.SentCount())
	assert.Equal(t, 0, h.store.Len())
}

func TestDefaultPolicies(t *testing.T) {
	p := DefaultPolicies(time.Second)

	assert.Equal(t, 2, p.Inner.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.Inner.MaxDelay)
	assert.False(t, p.Inner.Retryable(execution.ErrOnChainExecution))
	assert.False(t, p.Inner.Retryable(execution.ErrNoBalance))
	assert.True(t, p.Inner.Retryable(execution.ErrSimulationRejected))
	assert.True(t, p.Inner.Retryable(execution.ErrConfirmationExpired))

	assert.Equal(t, 3, p.Buy.MaxAttempts)
	assert.Equal(t, 5, p.Sell.MaxAttempts)
	assert.Equal(t, time.Second, p.Sell.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Sell.Backoff(2))
}
