package flow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
	"github.com/nep7une-w/jupiter-trading-bot/internal/execution"
	"github.com/nep7une-w/jupiter-trading-bot/internal/solana"
)

// DryRunResult describes a buy that was built, signed and simulated but not sent.
type DryRunResult struct {
	Quote       *domain.Quote
	Request     domain.SwapRequest
	Signature   string
	SlippageBps int
}

// DryRun quotes, builds, signs and simulates the buy side of req without
// broadcasting anything.
func (c *Controller) DryRun(ctx context.Context, req Request) (*DryRunResult, error) {
	lamports := c.opts.BuyLamports
	if req.BuyLamports != nil {
		lamports = *req.BuyLamports
	}
	if lamports == 0 {
		return nil, fmt.Errorf("%w: buy amount is zero", execution.ErrInvalidAmount)
	}

	slippage := c.opts.Slippage.ForFlow()
	quote, err := c.opts.Quotes.GetQuote(ctx, solana.NativeMint, req.Mint, lamports, slippage)
	if err != nil {
		return nil, err
	}

	swapReq := execution.BuildSwapRequest(c.opts.Wallet.PublicKey(), quote, c.opts.Priority)
	signed, err := c.opts.Preparer.Prepare(ctx, &swapReq)
	if err != nil {
		return nil, err
	}
	if err := c.opts.Submitter.Simulate(ctx, signed); err != nil {
		return nil, err
	}

	c.logger.Info("dry run ok",
		zap.String("mint", req.Mint),
		zap.String("signature", signed.Signature),
		zap.Uint64("lamports", lamports),
		zap.Uint64("quoted_out", quote.OutAmount),
		zap.Int("slippage_bps", slippage))

	return &DryRunResult{
		Quote:       quote,
		Request:     swapReq,
		Signature:   signed.Signature,
		SlippageBps: slippage,
	}, nil
}
