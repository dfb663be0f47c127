package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
	"github.com/nep7une-w/jupiter-trading-bot/internal/jupiter"
	"github.com/nep7une-w/jupiter-trading-bot/internal/observability"
	"github.com/nep7une-w/jupiter-trading-bot/internal/solana"
)

// Route probe parameters.
const (
	DefaultProbeAmountLamports = 1_000_000 // 0.001 SOL
	ProbeSlippageBps           = 10_000
)

// QuoteGateway validates inputs and obtains quotes from the aggregator.
type QuoteGateway struct {
	client      jupiter.Client
	probeAmount uint64
	logger      *zap.Logger
}

// NewQuoteGateway creates a gateway over client.
func NewQuoteGateway(client jupiter.Client, logger *zap.Logger) *QuoteGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuoteGateway{
		client:      client,
		probeAmount: DefaultProbeAmountLamports,
		logger:      logger.Named("quote"),
	}
}

// GetQuote prices amount of inputMint into outputMint.
// The returned quote always has a positive output amount.
func (g *QuoteGateway) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*domain.Quote, error) {
	if !solana.IsValidAddress(inputMint) {
		return nil, fmt.Errorf("%w: input mint %q", ErrInvalidAssetIdentity, inputMint)
	}
	if !solana.IsValidAddress(outputMint) {
		return nil, fmt.Errorf("%w: output mint %q", ErrInvalidAssetIdentity, outputMint)
	}
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	start := time.Now()
	quote, err := g.client.GetQuote(ctx, jupiter.QuoteParams{
		InputMint:   inputMint,
		OutputMint:  outputMint,
		Amount:      amount,
		SlippageBps: slippageBps,
	})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		observability.RecordQuote("error", elapsed)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s -> %s: %w", ErrQuoteUnavailable, inputMint, outputMint, err)
	}
	if quote.OutAmount == 0 {
		observability.RecordQuote("empty", elapsed)
		return nil, fmt.Errorf("%w: %s -> %s: zero output", ErrQuoteUnavailable, inputMint, outputMint)
	}

	observability.RecordQuote("ok", elapsed)
	if impact, err := decimal.NewFromString(quote.PriceImpactPct); err == nil {
		observability.RecordPriceImpact(impact.Mul(decimal.NewFromInt(100)).InexactFloat64())
	}

	g.logger.Debug("quote received",
		zap.String("in", inputMint),
		zap.String("out", outputMint),
		zap.Uint64("in_amount", quote.InAmount),
		zap.Uint64("out_amount", quote.OutAmount),
		zap.Int("slippage_bps", slippageBps),
		zap.Strings("route", quote.Venues()))

	return quote, nil
}

// CheckRoute reports whether a small SOL to mint quote exists. The quote is discarded.
func (g *QuoteGateway) CheckRoute(ctx context.Context, mint string) error {
	_, err := g.GetQuote(ctx, solana.NativeMint, mint, g.probeAmount, ProbeSlippageBps)
	return err
}
