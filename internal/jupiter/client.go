// Package jupiter is an HTTP client for the Jupiter swap aggregator.
package jupiter

import (
	"context"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
)

// Client defines the aggregator calls used by the swap engine.
type Client interface {
	// GetQuote prices a route for an exact input amount.
	GetQuote(ctx context.Context, params QuoteParams) (*domain.Quote, error)

	// BuildSwap returns an unsigned transaction executing req.Quote.
	BuildSwap(ctx context.Context, req *domain.SwapRequest) (*SwapTransaction, error)
}

// QuoteParams are the query parameters of a quote call.
type QuoteParams struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// SwapTransaction is the swap build response.
type SwapTransaction struct {
	Transaction               []byte // unsigned, serialized versioned transaction
	LastValidBlockHeight      uint64
	PrioritizationFeeLamports uint64
	ComputeUnitLimit          uint32
	// SimulationError is the aggregator's own simulation verdict, if it ran one.
	SimulationError interface{}
}
