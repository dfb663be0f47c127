// Package stub provides an in-memory aggregator for tests.
package stub

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
	"github.com/nep7une-w/jupiter-trading-bot/internal/jupiter"
)

// ErrNoRoute is returned for pairs without a configured price.
var ErrNoRoute = errors.New("no route")

// Client implements jupiter.Client for testing.
// Quotes are priced as amount * Rates[in/out]; swaps return BuildTx(req).
type Client struct {
	mu sync.Mutex

	// Rates maps "input/output" to the output units per input unit.
	Rates map[string]float64

	// QuoteErrs are returned (in order) before quoting succeeds.
	QuoteErrs []error
	// SwapErrs are returned (in order) before swap builds succeed.
	SwapErrs []error

	// BuildTx produces the unsigned transaction for a request.
	BuildTx func(req *domain.SwapRequest) ([]byte, error)
	// LastValidBlockHeight is returned with every swap.
	LastValidBlockHeight uint64

	// Calls
	Quotes []jupiter.QuoteParams
	Swaps  []*domain.SwapRequest
}

// Compile-time interface check.
var _ jupiter.Client = (*Client)(nil)

// NewClient creates a new stub aggregator.
func NewClient() *Client {
	return &Client{
		Rates:                make(map[string]float64),
		LastValidBlockHeight: 1000,
	}
}

// SetRate prices in→out at rate output units per input unit.
func (c *Client) SetRate(in, out string, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Rates[in+"/"+out] = rate
}

// GetQuote returns a quote priced from Rates.
func (c *Client) GetQuote(_ context.Context, params jupiter.QuoteParams) (*domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Quotes = append(c.Quotes, params)

	if len(c.QuoteErrs) > 0 {
		err := c.QuoteErrs[0]
		c.QuoteErrs = c.QuoteErrs[1:]
		return nil, err
	}

	rate, ok := c.Rates[params.InputMint+"/"+params.OutputMint]
	if !ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, params.InputMint, params.OutputMint)
	}

	out := uint64(float64(params.Amount) * rate)
	raw, _ := json.Marshal(map[string]interface{}{
		"inputMint":   params.InputMint,
		"outputMint":  params.OutputMint,
		"inAmount":    fmt.Sprint(params.Amount),
		"outAmount":   fmt.Sprint(out),
		"slippageBps": params.SlippageBps,
	})

	return &domain.Quote{
		InputMint:   params.InputMint,
		OutputMint:  params.OutputMint,
		InAmount:    params.Amount,
		OutAmount:   out,
		SlippageBps: params.SlippageBps,
		Route:       []domain.RouteStep{{Label: "stub", InputMint: params.InputMint, OutputMint: params.OutputMint, InAmount: params.Amount, OutAmount: out, Percent: 100}},
		Raw:         raw,
	}, nil
}

// BuildSwap returns BuildTx(req) as the swap transaction.
func (c *Client) BuildSwap(_ context.Context, req *domain.SwapRequest) (*jupiter.SwapTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Swaps = append(c.Swaps, req)

	if len(c.SwapErrs) > 0 {
		err := c.SwapErrs[0]
		c.SwapErrs = c.SwapErrs[1:]
		return nil, err
	}
	if c.BuildTx == nil {
		return nil, errors.New("stub: BuildTx not set")
	}

	tx, err := c.BuildTx(req)
	if err != nil {
		return nil, err
	}
	return &jupiter.SwapTransaction{Transaction: tx, LastValidBlockHeight: c.LastValidBlockHeight}, nil
}

// QuoteCount returns the number of quote calls.
func (c *Client) QuoteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.Quotes)
}

// SwapCount returns the number of swap build calls.
func (c *Client) SwapCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.Swaps)
}

var txSeq atomic.Uint64

// TransferTx builds an unsigned 1-lamport self transfer paid by the request's
// user. Every call uses a fresh blockhash, so signatures never repeat.
func TransferTx(req *domain.SwapRequest) ([]byte, error) {
	payer, err := solanago.PublicKeyFromBase58(req.UserPublicKey)
	if err != nil {
		return nil, err
	}

	var blockhash solanago.Hash
	binary.LittleEndian.PutUint64(blockhash[:], txSeq.Add(1))

	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{system.NewTransferInstruction(1, payer, payer).Build()},
		blockhash,
		solanago.TransactionPayer(payer),
	)
	if err != nil {
		return nil, err
	}
	return tx.MarshalBinary()
}
