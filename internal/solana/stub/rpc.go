package stub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nep7une-w/jupiter-trading-bot/internal/solana"
)

// ErrNotFound is returned when a mint is unknown to the stub.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
// Sequences (block heights, balances) advance one step per call and stick at their last value.
type RPCClient struct {
	mu sync.Mutex

	// Transactions become visible to GetTransaction after VisibleAfter[sig] polls.
	Transactions map[string]*solana.Transaction
	VisibleAfter map[string]int

	// AutoConfirm makes any unknown signature visible as a successful
	// transaction after AutoConfirmPolls lookups.
	AutoConfirm      bool
	AutoConfirmPolls int
	AutoConfirmErr   interface{} // execution error of auto-confirmed transactions

	// GetTransactionErrs are returned (in order) before any lookup succeeds.
	GetTransactionErrs []error

	// GetTransactionDelay stalls each lookup until it elapses or ctx ends.
	GetTransactionDelay time.Duration

	BlockHeights  []uint64
	Balances      map[string][]uint64
	TokenBalances map[string][]uint64 // keyed by owner + "/" + mint
	Decimals      map[string]uint8

	// SimulationErr is reported as the simulated execution error.
	SimulationErr interface{}
	SimulateErr   error
	SendErr       error

	// Calls
	Simulated         []string
	Sent              []string
	TxPolls           map[string]int
	HeightCalls       int
	BalanceCalls      map[string]int
	TokenBalanceCalls map[string]int
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:      make(map[string]*solana.Transaction),
		VisibleAfter:      make(map[string]int),
		Balances:          make(map[string][]uint64),
		TokenBalances:     make(map[string][]uint64),
		Decimals:          make(map[string]uint8),
		TxPolls:           make(map[string]int),
		BalanceCalls:      make(map[string]int),
		TokenBalanceCalls: make(map[string]int),
	}
}

// SimulateTransaction records the payload and reports SimulationErr.
func (c *RPCClient) SimulateTransaction(_ context.Context, txBase64 string) (*solana.SimulationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Simulated = append(c.Simulated, txBase64)
	if c.SimulateErr != nil {
		return nil, c.SimulateErr
	}
	return &solana.SimulationResult{Err: c.SimulationErr}, nil
}

// SendTransaction records the payload.
func (c *RPCClient) SendTransaction(_ context.Context, txBase64 string, _ solana.SendOpts) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, txBase64)
	return "", nil
}

// GetTransaction returns the stored transaction once it is visible.
func (c *RPCClient) GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	c.TxPolls[signature]++
	delay := c.GetTransactionDelay
	c.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.GetTransactionErrs) > 0 {
		err := c.GetTransactionErrs[0]
		c.GetTransactionErrs = c.GetTransactionErrs[1:]
		return nil, err
	}

	tx, ok := c.Transactions[signature]
	if !ok && c.AutoConfirm {
		if c.TxPolls[signature] <= c.AutoConfirmPolls {
			return nil, nil
		}
		return &solana.Transaction{Signature: signature, Slot: 1, Meta: &solana.TransactionMeta{Err: c.AutoConfirmErr}}, nil
	}
	if !ok || c.TxPolls[signature] <= c.VisibleAfter[signature] {
		return nil, nil
	}
	return tx, nil
}

// GetBlockHeight advances through BlockHeights.
func (c *RPCClient) GetBlockHeight(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.HeightCalls++
	return next(c.BlockHeights, c.HeightCalls), nil
}

// GetBalance advances through Balances[owner].
func (c *RPCClient) GetBalance(_ context.Context, owner string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.BalanceCalls[owner]++
	return next(c.Balances[owner], c.BalanceCalls[owner]), nil
}

// GetTokenBalance advances through TokenBalances[owner/mint].
func (c *RPCClient) GetTokenBalance(_ context.Context, owner, mint string) (*solana.TokenBalance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := owner + "/" + mint
	c.TokenBalanceCalls[key]++
	amount := next(c.TokenBalances[key], c.TokenBalanceCalls[key])

	balance := &solana.TokenBalance{Amount: amount, Decimals: c.Decimals[mint]}
	if amount > 0 {
		balance.Accounts = 1
	}
	return balance, nil
}

// GetTokenDecimals returns Decimals[mint].
func (c *RPCClient) GetTokenDecimals(_ context.Context, mint string) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.Decimals[mint]
	if !ok {
		return 0, ErrNotFound
	}
	return d, nil
}

// AddTransaction stores a transaction that becomes visible after polls lookups.
func (c *RPCClient) AddTransaction(tx *solana.Transaction, polls int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Transactions[tx.Signature] = tx
	c.VisibleAfter[tx.Signature] = polls
}

// SetTokenBalances sets the sequence returned for owner's mint balance.
func (c *RPCClient) SetTokenBalances(owner, mint string, amounts ...uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.TokenBalances[owner+"/"+mint] = amounts
}

// TokenBalanceCallCount returns how many times owner's mint balance was read.
func (c *RPCClient) TokenBalanceCallCount(owner, mint string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.TokenBalanceCalls[owner+"/"+mint]
}

// SentCount returns the number of broadcast transactions.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.Sent)
}

// next returns the call-th element (1-based), sticking at the last one.
func next(seq []uint64, call int) uint64 {
	if len(seq) == 0 {
		return 0
	}
	if call > len(seq) {
		return seq[len(seq)-1]
	}
	return seq[call-1]
}
