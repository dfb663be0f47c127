package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used by the swap engine.
type RPCClient interface {
	// SimulateTransaction runs a signed base64 transaction against the current bank state.
	SimulateTransaction(ctx context.Context, txBase64 string) (*SimulationResult, error)

	// SendTransaction broadcasts a signed base64 transaction and returns its signature.
	SendTransaction(ctx context.Context, txBase64 string, opts SendOpts) (string, error)

	// GetTransaction retrieves a transaction by signature. Returns nil, nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetBlockHeight returns the current block height.
	GetBlockHeight(ctx context.Context) (uint64, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, owner string) (uint64, error)

	// GetTokenBalance returns the summed balance of owner's token accounts for mint.
	GetTokenBalance(ctx context.Context, owner, mint string) (*TokenBalance, error)

	// GetTokenDecimals returns the decimals of a mint.
	GetTokenDecimals(ctx context.Context, mint string) (uint8, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
}

// Failed reports whether the ledger recorded an execution error.
func (t *Transaction) Failed() bool {
	return t != nil && t.Meta != nil && t.Meta.Err != nil
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	Fee         uint64
	LogMessages []string
}

// SimulationResult is the value of a simulateTransaction response.
type SimulationResult struct {
	Err           interface{}
	Logs          []string
	UnitsConsumed uint64
}

// SendOpts configures sendTransaction.
type SendOpts struct {
	SkipPreflight bool
	// MaxRetries is forwarded to the node. Nil leaves the node default.
	MaxRetries *uint
}

// TokenBalance is the aggregate token balance of an owner for one mint.
type TokenBalance struct {
	Amount   uint64
	Decimals uint8
	Accounts int
}
