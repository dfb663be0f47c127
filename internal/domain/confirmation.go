package domain

// ConfirmationStatus is the terminal outcome of waiting for a signature.
type ConfirmationStatus string

const (
	// StatusConfirmed means the transaction landed and executed.
	StatusConfirmed ConfirmationStatus = "CONFIRMED"
	// StatusConfirmedWithError means the transaction landed but its execution failed.
	StatusConfirmedWithError ConfirmationStatus = "CONFIRMED_WITH_ERROR"
	// StatusNotFoundBeforeExpiry means the transaction was never seen in time.
	StatusNotFoundBeforeExpiry ConfirmationStatus = "NOT_FOUND_BEFORE_EXPIRY"
)

// ExpiryReason explains a StatusNotFoundBeforeExpiry result.
type ExpiryReason string

const (
	ExpiryBlockHeightExceeded ExpiryReason = "BLOCK_HEIGHT_EXCEEDED"
	ExpiryTimeout             ExpiryReason = "TIMEOUT"
)

// ConfirmationResult is returned by a submission.
type ConfirmationResult struct {
	Status    ConfirmationStatus
	Signature string
	Slot      int64        // set when confirmed
	Err       interface{}  // on-chain execution error, set for StatusConfirmedWithError
	Reason    ExpiryReason // set for StatusNotFoundBeforeExpiry
	Polls     int          // getTransaction lookups performed
}

// BalanceSample is one balance reading for an owner and mint.
type BalanceSample struct {
	Owner    string
	Mint     string
	Amount   uint64 // base units
	Decimals uint8
}
