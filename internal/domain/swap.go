package domain

// SwapRequest is the body of a swap build call. Built fresh for every attempt.
type SwapRequest struct {
	Quote                   *Quote
	UserPublicKey           string // fee payer and signer
	DynamicComputeUnitLimit bool   // let the aggregator size the compute budget
	DynamicSlippage         bool   // false: reuse the quote's slippage
	WrapAndUnwrapSol        bool
	Prioritization          Prioritization

	// Overrides, sent only when set.
	ComputeUnitLimit              *uint32
	ComputeUnitPriceMicroLamports *uint64
}

// Prioritization caps the priority fee the aggregator may attach.
type Prioritization struct {
	MaxLamports   uint64
	PriorityLevel PriorityLevel
}

// PriorityLevel is the aggregator's fee percentile bucket.
type PriorityLevel string

const (
	PriorityLow      PriorityLevel = "low"
	PriorityMedium   PriorityLevel = "medium"
	PriorityHigh     PriorityLevel = "high"
	PriorityVeryHigh PriorityLevel = "veryHigh"
)

// IsValid checks if the level is a valid value.
func (l PriorityLevel) IsValid() bool {
	switch l {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityVeryHigh:
		return true
	}
	return false
}

// SignedTransaction is a swap transaction ready for submission.
type SignedTransaction struct {
	Signature            string // base58 fee payer signature
	Payload              []byte // serialized signed transaction
	LastValidBlockHeight uint64 // expiry of the embedded blockhash
}

// SwapSide is the direction of a swap relative to SOL.
type SwapSide string

// Swap side constants
const (
	SwapSideBuy  SwapSide = "buy"
	SwapSideSell SwapSide = "sell"
)

// String returns the string representation of SwapSide.
func (s SwapSide) String() string {
	return string(s)
}
