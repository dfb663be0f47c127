// Package execution quotes, builds, signs, submits and confirms swaps.
package execution

import "errors"

// Sentinel errors for swap execution.
var (
	// ErrQuoteUnavailable is returned when no route exists or the quoted output is not positive.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrSimulationRejected is returned when the pre-flight simulation fails. Nothing is broadcast.
	ErrSimulationRejected = errors.New("simulation rejected")

	// ErrConfirmationExpired is returned when the blockhash expired with no confirmation.
	ErrConfirmationExpired = errors.New("confirmation expired: block height exceeded")

	// ErrConfirmationTimeout is returned when the wall-clock bound passed with no confirmation.
	ErrConfirmationTimeout = errors.New("confirmation timeout")

	// ErrOnChainExecution is returned when the transaction landed but its execution failed.
	ErrOnChainExecution = errors.New("on-chain execution error")

	// ErrNoBalance is returned when selling a zero holding.
	ErrNoBalance = errors.New("no balance")

	// ErrInvalidAssetIdentity is returned for malformed mint addresses.
	ErrInvalidAssetIdentity = errors.New("invalid asset identity")

	// ErrInvalidAmount is returned for zero swap amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrSwapBuild is returned when the swap transaction cannot be built or signed.
	ErrSwapBuild = errors.New("swap build failed")
)

// IsPermanent reports whether err should end the inner simulate-and-submit
// loop immediately. Such errors still reach the outer attempt loop.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrOnChainExecution) ||
		errors.Is(err, ErrNoBalance) ||
		errors.Is(err, ErrInvalidAssetIdentity)
}
