package execution

import (
	"github.com/shopspring/decimal"
)

// Default slippage settings in basis points.
const (
	DefaultSlippageBps        = 100
	DefaultNewAssetMultiplier = 3.0
	DefaultMinSlippageBps     = 300
	DefaultMaxSlippageBps     = 5000
)

// SlippagePolicy derives the slippage tolerance for a swap.
//
// The flat value is used as configured, with no bound check. Only the
// new-asset path (flat * multiplier) is clamped to [MinBps, MaxBps].
type SlippagePolicy struct {
	FlatBps            int
	NewAssetMultiplier float64
	MinBps             int
	MaxBps             int
	NewAssetMode       bool
}

// DefaultSlippagePolicy returns the built-in defaults.
func DefaultSlippagePolicy() SlippagePolicy {
	return SlippagePolicy{
		FlatBps:            DefaultSlippageBps,
		NewAssetMultiplier: DefaultNewAssetMultiplier,
		MinBps:             DefaultMinSlippageBps,
		MaxBps:             DefaultMaxSlippageBps,
	}
}

// ComputeBps returns the tolerance for an asset.
func (p SlippagePolicy) ComputeBps(isNewAsset bool) int {
	if !isNewAsset {
		return p.FlatBps
	}

	bps := int(decimal.NewFromInt(int64(p.FlatBps)).
		Mul(decimal.NewFromFloat(p.NewAssetMultiplier)).
		Round(0).
		IntPart())

	if bps < p.MinBps {
		bps = p.MinBps
	}
	if bps > p.MaxBps {
		bps = p.MaxBps
	}
	return bps
}

// ForFlow returns the tolerance for the configured mode.
func (p SlippagePolicy) ForFlow() int {
	return p.ComputeBps(p.NewAssetMode)
}
