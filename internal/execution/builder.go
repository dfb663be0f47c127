package execution

import (
	solanago "github.com/gagliardetto/solana-go"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
)

// DefaultMaxPriorityFeeLamports caps the priority fee when none is configured.
const DefaultMaxPriorityFeeLamports = 1_000_000

// PriorityConfig holds fee and compute budget settings for swap requests.
type PriorityConfig struct {
	MaxLamports uint64 // 0 = DefaultMaxPriorityFeeLamports
	Level       string // low, medium, high, veryHigh; anything else = veryHigh

	ComputeUnitLimit              uint32 // 0 = unset
	ComputeUnitPriceMicroLamports uint64 // 0 = unset
}

// BuildSwapRequest assembles the swap build request for quote, signed by wallet.
func BuildSwapRequest(wallet solanago.PublicKey, quote *domain.Quote, p PriorityConfig) domain.SwapRequest {
	maxLamports := p.MaxLamports
	if maxLamports == 0 {
		maxLamports = DefaultMaxPriorityFeeLamports
	}

	level := domain.PriorityLevel(p.Level)
	if !level.IsValid() {
		level = domain.PriorityVeryHigh
	}

	req := domain.SwapRequest{
		Quote:                   quote,
		UserPublicKey:           wallet.String(),
		DynamicComputeUnitLimit: true,
		DynamicSlippage:         false,
		WrapAndUnwrapSol:        true,
		Prioritization: domain.Prioritization{
			MaxLamports:   maxLamports,
			PriorityLevel: level,
		},
	}

	if p.ComputeUnitLimit > 0 {
		limit := p.ComputeUnitLimit
		req.ComputeUnitLimit = &limit
	}
	if p.ComputeUnitPriceMicroLamports > 0 {
		price := p.ComputeUnitPriceMicroLamports
		req.ComputeUnitPriceMicroLamports = &price
	}

	return req
}
