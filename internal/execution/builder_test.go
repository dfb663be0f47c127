package execution

import (
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
)

func TestBuildSwapRequest_Defaults(t *testing.T) {
	owner := solanago.NewWallet().PublicKey()
	quote := &domain.Quote{InAmount: 1, OutAmount: 2}

	req := BuildSwapRequest(owner, quote, PriorityConfig{})

	assert.Same(t, quote, req.Quote)
	assert.Equal(t, owner.String(), req.UserPublicKey)
	assert.True(t, req.DynamicComputeUnitLimit)
	assert.False(t, req.DynamicSlippage)
	assert.True(t, req.WrapAndUnwrapSol)
	assert.Equal(t, uint64(DefaultMaxPriorityFeeLamports), req.Prioritization.MaxLamports)
	assert.Equal(t, domain.PriorityVeryHigh, req.Prioritization.PriorityLevel)
	assert.Nil(t, req.ComputeUnitLimit)
	assert.Nil(t, req.ComputeUnitPriceMicroLamports)
}

func TestBuildSwapRequest_Overrides(t *testing.T) {
	req := BuildSwapRequest(solanago.NewWallet().PublicKey(), &domain.Quote{}, PriorityConfig{
		MaxLamports:                   50_000,
		Level:                         "medium",
		ComputeUnitLimit:              400_000,
		ComputeUnitPriceMicroLamports: 25_000,
	})

	assert.Equal(t, uint64(50_000), req.Prioritization.MaxLamports)
	assert.Equal(t, domain.PriorityMedium, req.Prioritization.PriorityLevel)
	require.NotNil(t, req.ComputeUnitLimit)
	assert.Equal(t, uint32(400_000), *req.ComputeUnitLimit)
	require.NotNil(t, req.ComputeUnitPriceMicroLamports)
	assert.Equal(t, uint64(25_000), *req.ComputeUnitPriceMicroLamports)
}

func TestBuildSwapRequest_UnknownLevel(t *testing.T) {
	req := BuildSwapRequest(solanago.NewWallet().PublicKey(), &domain.Quote{}, PriorityConfig{Level: "urgent"})
	assert.Equal(t, domain.PriorityVeryHigh, req.Prioritization.PriorityLevel)
}
