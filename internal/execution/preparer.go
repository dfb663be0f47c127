package execution

import (
	"context"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
	"github.com/nep7une-w/jupiter-trading-bot/internal/jupiter"
)

// Signer signs serialized transaction messages.
type Signer interface {
	PublicKey() solanago.PublicKey
	Sign(message []byte) (solanago.Signature, error)
}

// Preparer turns a swap request into a signed transaction.
type Preparer struct {
	client jupiter.Client
	signer Signer
	logger *zap.Logger
}

// NewPreparer creates a preparer building swaps with client and signing with signer.
func NewPreparer(client jupiter.Client, signer Signer, logger *zap.Logger) *Preparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preparer{
		client: client,
		signer: signer,
		logger: logger.Named("preparer"),
	}
}

// Prepare builds the swap transaction for req and signs the wallet's slot.
func (p *Preparer) Prepare(ctx context.Context, req *domain.SwapRequest) (*domain.SignedTransaction, error) {
	swap, err := p.client.BuildSwap(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrSwapBuild, err)
	}

	if swap.SimulationError != nil {
		p.logger.Warn("aggregator simulation reported an error", zap.Any("error", swap.SimulationError))
	}

	payload, sig, err := SignTransaction(swap.Transaction, p.signer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSwapBuild, err)
	}

	p.logger.Debug("swap prepared",
		zap.String("signature", sig.String()),
		zap.Uint64("last_valid_block_height", swap.LastValidBlockHeight),
		zap.Uint32("compute_unit_limit", swap.ComputeUnitLimit),
		zap.Uint64("priority_fee_lamports", swap.PrioritizationFeeLamports))

	return &domain.SignedTransaction{
		Signature:            sig.String(),
		Payload:              payload,
		LastValidBlockHeight: swap.LastValidBlockHeight,
	}, nil
}

// SignTransaction decodes a serialized (legacy or versioned) transaction, places
// signer's signature in its required-signer slot and re-serializes it.
// The returned signature is the transaction's first (fee payer) signature.
func SignTransaction(raw []byte, signer Signer) ([]byte, solanago.Signature, error) {
	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, solanago.Signature{}, fmt.Errorf("decode transaction: %w", err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	if required == 0 || required > len(tx.Message.AccountKeys) {
		return nil, solanago.Signature{}, fmt.Errorf("malformed header: %d required signatures", required)
	}

	slot := -1
	pub := signer.PublicKey()
	for i, key := range tx.Message.AccountKeys[:required] {
		if key.Equals(pub) {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, solanago.Signature{}, errors.New("wallet is not a required signer")
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, solanago.Signature{}, fmt.Errorf("marshal message: %w", err)
	}

	sig, err := signer.Sign(msg)
	if err != nil {
		return nil, solanago.Signature{}, fmt.Errorf("sign: %w", err)
	}

	if len(tx.Signatures) < required {
		sigs := make([]solanago.Signature, required)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	tx.Signatures[slot] = sig

	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, solanago.Signature{}, fmt.Errorf("marshal transaction: %w", err)
	}
	return out, tx.Signatures[0], nil
}
