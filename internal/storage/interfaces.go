// Package storage defines the position journal.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
)

// PositionStore journals finished buy, hold, sell cycles.
// Records are written once, when the cycle reaches a terminal state.
type PositionStore interface {
	// Insert adds a finished position. Returns ErrDuplicateKey if the ID exists
	// and ErrInvalidInput if the position is not terminal.
	Insert(ctx context.Context, p *domain.Position) error

	// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Position, error)

	// ListByMint retrieves all positions for a mint, ordered by opened_at ASC.
	ListByMint(ctx context.Context, mint string) ([]*domain.Position, error)
}

// Validate checks the fields every journaled position must carry.
func Validate(p *domain.Position) error {
	if p == nil || p.ID == uuid.Nil || p.Mint == "" || !p.State.IsTerminal() {
		return ErrInvalidInput
	}
	return nil
}
