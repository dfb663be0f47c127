package domain

import (
	"time"

	"github.com/google/uuid"
)

// PositionState is a stage of the buy, hold, sell cycle.
type PositionState string

const (
	StateIdle            PositionState = "IDLE"
	StateBuying          PositionState = "BUYING"
	StateAwaitingReceipt PositionState = "AWAITING_RECEIPT"
	StateHolding         PositionState = "HOLDING"
	StateSelling         PositionState = "SELLING"
	StateClosed          PositionState = "CLOSED"
	StateFailed          PositionState = "FAILED"
)

// String returns the string representation of PositionState.
func (s PositionState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s PositionState) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

// Position is the journal record of one buy, hold, sell cycle.
// Corresponds to positions table in PostgreSQL.
type Position struct {
	ID    uuid.UUID     // PRIMARY KEY
	Mint  string        // traded token mint
	Owner string        // wallet public key
	State PositionState // last reached state

	BuySignature  string // confirmed buy transaction, empty if none
	SellSignature string // confirmed sell transaction, empty if none

	LamportsIn     uint64 // SOL spent on the buy
	TokensReceived uint64 // balance gained after the buy settled (base units)
	TokensSold     uint64 // token amount quoted for the sell
	LamportsOut    uint64 // SOL quoted for the sell
	TokenDecimals  uint8

	BuyAttempts  int // outer buy attempts used
	SellAttempts int // outer sell attempts used

	FailureReason string // set when State is StateFailed
	FailedIn      PositionState

	OpenedAt time.Time
	ClosedAt time.Time
}

// NewPosition starts a cycle record for mint.
func NewPosition(mint, owner string, now time.Time) *Position {
	return &Position{
		ID:       uuid.New(),
		Mint:     mint,
		Owner:    owner,
		State:    StateIdle,
		OpenedAt: now,
	}
}

// Fail marks the position failed while in its current state.
func (p *Position) Fail(reason error, now time.Time) {
	p.FailedIn = p.State
	p.State = StateFailed
	if reason != nil {
		p.FailureReason = reason.Error()
	}
	p.ClosedAt = now
}

// Close marks the position closed.
func (p *Position) Close(now time.Time) {
	p.State = StateClosed
	p.ClosedAt = now
}

// Duration returns the time from open to close, zero while open.
func (p *Position) Duration() time.Duration {
	if p.ClosedAt.IsZero() {
		return 0
	}
	return p.ClosedAt.Sub(p.OpenedAt)
}
