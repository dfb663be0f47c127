package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
	"github.com/nep7une-w/jupiter-trading-bot/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	id, mint, owner, state, failed_in, failure_reason,
	buy_signature, sell_signature,
	lamports_in, tokens_received, tokens_sold, lamports_out, token_decimals,
	buy_attempts, sell_attempts, opened_at, closed_at`

// Insert adds a finished position. Returns ErrDuplicateKey if id exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) (err error) {
	if err := storage.Validate(p); err != nil {
		return err
	}
	defer func(start time.Time) { observe("position_insert", start, err) }(time.Now())

	query := `INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err = s.pool.Exec(ctx, query,
		p.ID,
		p.Mint,
		p.Owner,
		string(p.State),
		string(p.FailedIn),
		p.FailureReason,
		p.BuySignature,
		p.SellSignature,
		numeric(p.LamportsIn),
		numeric(p.TokensReceived),
		numeric(p.TokensSold),
		numeric(p.LamportsOut),
		int16(p.TokenDecimals),
		p.BuyAttempts,
		p.SellAttempts,
		p.OpenedAt,
		p.ClosedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, id uuid.UUID) (p *domain.Position, err error) {
	defer func(start time.Time) { observe("position_get", start, err) }(time.Now())

	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	p, err = scanPosition(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// ListByMint retrieves all positions for a mint, ordered by opened_at ASC.
func (s *PositionStore) ListByMint(ctx context.Context, mint string) (out []*domain.Position, err error) {
	defer func(start time.Time) { observe("position_list", start, err) }(time.Now())

	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE mint = $1
		ORDER BY opened_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("list positions by mint: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return out, nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p                                   domain.Position
		state, failedIn                     string
		lamportsIn, received, sold, lampOut pgtype.Numeric
		decimals                            int16
	)

	err := row.Scan(
		&p.ID,
		&p.Mint,
		&p.Owner,
		&state,
		&failedIn,
		&p.FailureReason,
		&p.BuySignature,
		&p.SellSignature,
		&lamportsIn,
		&received,
		&sold,
		&lampOut,
		&decimals,
		&p.BuyAttempts,
		&p.SellAttempts,
		&p.OpenedAt,
		&p.ClosedAt,
	)
	if err != nil {
		return nil, err
	}

	p.State = domain.PositionState(state)
	p.FailedIn = domain.PositionState(failedIn)
	p.TokenDecimals = uint8(decimals)
	p.LamportsIn = fromNumeric(lamportsIn)
	p.TokensReceived = fromNumeric(received)
	p.TokensSold = fromNumeric(sold)
	p.LamportsOut = fromNumeric(lampOut)
	return &p, nil
}

// numeric encodes a base-unit amount for a NUMERIC(20) column.
func numeric(v uint64) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).SetUint64(v), Valid: true}
}

func fromNumeric(n pgtype.Numeric) uint64 {
	if !n.Valid || n.Int == nil {
		return 0
	}
	return decimal.NewFromBigInt(n.Int, n.Exp).BigInt().Uint64()
}
