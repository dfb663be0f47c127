package execution

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
	"github.com/nep7une-w/jupiter-trading-bot/internal/observability"
	"github.com/nep7une-w/jupiter-trading-bot/internal/solana"
)

// Default confirmation settings.
const (
	DefaultPollInterval   = 2 * time.Second
	DefaultConfirmTimeout = 60 * time.Second
)

// SubmitterConfig holds confirmation settings.
type SubmitterConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration // wall-clock backstop; block height is the primary expiry
}

// DefaultSubmitterConfig returns the default confirmation settings.
func DefaultSubmitterConfig() SubmitterConfig {
	return SubmitterConfig{
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultConfirmTimeout,
	}
}

// Submitter simulates, broadcasts and confirms signed transactions.
type Submitter struct {
	rpc    solana.RPCClient
	ws     solana.SignatureSubscriber
	cfg    SubmitterConfig
	logger *zap.Logger
}

// NewSubmitter creates a submitter. ws may be nil, in which case confirmation
// relies on polling alone.
func NewSubmitter(rpc solana.RPCClient, ws solana.SignatureSubscriber, cfg SubmitterConfig, logger *zap.Logger) *Submitter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfirmTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		rpc:    rpc,
		ws:     ws,
		cfg:    cfg,
		logger: logger.Named("submitter"),
	}
}

// Simulate runs a pre-flight simulation. A simulated execution error is
// reported as ErrSimulationRejected; transport errors are returned as-is.
func (s *Submitter) Simulate(ctx context.Context, tx *domain.SignedTransaction) error {
	res, err := s.rpc.SimulateTransaction(ctx, encode(tx))
	if err != nil {
		return fmt.Errorf("simulate %s: %w", tx.Signature, err)
	}
	if res.Err != nil {
		observability.RecordSimulationReject()
		s.logger.Warn("simulation rejected",
			zap.String("signature", tx.Signature),
			zap.Any("error", res.Err),
			zap.Strings("logs", tailLogs(res.Logs, 5)))
		return fmt.Errorf("%w: %v", ErrSimulationRejected, res.Err)
	}

	s.logger.Debug("simulation ok",
		zap.String("signature", tx.Signature),
		zap.Uint64("units_consumed", res.UnitsConsumed))
	return nil
}

// Submit broadcasts tx once and waits for a terminal confirmation outcome.
// The returned error is non-nil only when the broadcast fails or ctx ends.
func (s *Submitter) Submit(ctx context.Context, tx *domain.SignedTransaction) (*domain.ConfirmationResult, error) {
	start := time.Now()

	noResend := uint(0)
	if _, err := s.rpc.SendTransaction(ctx, encode(tx), solana.SendOpts{
		SkipPreflight: true,
		MaxRetries:    &noResend,
	}); err != nil {
		observability.RecordSubmission("send_error", time.Since(start).Seconds())
		return nil, fmt.Errorf("send %s: %w", tx.Signature, err)
	}

	log := s.logger.With(zap.String("signature", tx.Signature))
	log.Info("transaction sent", zap.Uint64("last_valid_block_height", tx.LastValidBlockHeight))

	// Timeout bounds the polls themselves, not only the wait between them.
	pollCtx, cancel := context.WithDeadline(ctx, start.Add(s.cfg.Timeout))
	defer cancel()

	notify := s.subscribe(pollCtx, tx.Signature, log)

	tick := time.NewTimer(s.cfg.PollInterval)
	defer tick.Stop()

	res := &domain.ConfirmationResult{Signature: tx.Signature}
	for {
		if pollCtx.Err() != nil {
			return s.stopped(ctx, res, start, log)
		}
		select {
		case <-pollCtx.Done():
			return s.stopped(ctx, res, start, log)
		case n, ok := <-notify:
			if !ok {
				notify = nil
				continue
			}
			log.Debug("signature notification", zap.Int64("slot", n.Slot))
		case <-tick.C:
		}

		res.Polls++
		landed, err := s.rpc.GetTransaction(pollCtx, tx.Signature)
		switch {
		case err != nil:
			if pollCtx.Err() != nil {
				continue
			}
			log.Warn("transaction lookup failed", zap.Int("poll", res.Polls), zap.Error(err))
		case landed != nil:
			res.Slot = landed.Slot
			if landed.Failed() {
				res.Status = domain.StatusConfirmedWithError
				res.Err = landed.Meta.Err
			} else {
				res.Status = domain.StatusConfirmed
			}
			return s.finish(res, start, log), nil
		}

		height, err := s.rpc.GetBlockHeight(pollCtx)
		if err != nil {
			if pollCtx.Err() == nil {
				log.Warn("block height lookup failed", zap.Error(err))
			}
		} else if height > tx.LastValidBlockHeight {
			res.Status = domain.StatusNotFoundBeforeExpiry
			res.Reason = domain.ExpiryBlockHeightExceeded
			return s.finish(res, start, log), nil
		}

		resetTimer(tick, s.cfg.PollInterval)
	}
}

// Lookup reports whether an earlier submission of tx has landed. It returns
// nil when the transaction is not visible yet.
func (s *Submitter) Lookup(ctx context.Context, tx *domain.SignedTransaction) (*domain.ConfirmationResult, error) {
	landed, err := s.rpc.GetTransaction(ctx, tx.Signature)
	if err != nil || landed == nil {
		return nil, err
	}
	res := &domain.ConfirmationResult{Signature: tx.Signature, Slot: landed.Slot, Status: domain.StatusConfirmed}
	if landed.Failed() {
		res.Status = domain.StatusConfirmedWithError
		res.Err = landed.Meta.Err
	}
	return res, nil
}

// stopped ends a Submit whose poll context is done: a canceled caller gets
// ctx.Err(), an elapsed Timeout gets the timeout outcome.
func (s *Submitter) stopped(ctx context.Context, res *domain.ConfirmationResult, start time.Time, log *zap.Logger) (*domain.ConfirmationResult, error) {
	if err := ctx.Err(); err != nil {
		observability.RecordSubmission("canceled", time.Since(start).Seconds())
		return nil, err
	}
	res.Status = domain.StatusNotFoundBeforeExpiry
	res.Reason = domain.ExpiryTimeout
	return s.finish(res, start, log), nil
}

// Execute simulates, submits and maps the confirmation outcome to an error.
func (s *Submitter) Execute(ctx context.Context, tx *domain.SignedTransaction) (*domain.ConfirmationResult, error) {
	if err := s.Simulate(ctx, tx); err != nil {
		return nil, err
	}
	res, err := s.Submit(ctx, tx)
	if err != nil {
		return nil, err
	}
	return res, ResultError(res)
}

// ResultError maps a non-confirmed outcome to the execution error taxonomy.
func ResultError(res *domain.ConfirmationResult) error {
	switch res.Status {
	case domain.StatusConfirmed:
		return nil
	case domain.StatusConfirmedWithError:
		return fmt.Errorf("%w: %s: %v", ErrOnChainExecution, res.Signature, res.Err)
	}
	if res.Reason == domain.ExpiryBlockHeightExceeded {
		return fmt.Errorf("%w: %s", ErrConfirmationExpired, res.Signature)
	}
	return fmt.Errorf("%w: %s", ErrConfirmationTimeout, res.Signature)
}

func (s *Submitter) subscribe(ctx context.Context, sig string, log *zap.Logger) <-chan solana.SignatureNotification {
	if s.ws == nil {
		return nil
	}
	ch, err := s.ws.SubscribeSignature(ctx, sig)
	if err != nil {
		log.Warn("signature subscription failed, polling only", zap.Error(err))
		return nil
	}
	return ch
}

func (s *Submitter) finish(res *domain.ConfirmationResult, start time.Time, log *zap.Logger) *domain.ConfirmationResult {
	elapsed := time.Since(start)
	observability.RecordSubmission(string(res.Status), elapsed.Seconds())

	fields := []zap.Field{
		zap.String("status", string(res.Status)),
		zap.Int("polls", res.Polls),
		zap.Duration("elapsed", elapsed),
	}
	switch res.Status {
	case domain.StatusConfirmed:
		log.Info("transaction confirmed", append(fields, zap.Int64("slot", res.Slot))...)
	case domain.StatusConfirmedWithError:
		log.Warn("transaction failed on chain", append(fields, zap.Any("error", res.Err))...)
	default:
		log.Warn("transaction not confirmed", append(fields, zap.String("reason", string(res.Reason)))...)
	}
	return res
}

func encode(tx *domain.SignedTransaction) string {
	return base64.StdEncoding.EncodeToString(tx.Payload)
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func tailLogs(logs []string, n int) []string {
	if len(logs) <= n {
		return logs
	}
	return logs[len(logs)-n:]
}
