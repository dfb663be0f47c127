package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nep7une-w/jupiter-trading-bot/internal/domain"
	"github.com/nep7une-w/jupiter-trading-bot/internal/solana"
	"github.com/nep7une-w/jupiter-trading-bot/internal/solana/stub"
)

const testSig = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

func signedTx(lastValid uint64) *domain.SignedTransaction {
	return &domain.SignedTransaction{Signature: testSig, Payload: []byte{1, 2, 3}, LastValidBlockHeight: lastValid}
}

func fastSubmitter(rpc solana.RPCClient, ws solana.SignatureSubscriber) *Submitter {
	return NewSubmitter(rpc, ws, SubmitterConfig{PollInterval: 5 * time.Millisecond, Timeout: 5 * time.Second}, nil)
}

// fakeSubscriber delivers one notification as soon as a signature is subscribed.
type fakeSubscriber struct {
	err error
}

func (f *fakeSubscriber) SubscribeSignature(_ context.Context, sig string) (<-chan solana.SignatureNotification, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan solana.SignatureNotification, 1)
	ch <- solana.SignatureNotification{Signature: sig, Slot: 99}
	close(ch)
	return ch, nil
}

func (f *fakeSubscriber) Close() error { return nil }

func TestSubmitter_Confirmed(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeights = []uint64{10}
	rpc.AddTransaction(&solana.Transaction{Signature: testSig, Slot: 7, Meta: &solana.TransactionMeta{}}, 1)

	res, err := fastSubmitter(rpc, nil).Submit(context.Background(), signedTx(100))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConfirmed, res.Status)
	assert.Equal(t, int64(7), res.Slot)
	assert.Equal(t, 2, res.Polls)
	assert.Equal(t, 1, rpc.SentCount())
	assert.NoError(t, ResultError(res))
}

func TestSubmitter_BlockHeightExpiryBeforeTimeout(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeights = []uint64{90, 100, 101}

	s := NewSubmitter(rpc, nil, SubmitterConfig{PollInterval: 5 * time.Millisecond, Timeout: time.Minute}, nil)
	start := time.Now()
	res, err := s.Submit(context.Background(), signedTx(100))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, domain.StatusNotFoundBeforeExpiry, res.Status)
	assert.Equal(t, domain.ExpiryBlockHeightExceeded, res.Reason)
	assert.Equal(t, 3, res.Polls)
	assert.ErrorIs(t, ResultError(res), ErrConfirmationExpired)
}

func TestSubmitter_Timeout(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeights = []uint64{1}

	s := NewSubmitter(rpc, nil, SubmitterConfig{PollInterval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond}, nil)
	res, err := s.Submit(context.Background(), signedTx(100))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusNotFoundBeforeExpiry, res.Status)
	assert.Equal(t, domain.ExpiryTimeout, res.Reason)
	assert.ErrorIs(t, ResultError(res), ErrConfirmationTimeout)
}

func TestSubmitter_TimeoutBoundsSlowLookup(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeights = []uint64{1}
	rpc.AutoConfirm = true
	rpc.GetTransactionDelay = 2 * time.Second

	s := NewSubmitter(rpc, nil, SubmitterConfig{PollInterval: 10 * time.Millisecond, Timeout: 100 * time.Millisecond}, nil)
	start := time.Now()
	res, err := s.Submit(context.Background(), signedTx(100))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, domain.StatusNotFoundBeforeExpiry, res.Status)
	assert.Equal(t, domain.ExpiryTimeout, res.Reason)
	assert.Equal(t, 1, res.Polls)
}

func TestSubmitter_CancelDuringSlowLookup(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.GetTransactionDelay = 2 * time.Second

	s := NewSubmitter(rpc, nil, SubmitterConfig{PollInterval: time.Millisecond, Timeout: time.Hour}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res, err := s.Submit(ctx, signedTx(100))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, res)
}

func TestSubmitter_ConfirmedWithErrorIsBroadcastOnce(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeights = []uint64{10}
	rpc.AddTransaction(&solana.Transaction{
		Signature: testSig,
		Slot:      8,
		Meta:      &solana.TransactionMeta{Err: map[string]interface{}{"InstructionError": []interface{}{2, "Custom"}}},
	}, 0)

	res, err := fastSubmitter(rpc, nil).Execute(context.Background(), signedTx(100))

	assert.ErrorIs(t, err, ErrOnChainExecution)
	assert.True(t, IsPermanent(err))
	require.NotNil(t, res)
	assert.Equal(t, domain.StatusConfirmedWithError, res.Status)
	assert.Len(t, rpc.Simulated, 1)
	assert.Equal(t, 1, rpc.SentCount())
}

func TestSubmitter_PollErrorsAreAbsorbed(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeights = []uint64{10}
	rpc.AutoConfirm = true
	rpc.GetTransactionErrs = []error{errors.New("node behind"), errors.New("connection reset")}

	res, err := fastSubmitter(rpc, nil).Submit(context.Background(), signedTx(100))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConfirmed, res.Status)
	assert.Equal(t, 3, res.Polls)
}

func TestSubmitter_SimulationRejectedIsNotBroadcast(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SimulationErr = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}

	res, err := fastSubmitter(rpc, nil).Execute(context.Background(), signedTx(100))

	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrSimulationRejected)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 0, rpc.SentCount())
}

func TestSubmitter_SimulationTransportError(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SimulateErr = errors.New("dial tcp: refused")

	err := fastSubmitter(rpc, nil).Simulate(context.Background(), signedTx(100))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSimulationRejected)
}

func TestSubmitter_SendError(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SendErr = errors.New("blockhash not found")

	_, err := fastSubmitter(rpc, nil).Submit(context.Background(), signedTx(100))
	assert.Error(t, err)
	assert.Empty(t, rpc.TxPolls)
}

func TestSubmitter_NotificationWakesPoll(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeights = []uint64{10}
	rpc.AddTransaction(&solana.Transaction{Signature: testSig, Slot: 99, Meta: &solana.TransactionMeta{}}, 0)

	s := NewSubmitter(rpc, &fakeSubscriber{}, SubmitterConfig{PollInterval: time.Hour, Timeout: 5 * time.Second}, nil)
	res, err := s.Submit(context.Background(), signedTx(100))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConfirmed, res.Status)
	assert.Equal(t, 1, res.Polls)
}

func TestSubmitter_SubscriptionFailureFallsBackToPolling(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeights = []uint64{10}
	rpc.AddTransaction(&solana.Transaction{Signature: testSig, Meta: &solana.TransactionMeta{}}, 0)

	res, err := fastSubmitter(rpc, &fakeSubscriber{err: errors.New("ws down")}).Submit(context.Background(), signedTx(100))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, res.Status)
}

func TestSubmitter_ContextCancel(t *testing.T) {
	rpc := stub.NewRPCClient()
	s := NewSubmitter(rpc, nil, SubmitterConfig{PollInterval: time.Hour, Timeout: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Submit(ctx, signedTx(100))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitter_Lookup(t *testing.T) {
	rpc := stub.NewRPCClient()
	s := fastSubmitter(rpc, nil)

	res, err := s.Lookup(context.Background(), signedTx(100))
	require.NoError(t, err)
	assert.Nil(t, res)

	rpc.AddTransaction(&solana.Transaction{Signature: testSig, Slot: 9, Meta: &solana.TransactionMeta{}}, 0)
	res, err = s.Lookup(context.Background(), signedTx(100))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, domain.StatusConfirmed, res.Status)
	assert.Equal(t, int64(9), res.Slot)
	assert.Equal(t, 0, rpc.SentCount())
}
