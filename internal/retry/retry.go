// Package retry runs an operation under a bounded attempt policy and reports
// every attempt it made.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/nep7une-w/jupiter-trading-bot/internal/observability"
)

// Policy bounds an operation's attempts.
type Policy struct {
	MaxAttempts  int           // total attempts, at least 1
	InitialDelay time.Duration // delay after the first failure
	MaxDelay     time.Duration // cap on any single delay, 0 = uncapped
	Exponential  bool          // double the delay after every failure

	// Retryable reports whether err is worth another attempt. Nil retries everything.
	Retryable func(err error) bool
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: delay}
}

// Exponential returns a policy whose delay doubles after every failure, capped at maxDelay.
func Exponential(attempts int, initial, maxDelay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: initial, MaxDelay: maxDelay, Exponential: true}
}

// Backoff returns the delay after failed attempt n (1-based).
func (p Policy) Backoff(n int) time.Duration {
	d := p.InitialDelay
	if p.Exponential {
		for i := 1; i < n; i++ {
			if d > math.MaxInt64/2 {
				d = math.MaxInt64
				break
			}
			d *= 2
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				break
			}
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p Policy) retryable(err error) bool {
	return p.Retryable == nil || p.Retryable(err)
}

// Attempt describes one execution of the operation.
type Attempt struct {
	Index       int // 1-based
	MaxAttempts int
	Delay       time.Duration // waited before this attempt
	Elapsed     time.Duration // time spent in the operation
	Err         error         // nil on success
}

// Outcome is the result of Do: a value, or the failure with its attempt history.
type Outcome[T any] struct {
	Value    T
	Err      error
	Attempts []Attempt
}

// OK reports whether the operation eventually succeeded.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// ExhaustedError is returned when every allowed attempt failed, or an attempt
// failed with a non-retryable error. It unwraps to the last attempt's error.
type ExhaustedError struct {
	Label     string
	Attempts  []Attempt
	Permanent bool // stopped early on a non-retryable error
}

func (e *ExhaustedError) Error() string {
	last := e.Last()
	if e.Permanent {
		return fmt.Sprintf("%s: attempt %d/%d failed permanently: %v", e.Label, last.Index, last.MaxAttempts, last.Err)
	}
	return fmt.Sprintf("%s: failed after %d attempt(s): %v", e.Label, len(e.Attempts), last.Err)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last().Err
}

// Last returns the final attempt.
func (e *ExhaustedError) Last() Attempt {
	if len(e.Attempts) == 0 {
		return Attempt{}
	}
	return e.Attempts[len(e.Attempts)-1]
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures Do.
type Option func(*options)

type options struct {
	sleep  Sleeper
	logger *zap.Logger
}

// WithSleeper replaces the backoff wait.
func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		o.sleep = s
	}
}

// WithLogger logs failed attempts to l.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Do runs op until it succeeds, the policy is exhausted, op fails with a
// non-retryable error, or ctx is done. op is invoked fresh on every attempt.
func Do[T any](ctx context.Context, label string, p Policy, op func(ctx context.Context, a Attempt) (T, error), opts ...Option) Outcome[T] {
	o := options{sleep: sleep, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var out Outcome[T]
	var delay time.Duration

	for i := 1; i <= maxAttempts; i++ {
		if i > 1 {
			delay = p.Backoff(i - 1)
			if err := o.sleep(ctx, delay); err != nil {
				out.Err = err
				return out
			}
		}

		a := Attempt{Index: i, MaxAttempts: maxAttempts, Delay: delay}
		start := time.Now()
		value, err := op(ctx, a)
		a.Elapsed = time.Since(start)
		a.Err = err
		out.Attempts = append(out.Attempts, a)
		observability.RecordAttempt(label, err)

		if err == nil {
			out.Value = value
			return out
		}

		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			out.Err = err
			return out
		}

		if !p.retryable(err) {
			o.logger.Warn("attempt failed permanently",
				zap.String("op", label), zap.Int("attempt", i), zap.Int("max", maxAttempts), zap.Error(err))
			out.Err = &ExhaustedError{Label: label, Attempts: out.Attempts, Permanent: true}
			return out
		}

		if i < maxAttempts {
			o.logger.Warn("attempt failed, retrying",
				zap.String("op", label), zap.Int("attempt", i), zap.Int("max", maxAttempts),
				zap.Duration("backoff", p.Backoff(i)), zap.Error(err))
		}
	}

	observability.RecordExhausted(label)
	o.logger.Error("attempts exhausted", zap.String("op", label), zap.Int("attempts", maxAttempts), zap.Error(out.Attempts[len(out.Attempts)-1].Err))
	out.Err = &ExhaustedError{Label: label, Attempts: out.Attempts}
	return out
}

// WithRetry is Do for callers that only need the value or the error.
func WithRetry[T any](ctx context.Context, label string, p Policy, op func(ctx context.Context, a Attempt) (T, error), opts ...Option) (T, error) {
	out := Do(ctx, label, p, op, opts...)
	return out.Value, out.Err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
