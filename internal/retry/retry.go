// Package retry runs an upstream call with a bounded number of attempts,
// a per-attempt deadline and linear backoff between failed attempts.
//
// Only transport failures are retried. An attempt that outlives its deadline
// ends the whole sequence with a *TimeoutError, and a successful attempt is
// returned as-is whatever it contains.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)
const (
	DefaultMaxRetries     = 3
	DefaultBaseDelay      = time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

// State is the bookkeeping of one attempt sequence. Attempt is zero-based.
type State struct {
	Attempt int
	LastErr error
}

// TimeoutError reports that a single attempt exceeded the per-attempt deadline.
type TimeoutError struct {
	Attempt int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return "request timed out"
}

// Timeout lets callers detect the error through a net.Error-style interface.
func (e *TimeoutError) Timeout() bool { return true }

// Attempt performs one call. ctx carries the per-attempt deadline and must be
// honoured by any I/O the attempt does.
type Attempt[T any] func(ctx context.Context) (T, error)

// Observer is notified about retry decisions. Implementations must be safe for
// concurrent use.
type Observer interface {
	AttemptFailed(state State, willRetry bool, delay time.Duration)
	AttemptTimedOut(state State, timeout time.Duration)
}

// Executor holds the retry policy. The zero value is not usable; build one
// with New.
type Executor struct {
	maxRetries     int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	timer          backoff.Timer
	observer       Observer
}

type Option func(*Executor)

// WithMaxRetries sets the total number of attempts. Values below one fall back
// to DefaultMaxRetries.
func WithMaxRetries(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.baseDelay = d
		}
	}
}

func WithAttemptTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.attemptTimeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// WithTimer replaces the timer that paces backoff waits. Tests use it to
// record delays without sleeping.
func WithTimer(t backoff.Timer) Option {
	return func(e *Executor) {
		e.timer = t
	}
}

func New(opts ...Option) *Executor {
	e := &Executor{
		maxRetries:     DefaultMaxRetries,
		baseDelay:      DefaultBaseDelay,
		attemptTimeout: DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) MaxRetries() int               { return e.maxRetries }
func (e *Executor) AttemptTimeout() time.Duration { return e.attemptTimeout }

// Delay returns the wait inserted after the failed attempt with the given
// zero-based index.
func (e *Executor) Delay(attempt int) time.Duration {
	return e.baseDelay * time.Duration(attempt+1)
}

// Do runs fn until it succeeds, times out, or the attempts are exhausted, in
// which case the last transport error is returned unchanged. Cancellation of
// ctx stops the sequence immediately with ctx's error.
func Do[T any](ctx context.Context, e *Executor, fn Attempt[T]) (T, error) {
	var zero T
	if e == nil {
		return zero, errors.New("retry: executor must not be nil")
	}
	if fn == nil {
		return zero, errors.New("retry: attempt must not be nil")
	}

	state := State{Attempt: -1}
	stopped := false
	op := func() (T, error) {
		state.Attempt++
		out, err := runAttempt(ctx, e.attemptTimeout, fn)
		if err == nil {
			return out, nil
		}

		var timeoutErr *TimeoutError
		if errors.As(err, &timeoutErr) {
			timeoutErr.Attempt = state.Attempt
			e.notifyTimeout(state)
			stopped = true
			return zero, backoff.Permanent(err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			stopped = true
			return zero, backoff.Permanent(fmt.Errorf("retry: caller gave up on attempt %d: %w", state.Attempt+1, ctxErr))
		}
		state.LastErr = err
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			state.LastErr = permanent.Err
			e.notifyFailure(state, false, 0)
			stopped = true
		}
		return zero, err
	}
	notify := func(_ error, delay time.Duration) {
		e.notifyFailure(state, true, delay)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{e: e}, uint64(e.maxRetries-1)), ctx)
	out, err := backoff.RetryNotifyWithTimerAndData(op, policy, notify, e.timer)
	if err == nil {
		return out, nil
	}
	if !stopped {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return zero, fmt.Errorf("retry: caller gave up during backoff: %w", err)
		}
		e.notifyFailure(state, false, 0)
	}
	return zero, err
}

// Permanent marks err so that Do returns it without further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// linearBackOff waits Delay(0), Delay(1), ... between attempts.
type linearBackOff struct {
	e *Executor
	n int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	d := b.e.Delay(b.n)
	b.n++
	return d
}

func (b *linearBackOff) Reset() { b.n = 0 }

// runAttempt bounds one call by timeout. The deadline is attributed to the
// attempt only when the caller's own context is still live.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn Attempt[T]) (T, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := fn(attemptCtx)
	if err == nil {
		return out, nil
	}
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, &TimeoutError{Timeout: timeout}
	}
	return out, err
}

func (e *Executor) notifyFailure(state State, willRetry bool, delay time.Duration) {
	slog.Warn("upstream attempt failed",
		"attempt", state.Attempt+1,
		"max_retries", e.maxRetries,
		"will_retry", willRetry,
		"backoff", delay,
		"err", state.LastErr,
	)
	if e.observer != nil {
		e.observer.AttemptFailed(state, willRetry, delay)
	}
}

func (e *Executor) notifyTimeout(state State) {
	slog.Warn("upstream attempt timed out",
		"attempt", state.Attempt+1,
		"timeout", e.attemptTimeout,
	)
	if e.observer != nil {
		e.observer.AttemptTimedOut(state, e.attemptTimeout)
	}
}
