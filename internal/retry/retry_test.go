package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordedTimer fires immediately and remembers every requested wait.
type recordedTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func (r *recordedTimer) Start(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	r.c = make(chan time.Time, 1)
	r.c <- time.Time{}
}

func (r *recordedTimer) Stop() {}

func (r *recordedTimer) C() <-chan time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.c
}

// stuckTimer never fires, so only cancellation can end a backoff wait.
type stuckTimer struct {
	onStart func()
}

func (s *stuckTimer) Start(time.Duration) {
	if s.onStart != nil {
		s.onStart()
	}
}

func (s *stuckTimer) Stop()               {}
func (s *stuckTimer) C() <-chan time.Time { return nil }

type recordingObserver struct {
	failures []State
	retries  []bool
	timeouts int
}

func (o *recordingObserver) AttemptFailed(state State, willRetry bool, _ time.Duration) {
	o.failures = append(o.failures, state)
	o.retries = append(o.retries, willRetry)
}

func (o *recordingObserver) AttemptTimedOut(State, time.Duration) {
	o.timeouts++
}

func TestNew_Defaults(t *testing.T) {
	e := New()
	require.Equal(t, DefaultMaxRetries, e.MaxRetries())
	require.Equal(t, DefaultAttemptTimeout, e.AttemptTimeout())
	require.Equal(t, time.Second, e.Delay(0))
	require.Equal(t, 2*time.Second, e.Delay(1))
	require.Equal(t, 3*time.Second, e.Delay(2))
}

func TestNew_IgnoresInvalidOptions(t *testing.T) {
	e := New(WithMaxRetries(0), WithAttemptTimeout(-time.Second), WithBaseDelay(-1))
	require.Equal(t, DefaultMaxRetries, e.MaxRetries())
	require.Equal(t, DefaultAttemptTimeout, e.AttemptTimeout())
	require.Equal(t, DefaultBaseDelay, e.Delay(0))
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	sl := &recordedTimer{}
	calls := 0
	out, err := Do(context.Background(), New(WithTimer(sl)), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 1, calls)
	require.Empty(t, sl.delays)
}

func TestDo_RetriesTransportErrorsThenSucceeds(t *testing.T) {
	sl := &recordedTimer{}
	calls := 0
	out, err := Do(context.Background(), New(WithTimer(sl)), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset")
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, out)
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sl.delays)
}

func TestDo_ExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	for _, maxRetries := range []int{1, 3, 5} {
		sl := &recordedTimer{}
		obs := &recordingObserver{}
		calls := 0
		e := New(WithMaxRetries(maxRetries), WithBaseDelay(100*time.Millisecond), WithTimer(sl), WithObserver(obs))

		_, err := Do(context.Background(), e, func(context.Context) (struct{}, error) {
			calls++
			return struct{}{}, errors.New("dial failure " + string(rune('0'+calls)))
		})
		require.Error(t, err)
		require.Equal(t, "dial failure "+string(rune('0'+maxRetries)), err.Error())
		require.Equal(t, maxRetries, calls)

		var want []time.Duration
		for i := 1; i < maxRetries; i++ {
			want = append(want, time.Duration(i)*100*time.Millisecond)
		}
		require.Equal(t, want, sl.delays, "maxRetries=%d", maxRetries)
		require.Len(t, obs.failures, maxRetries)
		require.False(t, obs.retries[len(obs.retries)-1])
	}
}

func TestDo_TimeoutShortCircuits(t *testing.T) {
	sl := &recordedTimer{}
	obs := &recordingObserver{}
	calls := 0
	e := New(WithAttemptTimeout(20*time.Millisecond), WithTimer(sl), WithObserver(obs))

	_, err := Do(context.Background(), e, func(ctx context.Context) (string, error) {
		calls++
		<-ctx.Done()
		return "", ctx.Err()
	})
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, "request timed out", err.Error())
	require.Equal(t, 0, timeoutErr.Attempt)
	require.Equal(t, 20*time.Millisecond, timeoutErr.Timeout)
	require.Equal(t, 1, calls)
	require.Empty(t, sl.delays)
	require.Equal(t, 1, obs.timeouts)
}

func TestDo_TimeoutAfterTransportFailure(t *testing.T) {
	sl := &recordedTimer{}
	calls := 0
	e := New(WithAttemptTimeout(20*time.Millisecond), WithTimer(sl))

	_, err := Do(context.Background(), e, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("connection refused")
		}
		<-ctx.Done()
		return "", ctx.Err()
	})
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, 1, timeoutErr.Attempt)
	require.Equal(t, 2, calls)
	require.Equal(t, []time.Duration{time.Second}, sl.delays)
}

func TestDo_CallerCancellationIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, New(), func(context.Context) (string, error) {
		calls++
		cancel()
		return "", errors.New("aborted")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestDo_CancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := New(WithTimer(&stuckTimer{onStart: cancel}))
	calls := 0
	_, err := Do(ctx, e, func(context.Context) (string, error) {
		calls++
		return "", errors.New("connection reset")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestDo_RejectsNilArguments(t *testing.T) {
	_, err := Do[string](context.Background(), nil, func(context.Context) (string, error) { return "", nil })
	require.Error(t, err)

	_, err = Do[string](context.Background(), New(), nil)
	require.Error(t, err)
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	sl := &recordedTimer{}
	obs := &recordingObserver{}
	calls := 0
	cause := errors.New("truncated body")
	_, err := Do(context.Background(), New(WithTimer(sl), WithObserver(obs)), func(context.Context) (string, error) {
		calls++
		return "", Permanent(cause)
	})
	require.ErrorIs(t, err, cause)
	require.Equal(t, 1, calls)
	require.Empty(t, sl.delays)
	require.Equal(t, []bool{false}, obs.retries)
}

func TestDo_DefaultTimerWaitsRealDelay(t *testing.T) {
	calls := 0
	start := time.Now()
	out, err := Do(context.Background(), New(WithBaseDelay(20*time.Millisecond)), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{e: New(WithBaseDelay(500 * time.Millisecond))}
	require.Equal(t, 500*time.Millisecond, b.NextBackOff())
	require.Equal(t, time.Second, b.NextBackOff())
	b.Reset()
	require.Equal(t, 500*time.Millisecond, b.NextBackOff())
}
