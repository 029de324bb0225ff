package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func call(b *Breaker, success bool) error {
	return b.Run(context.Background(), func(context.Context) error {
		if success {
			return nil
		}
		return errBoom
	})
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		calls         []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			settings:      Settings{Window: time.Minute, Cooldown: time.Minute},
			calls:         []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name:          "opens after default threshold",
			settings:      Settings{Window: time.Minute, Cooldown: time.Minute},
			calls:         []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name:          "success resets consecutive failures",
			settings:      Settings{Window: time.Minute, Cooldown: time.Minute},
			calls:         []bool{false, false, true, false, false},
			expectedState: StateClosed,
		},
		{
			name: "custom trip function",
			settings: Settings{
				Window:   time.Minute,
				Cooldown: time.Minute,
				Trip:     func(c Counts) bool { return c.Failures >= 1 },
			},
			calls:         []bool{false},
			expectedState: StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("test", tt.settings)
			for _, ok := range tt.calls {
				_ = call(b, ok)
			}
			assert.Equal(t, tt.expectedState, b.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	b := New("test", Settings{Window: time.Minute, Cooldown: time.Minute})

	require.NoError(t, call(b, true))
	counts := b.Counts()
	assert.Equal(t, uint32(1), counts.Calls)
	assert.Equal(t, uint32(1), counts.Successes)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)

	assert.ErrorIs(t, call(b, false), errBoom)
	counts = b.Counts()
	assert.Equal(t, uint32(2), counts.Calls)
	assert.Equal(t, uint32(1), counts.Failures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerOpenRejectsWithoutRunning(t *testing.T) {
	b := New("rod", Settings{
		Window:   time.Minute,
		Cooldown: time.Minute,
		Trip:     func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
	})
	_ = call(b, false)
	_ = call(b, false)
	require.Equal(t, StateOpen, b.State())

	ran := false
	err := b.Run(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "rod")
	assert.False(t, ran)
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b := New("test", Settings{
		Probes:   2,
		Window:   time.Minute,
		Cooldown: 30 * time.Millisecond,
		Trip:     func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})
	_ = call(b, false)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, call(b, true))
	require.NoError(t, call(b, true))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New("test", Settings{
		Window:   time.Minute,
		Cooldown: 20 * time.Millisecond,
		Trip:     func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})
	_ = call(b, false)
	time.Sleep(40 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	_ = call(b, false)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := New("test", Settings{
		Window:   time.Minute,
		Cooldown: time.Minute,
		Trip:     func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Run(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerIsFailureClassifier(t *testing.T) {
	errIgnored := errors.New("ignored")
	b := New("test", Settings{
		Window:    time.Minute,
		Cooldown:  time.Minute,
		Trip:      func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		IsFailure: func(err error) bool { return !errors.Is(err, errIgnored) },
	})

	_ = b.Run(context.Background(), func(context.Context) error { return errIgnored })
	assert.Equal(t, StateClosed, b.State())
}

func TestDoReturnsValue(t *testing.T) {
	b := New("test", Settings{})
	v, err := Do(context.Background(), b, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestBreakerCallbacks(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	b := New("test", Settings{
		Window:   time.Minute,
		Cooldown: 10 * time.Millisecond,
		Trip:     func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			transitions = append(transitions, from.String()+"->"+to.String())
			mu.Unlock()
		},
	})

	_ = call(b, false)
	_ = call(b, false)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed->open", "open->half-open"}, transitions)
}
