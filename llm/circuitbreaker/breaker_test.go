package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg *Config) (*breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := NewCircuitBreaker(cfg, zap.NewNop()).(*breaker)
	b.now = clock.Now
	return b, clock
}

var errFail = errors.New("upstream 503")

func fail(context.Context) error    { return errFail }
func succeed(context.Context) error { return nil }

// ---------------------------------------------------------------------------
// construction
// ---------------------------------------------------------------------------

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	b := NewCircuitBreaker(&Config{HalfOpenMaxCalls: -1}, nil).(*breaker)
	assert.Equal(t, 5, b.cfg.Threshold)
	assert.Equal(t, 30*time.Second, b.cfg.Timeout)
	assert.Equal(t, 60*time.Second, b.cfg.ResetTimeout)
	assert.Equal(t, 1, b.cfg.HalfOpenMaxCalls)
	assert.Equal(t, StateClosed, b.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Closed", StateClosed.String())
	assert.Equal(t, "Open", StateOpen.String())
	assert.Equal(t, "HalfOpen", StateHalfOpen.String())
	assert.Equal(t, "Unknown", State(99).String())
}

// ---------------------------------------------------------------------------
// state machine
// ---------------------------------------------------------------------------

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(&Config{Threshold: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Call(ctx, fail), errFail)
		assert.Equal(t, StateClosed, b.State())
	}
	assert.ErrorIs(t, b.Call(ctx, fail), errFail)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Call(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(&Config{Threshold: 2})
	ctx := context.Background()

	_ = b.Call(ctx, fail)
	require.NoError(t, b.Call(ctx, succeed))
	_ = b.Call(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clock := newTestBreaker(&Config{Threshold: 1, ResetTimeout: time.Minute})
	ctx := context.Background()

	_ = b.Call(ctx, fail)
	require.Equal(t, StateOpen, b.State())

	clock.Advance(59 * time.Second)
	assert.ErrorIs(t, b.Call(ctx, succeed), ErrCircuitOpen)

	clock.Advance(2 * time.Second)
	require.NoError(t, b.Call(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(&Config{Threshold: 1, ResetTimeout: time.Minute})
	ctx := context.Background()

	_ = b.Call(ctx, fail)
	clock.Advance(2 * time.Minute)

	assert.ErrorIs(t, b.Call(ctx, fail), errFail)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Call(ctx, succeed), ErrCircuitOpen)
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	b, clock := newTestBreaker(&Config{Threshold: 1, ResetTimeout: time.Minute, HalfOpenMaxCalls: 1})
	ctx := context.Background()

	_ = b.Call(ctx, fail)
	clock.Advance(2 * time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Call(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, b.Call(ctx, succeed), ErrTooManyCallsInHalfOpen)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(&Config{Threshold: 1})
	err := b.Call(context.Background(), func(context.Context) error {
		return errors.New("LLM_UNAUTHORIZED: bad key")
	})
	assert.Error(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_CustomSuccessPredicate(t *testing.T) {
	b, _ := newTestBreaker(&Config{
		Threshold:    1,
		IsSuccessful: func(err error) bool { return err == nil },
	})
	_ = b.Call(context.Background(), func(context.Context) error {
		return errors.New("LLM_UNAUTHORIZED")
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_CallReceivesTimeout(t *testing.T) {
	b, _ := newTestBreaker(&Config{Timeout: 10 * time.Millisecond, Threshold: 5})
	err := b.Call(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBreaker_ResetAndStateChange(t *testing.T) {
	var transitions []string
	b, _ := newTestBreaker(&Config{
		Threshold: 1,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = b.Call(context.Background(), fail)
	b.Reset()
	b.Reset()

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"Closed->Open", "Open->Closed"}, transitions)
}

func TestCallWithResult(t *testing.T) {
	b, _ := newTestBreaker(nil)

	v, err := CallWithResult(b, context.Background(), func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = CallWithResult(b, context.Background(), func(context.Context) (int, error) { return 7, errFail })
	assert.ErrorIs(t, err, errFail)
	assert.Zero(t, v)
}
