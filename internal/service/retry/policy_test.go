package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

type recorder struct {
	slept []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestPolicyDelay(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: 15 * time.Second, Multiplier: 2}
	assert.Equal(t, 15*time.Second, p.Delay(1))
	assert.Equal(t, 30*time.Second, p.Delay(2))
	assert.Equal(t, 60*time.Second, p.Delay(3))

	capped := Policy{BaseDelay: time.Second, Multiplier: 2, MaxDelay: 3 * time.Second}
	assert.Equal(t, 3*time.Second, capped.Delay(5))
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	rec := &recorder{}
	p := Policy{MaxAttempts: 3, BaseDelay: 15 * time.Second, Multiplier: 2}

	calls := 0
	attempts, err := Do(context.Background(), p, rec.sleep, isTransient, func(context.Context, int) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{15 * time.Second, 30 * time.Second}, rec.slept)
}

func TestDoStopsOnTerminalError(t *testing.T) {
	rec := &recorder{}
	terminal := errors.New("invalid number")

	attempts, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Second}, rec.sleep, isTransient, func(context.Context, int) error {
		return terminal
	})

	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, rec.slept)
}

func TestDoExhaustsAttempts(t *testing.T) {
	rec := &recorder{}

	attempts, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}, rec.sleep, isTransient, func(context.Context, int) error {
		return errTransient
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, attempts)
	assert.Len(t, rec.slept, 2)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Hour}, Sleep, isTransient, func(context.Context, int) error {
		return errTransient
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
