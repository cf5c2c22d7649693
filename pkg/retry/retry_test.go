package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBusy = errors.New("busy")

func TestDo_RetriesOnlyRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errBusy)
		}
		return nil
	}, WithMaxAttempts(5), WithInitialDelay(time.Millisecond))
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Do(context.Background(), func(context.Context) error {
		calls++
		return errBusy
	}, WithMaxAttempts(5), WithInitialDelay(time.Millisecond))
	assert.Equal(t, errBusy, err)
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUpUnwrapped(t *testing.T) {
	var retries []int
	r := New(
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }),
	)

	err := r.Do(context.Background(), func(context.Context) error { return Retryable(errBusy) })
	assert.Equal(t, errBusy, err)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := New(WithMaxAttempts(10), WithInitialDelay(time.Hour)).Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return Retryable(errBusy)
	})
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 1, calls)
}

func TestCalculateDelay_Capped(t *testing.T) {
	r := New(WithInitialDelay(100*time.Millisecond), WithMaxDelay(300*time.Millisecond), WithJitter(0))
	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(5))
}

func TestLockRetrier(t *testing.T) {
	assert.Equal(t, 7, LockRetrier(7, 10*time.Millisecond).Attempts())
	assert.Equal(t, DefaultConfig().MaxAttempts, LockRetrier(0, 0).Attempts())
}
