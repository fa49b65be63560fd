package indexing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		maxAttempts int
		wantErr     bool
		wantCalls   int
	}{
		{"first try", 0, 3, false, 1},
		{"eventual success", 2, 5, false, 3},
		{"all attempts fail", 10, 3, true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryWithBackoff(context.Background(), func() error {
				calls++
				if calls <= tt.failures {
					return errors.New("temporary error")
				}
				return nil
			}, tt.maxAttempts, time.Millisecond)

			if tt.wantErr {
				assert.EqualError(t, err, "temporary error")
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	}, 10, 10*time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	var stamps []time.Time
	err := RetryWithBackoff(context.Background(), func() error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 3 {
			return errors.New("error")
		}
		return nil
	}, 5, 20*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, stamps, 3)

	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 40*time.Millisecond)
}

func TestRetryWithBackoff_InvalidMaxAttempts(t *testing.T) {
	for _, n := range []int{0, -1} {
		attempts := 0
		err := RetryWithBackoff(context.Background(), func() error {
			attempts++
			return nil
		}, n, time.Millisecond)
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
		assert.Zero(t, attempts)
	}
}

func TestRetryWithBackoff_Permanent(t *testing.T) {
	invalid := errors.New("invalid batch")
	calls := 0
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return Permanent(invalid)
	}, 5, time.Millisecond)

	assert.Equal(t, invalid, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, Permanent(nil))
}
