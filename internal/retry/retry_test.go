package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-harvester/internal/harvest"
)

var errFlaky = fmt.Errorf("connection reset: %w", harvest.ErrTransient)

func TestExponentialShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewExponential(3, time.Millisecond, 10*time.Millisecond)
	assert.True(t, p.ShouldRetry(errFlaky, 1))
	assert.True(t, p.ShouldRetry(errFlaky, 2))
	assert.False(t, p.ShouldRetry(errFlaky, 3))
	assert.False(t, p.ShouldRetry(errors.New("boom"), 1))
	assert.False(t, p.ShouldRetry(&harvest.StatusError{Code: 404}, 1))
	assert.False(t, p.ShouldRetry(context.Canceled, 1))
	assert.False(t, p.ShouldRetry(nil, 1))
}

func TestExponentialBackoffBounds(t *testing.T) {
	t.Parallel()

	p := NewExponential(10, 100*time.Millisecond, time.Second)
	for attempt := 1; attempt < 10; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestUnlimitedNeverGivesUpAndNeverWaits(t *testing.T) {
	t.Parallel()

	p := Unlimited()
	assert.True(t, p.ShouldRetry(errFlaky, 1_000_000))
	assert.Zero(t, p.Backoff(50))
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), NewExponential(5, time.Millisecond, time.Millisecond), "search", func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReportsExhaustion(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), NewExponential(2, time.Millisecond, time.Millisecond), "detail", func(context.Context) error {
		calls++
		return errFlaky
	})
	require.ErrorIs(t, err, harvest.ErrRetryExhausted)
	require.ErrorIs(t, err, harvest.ErrTransient)
	assert.Equal(t, 2, calls)
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	status := &harvest.StatusError{Code: 500}
	err := Do(context.Background(), Default(), "search", func(context.Context) error {
		calls++
		return status
	})
	require.ErrorIs(t, err, status)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, NewExponential(0, 0, 0), "search", func(context.Context) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errFlaky
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls)
}
