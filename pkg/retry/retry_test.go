package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Constant(time.Millisecond, 1), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesOnceThenSucceeds(t *testing.T) {
	calls := 0
	var notified []error
	got, err := Do(context.Background(), Constant(time.Millisecond, 1), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("rate limited")
		}
		return 42, nil
	}, func(err error, wait time.Duration) {
		notified = append(notified, err)
		assert.Equal(t, time.Millisecond, wait)
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
	assert.Len(t, notified, 1)
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	_, err := Do(context.Background(), Constant(time.Millisecond, 1), func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	}, nil)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")
	_, err := Do(context.Background(), Constant(time.Millisecond, 5), func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(fatal)
	}, nil)

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Constant(time.Hour, 1), func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
