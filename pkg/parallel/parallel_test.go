package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapCompact_KeepsOrderAndDropsMissing(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6}

	got, err := MapCompact(context.Background(), items, 3, func(ctx context.Context, n int) (int, bool, error) {
		// later items finish first
		time.Sleep(time.Duration(len(items)-n) * time.Millisecond)
		if n%2 == 0 {
			return 0, false, nil
		}
		return n * 10, true, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{10, 30, 50}, got)
}

func TestMapCompact_Empty(t *testing.T) {
	got, err := MapCompact(context.Background(), []string{}, 4, func(ctx context.Context, s string) (string, bool, error) {
		t.Error("fn must not be called")
		return "", false, nil
	})

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMapCompact_RespectsLimit(t *testing.T) {
	var inFlight, peak int32
	items := make([]int, 20)

	_, err := MapCompact(context.Background(), items, 4, func(ctx context.Context, _ int) (int, bool, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return 0, true, nil
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(4))
}

func TestMapCompact_ReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")

	got, err := MapCompact(context.Background(), []int{1, 2, 3}, 0, func(ctx context.Context, n int) (int, bool, error) {
		if n == 2 {
			return 0, false, boom
		}
		return n, true, nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)
}
