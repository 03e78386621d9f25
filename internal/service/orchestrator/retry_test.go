package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithRetriesStopsOnSuccess(t *testing.T) {
	calls := 0
	attempts, ok := WithRetries(context.Background(), 3, 0, func(context.Context, int) bool {
		calls++
		return calls == 2
	})
	assert.True(t, ok)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, calls)
}

func TestWithRetriesExhausts(t *testing.T) {
	var seen []int
	attempts, ok := WithRetries(context.Background(), 3, time.Millisecond, func(_ context.Context, attempt int) bool {
		seen = append(seen, attempt)
		return false
	})
	assert.False(t, ok)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestWithRetriesAtLeastOnce(t *testing.T) {
	attempts, ok := WithRetries(context.Background(), 0, 0, func(context.Context, int) bool { return true })
	assert.True(t, ok)
	assert.Equal(t, 1, attempts)
}

func TestWithRetriesHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts, ok := WithRetries(ctx, 3, time.Hour, func(context.Context, int) bool {
		cancel()
		return false
	})
	assert.False(t, ok)
	assert.Equal(t, 1, attempts)
}
