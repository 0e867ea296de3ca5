package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "memberd/pkg/domain-errors"
)

func TestParseAllowReply(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	t.Run("allowed", func(t *testing.T) {
		oldest := now.Add(-time.Minute)
		result, err := parseAllowReply([]any{int64(1), int64(3), oldest.UnixMicro()}, 10, window, now)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 10, result.Limit)
		assert.Equal(t, 7, result.Remaining)
		assert.Equal(t, oldest.Add(window), result.ResetAt)
		assert.Zero(t, result.RetryAfter)
	})

	t.Run("denied", func(t *testing.T) {
		oldest := now.Add(-time.Minute)
		result, err := parseAllowReply([]any{int64(0), int64(10), oldest.UnixMicro()}, 10, window, now)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Zero(t, result.Remaining)
		assert.Equal(t, 240, result.RetryAfter)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := parseAllowReply([]any{int64(1)}, 10, window, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("wrong element types", func(t *testing.T) {
		_, err := parseAllowReply([]any{"1", "3", "0"}, 10, window, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

		_, err = parseAllowReply([]any{int64(1), nil, int64(0)}, 10, window, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
