package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle(t *testing.T) {
	t.Run("Test succeeded", func(t *testing.T) {
		l := NewLifecycle("id", "SN", ActionDock)
		assert.Equal(t, StatePending, l.Current())
		require.NoError(t, l.Sent())
		require.NoError(t, l.Acknowledge())
		assert.Equal(t, StateSucceeded, l.Current())
		assert.True(t, l.Done())
	})

	t.Run("Test rejected keeps reason", func(t *testing.T) {
		l := NewLifecycle("id", "SN", ActionDock)
		require.NoError(t, l.Sent())
		require.NoError(t, l.Reject("result ko"))
		assert.Equal(t, StateRejected, l.Current())
		assert.Equal(t, "result ko", l.Reason)
	})

	t.Run("Test failed from pending", func(t *testing.T) {
		l := NewLifecycle("id", "SN", ActionDock)
		require.NoError(t, l.Fail(errors.New("boom")))
		assert.Equal(t, StateFailed, l.Current())
		assert.Equal(t, "boom", l.Reason)
	})

	t.Run("Test cannot acknowledge before sending", func(t *testing.T) {
		l := NewLifecycle("id", "SN", ActionDock)
		assert.Error(t, l.Acknowledge())
		assert.Error(t, l.Reject("x"))
		assert.False(t, l.Done())
	})

	t.Run("Test final states are final", func(t *testing.T) {
		l := NewLifecycle("id", "SN", ActionDock)
		require.NoError(t, l.Sent())
		require.NoError(t, l.Acknowledge())
		assert.Error(t, l.Fail(errors.New("late")))
		assert.Equal(t, StateSucceeded, l.Current())
	})
}
