package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLeasePolicy(t *testing.T) {
	t.Run("valid default", func(t *testing.T) {
		policy, err := NewLeasePolicy(150 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, 150*time.Second, policy.Default())
	})

	t.Run("zero default rejected", func(t *testing.T) {
		policy, err := NewLeasePolicy(0)
		require.ErrorIs(t, err, ErrInvalidDefaultLease)
		assert.Nil(t, policy)
	})

	t.Run("negative default rejected", func(t *testing.T) {
		_, err := NewLeasePolicy(-time.Minute)
		require.ErrorIs(t, err, ErrInvalidDefaultLease)
	})
}

func TestLeasePolicy_Resolve(t *testing.T) {
	policy, err := NewLeasePolicy(150 * time.Second)
	require.NoError(t, err)

	t.Run("explicit request truncates to whole seconds", func(t *testing.T) {
		decision := policy.Resolve(90*time.Second + 700*time.Millisecond)
		assert.Equal(t, 90, decision.Seconds)
		assert.Equal(t, LeaseSourceExplicit, decision.Source)
		assert.False(t, decision.Clamped())
	})

	t.Run("zero request falls back to default", func(t *testing.T) {
		decision := policy.Resolve(0)
		assert.Equal(t, 150, decision.Seconds)
		assert.True(t, decision.UsedDefault())
	})

	t.Run("sub-second request clamps to one second", func(t *testing.T) {
		decision := policy.Resolve(250 * time.Millisecond)
		assert.Equal(t, 1, decision.Seconds)
		assert.Equal(t, LeaseSourceClamped, decision.Source)
		assert.True(t, decision.Clamped())
	})

	t.Run("negative request clamps to one second", func(t *testing.T) {
		decision := policy.Resolve(-30 * time.Second)
		assert.Equal(t, 1, decision.Seconds)
		assert.True(t, decision.Clamped())
		assert.Equal(t, -30*time.Second, decision.Requested)
	})

	t.Run("nil policy resolves to default source", func(t *testing.T) {
		var nilPolicy *LeasePolicy
		decision := nilPolicy.Resolve(10 * time.Second)
		assert.Zero(t, decision.Seconds)
		assert.True(t, decision.UsedDefault())
	})
}
