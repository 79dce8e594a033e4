package lock

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *time.Time) {
	t.Helper()
	// The fake store clock starts at the wall clock because Check
	// evaluates expiry against time.Now.
	store, now := newTestStore(time.Now())
	manager := NewManager(store, DefaultManagerConfig(), zerolog.Nop())
	return manager, store, now
}

func TestManager_Acquire_Validation(t *testing.T) {
	manager, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := manager.Acquire(ctx, ResourceKey{Type: "GRANT", ID: "g1"}, "alice", 0)
	assert.ErrorIs(t, err, ErrInvalidResourceType)

	_, err = manager.Acquire(ctx, ResourceKey{Type: ResourceClient, ID: ""}, "alice", 0)
	assert.ErrorIs(t, err, ErrEmptyResourceID)

	_, err = manager.Acquire(ctx, ResourceKey{Type: ResourceClient, ID: "c1"}, "", 0)
	assert.ErrorIs(t, err, ErrEmptyHolderID)
}

func TestManager_Acquire_TTLClamping(t *testing.T) {
	manager, _, now := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name string
		ttl  time.Duration
		want time.Duration
	}{
		{"zero selects default", 0, DefaultTTL},
		{"below floor is raised", time.Second, MinTTL},
		{"above ceiling is lowered", 2 * time.Hour, MaxTTL},
		{"in range is kept", 10 * time.Minute, 10 * time.Minute},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := ResourceKey{Type: ResourceForm, ID: string(rune('a' + i))}
			result, err := manager.Acquire(ctx, key, "alice", tt.ttl)
			require.NoError(t, err)
			require.True(t, result.Acquired)
			assert.Equal(t, now.Add(tt.want), result.Record.ExpiresAt)
		})
	}
}

func TestManager_Acquire_DeniedCarriesHolder(t *testing.T) {
	manager, _, _ := newTestManager(t)
	ctx := context.Background()
	key := ResourceKey{Type: ResourceFormSubmission, ID: "42"}

	first, err := manager.Acquire(ctx, key, "alice", 5*time.Minute)
	require.NoError(t, err)
	require.True(t, first.Acquired)

	denied, err := manager.Acquire(ctx, key, "bob", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, denied.Acquired)
	require.NotNil(t, denied.Record)
	assert.Equal(t, "alice", denied.Record.HolderID)
	assert.Equal(t, first.Record.ExpiresAt, denied.Record.ExpiresAt)
}

func TestManager_Acquire_IdempotentRenewal(t *testing.T) {
	manager, _, now := newTestManager(t)
	ctx := context.Background()
	key := ResourceKey{Type: ResourceFormSubmission, ID: "42"}

	first, err := manager.Acquire(ctx, key, "alice", 5*time.Minute)
	require.NoError(t, err)

	// Repeated renewals always succeed, push expiresAt monotonically
	// forward and never change holder or acquiredAt.
	prevExpiry := first.Record.ExpiresAt
	for i := 0; i < 4; i++ {
		*now = now.Add(time.Minute)
		renewed, err := manager.Acquire(ctx, key, "alice", 5*time.Minute)
		require.NoError(t, err)
		require.True(t, renewed.Acquired)
		assert.Equal(t, "alice", renewed.Record.HolderID)
		assert.Equal(t, first.Record.AcquiredAt, renewed.Record.AcquiredAt)
		assert.True(t, renewed.Record.ExpiresAt.After(prevExpiry))
		prevExpiry = renewed.Record.ExpiresAt
	}
}

func TestManager_Acquire_LivenessAfterAbandonment(t *testing.T) {
	manager, _, now := newTestManager(t)
	ctx := context.Background()
	key := ResourceKey{Type: ResourceFormSubmission, ID: "42"}

	// Alice acquires and never renews nor releases.
	_, err := manager.Acquire(ctx, key, "alice", 5*time.Minute)
	require.NoError(t, err)

	// Any acquire past the TTL succeeds.
	*now = now.Add(5*time.Minute + time.Millisecond)
	result, err := manager.Acquire(ctx, key, "carol", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Acquired)
	assert.Equal(t, "carol", result.Record.HolderID)
}

func TestManager_ReleaseThenReacquire(t *testing.T) {
	manager, _, _ := newTestManager(t)
	ctx := context.Background()
	key := ResourceKey{Type: ResourceFormSubmission, ID: "42"}

	_, err := manager.Acquire(ctx, key, "alice", 5*time.Minute)
	require.NoError(t, err)

	require.NoError(t, manager.Release(ctx, key, "alice"))

	// The release is visible to any acquire that starts after it returns.
	result, err := manager.Acquire(ctx, key, "bob", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Acquired)
}

func TestManager_Release_NotHeld(t *testing.T) {
	manager, _, _ := newTestManager(t)
	ctx := context.Background()
	key := ResourceKey{Type: ResourceFormSubmission, ID: "42"}

	_, err := manager.Acquire(ctx, key, "alice", 5*time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, manager.Release(ctx, key, "bob"), ErrNotHeld)
}

func TestManager_Release_Validation(t *testing.T) {
	manager, _, _ := newTestManager(t)
	ctx := context.Background()

	err := manager.Release(ctx, ResourceKey{Type: "GRANT", ID: "g1"}, "alice")
	assert.ErrorIs(t, err, ErrInvalidResourceType)

	err = manager.Release(ctx, ResourceKey{Type: ResourceClient, ID: "c1"}, "")
	assert.ErrorIs(t, err, ErrEmptyHolderID)
}

func TestManager_Check(t *testing.T) {
	manager, _, now := newTestManager(t)
	ctx := context.Background()
	key := ResourceKey{Type: ResourceCall, ID: "call-9"}

	result, err := manager.Check(ctx, key)
	require.NoError(t, err)
	assert.False(t, result.Locked)

	acquired, err := manager.Acquire(ctx, key, "alice", 5*time.Minute)
	require.NoError(t, err)

	result, err = manager.Check(ctx, key)
	require.NoError(t, err)
	assert.True(t, result.Locked)
	assert.Equal(t, "alice", result.HolderID)
	assert.Equal(t, acquired.Record.ExpiresAt, result.ExpiresAt)

	// An expired record reports unlocked regardless of what is stored.
	// The fake store clock governs writes; Check compares against the
	// wall clock, so the stored expiry is placed far in the past.
	*now = time.Now().Add(-time.Hour)
	_, err = manager.Acquire(ctx, key, "alice", 5*time.Minute)
	require.NoError(t, err)

	result, err = manager.Check(ctx, key)
	require.NoError(t, err)
	assert.False(t, result.Locked)
}

func TestManager_HeartbeatWindowScenario(t *testing.T) {
	manager, _, now := newTestManager(t)
	ctx := context.Background()
	key := ResourceKey{Type: ResourceFormSubmission, ID: "42"}

	// Renewals every minute keep a 5 minute lock alive indefinitely.
	start := *now
	_, err := manager.Acquire(ctx, key, "alice", 5*time.Minute)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		*now = now.Add(time.Minute)
		result, err := manager.Acquire(ctx, key, "alice", 5*time.Minute)
		require.NoError(t, err)
		require.True(t, result.Acquired)
		assert.Equal(t, start, result.Record.AcquiredAt)
	}

	// A competitor is still denied after ten nominal TTL-fifths.
	denied, err := manager.Acquire(ctx, key, "bob", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, denied.Acquired)
}

func TestManager_SettingsDefaulting(t *testing.T) {
	store := NewMemoryStore()
	manager := NewManager(store, ManagerConfig{
		ResourceTypes: []ResourceType{ResourceForm},
	}, zerolog.Nop())

	settings := manager.Settings()
	assert.Equal(t, DefaultTTL, settings.DefaultTTL)
	assert.Equal(t, MinTTL, settings.MinTTL)
	assert.Equal(t, MaxTTL, settings.MaxTTL)
	assert.Equal(t, DefaultHeartbeatFraction, settings.HeartbeatFraction)
	assert.Equal(t, []ResourceType{ResourceForm}, settings.ResourceTypes)
}
