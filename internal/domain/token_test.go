package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemainingNeverNegative(t *testing.T) {
	assert.Equal(t, 3, UsageState{Uses: 0, MaxUses: 3}.Remaining())
	assert.Equal(t, 1, UsageState{Uses: 2, MaxUses: 3}.Remaining())
	assert.Equal(t, 0, UsageState{Uses: 3, MaxUses: 3}.Remaining())
	assert.Equal(t, 0, UsageState{Uses: 5, MaxUses: 3}.Remaining())
}

func TestExpiredAtGraceBoundary(t *testing.T) {
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	grace := 5 * time.Second
	state := UsageState{ExpiresAt: exp}

	assert.False(t, state.ExpiredAt(exp, grace))
	assert.False(t, state.ExpiredAt(exp.Add(grace), grace))
	assert.True(t, state.ExpiredAt(exp.Add(grace+time.Nanosecond), grace))
}

func TestExpiredAtZeroExpiryNeverExpires(t *testing.T) {
	state := UsageState{}
	assert.False(t, state.ExpiredAt(time.Now().Add(100*365*24*time.Hour), 0))
}

func TestStatusDerivation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	assert.Equal(t, TokenStatusActive, UsageState{Uses: 0, MaxUses: 3, ExpiresAt: future}.Status(now, 0))
	assert.Equal(t, TokenStatusExhausted, UsageState{Uses: 3, MaxUses: 3, ExpiresAt: future}.Status(now, 0))
	// Expiry wins over exhaustion.
	assert.Equal(t, TokenStatusExpired, UsageState{Uses: 3, MaxUses: 3, ExpiresAt: past}.Status(now, 0))
}

func TestSnapshotLastFlag(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)

	snap := UsageState{Uses: 2, MaxUses: 3, ExpiresAt: future}.Snapshot(now, 0)
	assert.Equal(t, 1, snap.Remaining)
	assert.True(t, snap.Last)

	snap = UsageState{Uses: 1, MaxUses: 3, ExpiresAt: future}.Snapshot(now, 0)
	assert.Equal(t, 2, snap.Remaining)
	assert.False(t, snap.Last)

	// One use left on an expired token is not "last", it is gone.
	snap = UsageState{Uses: 2, MaxUses: 3, ExpiresAt: now.Add(-time.Hour)}.Snapshot(now, 0)
	assert.False(t, snap.Last)
}

func TestIsValidTokenID(t *testing.T) {
	assert.True(t, IsValidTokenID("0b7e1c2d-3f4a-4b5c-8d6e-7f8a9b0c1d2e"))
	assert.True(t, IsValidTokenID("0B7E1C2D-3F4A-4B5C-8D6E-7F8A9B0C1D2E"))
	assert.False(t, IsValidTokenID(""))
	assert.False(t, IsValidTokenID("not-a-uuid"))
	assert.False(t, IsValidTokenID("0b7e1c2d3f4a4b5c8d6e7f8a9b0c1d2e"))
	assert.False(t, IsValidTokenID("0b7e1c2d-3f4a-4b5c-8d6e-7f8a9b0c1d2e/../x"))
}

func TestIsValidOrderID(t *testing.T) {
	assert.True(t, IsValidOrderID("5O190127TN364715T"))
	assert.True(t, IsValidOrderID("abc_12-XYZ"))
	assert.False(t, IsValidOrderID("short"))
	assert.False(t, IsValidOrderID("has space not ok"))
	assert.False(t, IsValidOrderID("slash/not/ok"))
}
