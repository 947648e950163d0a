package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_IsFresh(t *testing.T) {
	captured := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	snap := &Snapshot{Profile: &Profile{ID: "u1"}, CapturedAt: captured}
	ttl := 12 * time.Hour

	assert.True(t, snap.IsFresh(captured.Add(11*time.Hour+59*time.Minute), ttl))
	assert.True(t, snap.IsFresh(captured.Add(ttl), ttl))
	assert.False(t, snap.IsFresh(captured.Add(12*time.Hour+time.Minute), ttl))

	// Без отметки времени снимок устарел
	assert.False(t, (&Snapshot{Profile: &Profile{ID: "u1"}}).IsFresh(captured, ttl))

	var nilSnap *Snapshot
	assert.False(t, nilSnap.IsFresh(captured, ttl))
}

func TestSession_NeedsRefresh(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	s := &Session{ExpiresAt: now.Add(10 * time.Minute)}
	assert.False(t, s.NeedsRefresh(now, time.Minute))
	assert.True(t, s.NeedsRefresh(now.Add(9*time.Minute+30*time.Second), time.Minute))

	assert.False(t, (&Session{}).NeedsRefresh(now, time.Minute))
}

func TestProfile_Clone(t *testing.T) {
	balance := 12.5
	benefit := BenefitStudent
	p := &Profile{ID: "u1", Role: RolePassenger, Balance: &balance, Benefit: &benefit}

	c := p.Clone()
	*c.Balance = 0
	*c.Benefit = BenefitNone

	assert.Equal(t, 12.5, *p.Balance)
	assert.Equal(t, BenefitStudent, *p.Benefit)

	var nilProfile *Profile
	assert.Nil(t, nilProfile.Clone())
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleDriver.Valid())
	assert.False(t, Role("guest").Valid())
	assert.Len(t, Roles(), 3)
}
