package bothandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawpoint/pawpoint/internal/places"
)

func TestGetSessionCreatesAndRefreshes(t *testing.T) {
	sm := NewStateManager(time.Hour)

	session := sm.GetSession(42)
	require.NotNil(t, session)
	assert.Equal(t, int64(42), session.ChatID)
	assert.Equal(t, 1, sm.ActiveSessionCount())

	again := sm.GetSession(42)
	assert.Same(t, session, again)
	assert.Equal(t, 1, sm.ActiveSessionCount())
}

func TestPendingLocationRoundTrip(t *testing.T) {
	sm := NewStateManager(time.Hour)

	_, ok := sm.PendingLocation(7)
	assert.False(t, ok)

	sm.SetPendingLocation(7, places.GeoPoint{Lat: 25.033, Lon: 121.5654})

	point, ok := sm.PendingLocation(7)
	require.True(t, ok)
	assert.Equal(t, 25.033, point.Lat)
	assert.Equal(t, 121.5654, point.Lon)
}

func TestSetPendingLocationOverwrites(t *testing.T) {
	sm := NewStateManager(time.Hour)

	sm.SetPendingLocation(7, places.GeoPoint{Lat: 25.0, Lon: 121.5})
	sm.SetPendingLocation(7, places.GeoPoint{Lat: 22.62, Lon: 120.30})

	point, ok := sm.PendingLocation(7)
	require.True(t, ok)
	assert.Equal(t, 22.62, point.Lat)
}

func TestClearPendingLocation(t *testing.T) {
	sm := NewStateManager(time.Hour)

	sm.SetPendingLocation(7, places.GeoPoint{Lat: 25.0, Lon: 121.5})
	sm.ClearPendingLocation(7)

	_, ok := sm.PendingLocation(7)
	assert.False(t, ok)
	// The session itself survives.
	assert.Equal(t, 1, sm.ActiveSessionCount())
}

func TestClearSession(t *testing.T) {
	sm := NewStateManager(time.Hour)

	sm.SetPendingLocation(7, places.GeoPoint{Lat: 25.0, Lon: 121.5})
	sm.ClearSession(7)

	assert.Zero(t, sm.ActiveSessionCount())
}

func TestExpiredLocationNotReturned(t *testing.T) {
	sm := NewStateManager(10 * time.Millisecond)

	sm.SetPendingLocation(7, places.GeoPoint{Lat: 25.0, Lon: 121.5})
	time.Sleep(25 * time.Millisecond)

	_, ok := sm.PendingLocation(7)
	assert.False(t, ok)
}

func TestCleanupExpiredSessions(t *testing.T) {
	sm := NewStateManager(10 * time.Millisecond)

	sm.GetSession(1)
	sm.GetSession(2)
	require.Equal(t, 2, sm.ActiveSessionCount())

	time.Sleep(25 * time.Millisecond)
	sm.CleanupExpiredSessions()

	assert.Zero(t, sm.ActiveSessionCount())
}

func TestExpiredSessionReplacedOnGet(t *testing.T) {
	sm := NewStateManager(10 * time.Millisecond)

	first := sm.GetSession(5)
	time.Sleep(25 * time.Millisecond)
	second := sm.GetSession(5)

	assert.NotSame(t, first, second)
}
