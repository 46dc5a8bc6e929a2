package bothandler

import (
	"sync"
	"time"

	"github.com/pawpoint/pawpoint/internal/places"
)

// ChatSession holds short-lived per-chat conversation state, currently
// the last shared location waiting for a category choice.
type ChatSession struct {
	ChatID          int64            `json:"chat_id"`
	PendingLocation *places.GeoPoint `json:"pending_location,omitempty"`
	LastUpdated     time.Time        `json:"last_updated"`
	ExpiresAt       time.Time        `json:"expires_at"`
}

// StateManager manages in-memory chat sessions with a TTL. Sessions are
// advisory; losing one only means the user has to share their location
// again.
type StateManager struct {
	sessions map[int64]*ChatSession
	mutex    sync.RWMutex
	ttl      time.Duration
}

// NewStateManager creates a new state manager
func NewStateManager(sessionTTL time.Duration) *StateManager {
	return &StateManager{
		sessions: make(map[int64]*ChatSession),
		ttl:      sessionTTL,
	}
}

// GetSession gets a chat's session, creating one if it doesn't exist
func (sm *StateManager) GetSession(chatID int64) *ChatSession {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	session, exists := sm.sessions[chatID]
	if !exists || time.Now().After(session.ExpiresAt) {
		session = &ChatSession{
			ChatID:      chatID,
			LastUpdated: time.Now(),
			ExpiresAt:   time.Now().Add(sm.ttl),
		}
		sm.sessions[chatID] = session
	} else {
		session.LastUpdated = time.Now()
		session.ExpiresAt = time.Now().Add(sm.ttl)
	}

	return session
}

// SetPendingLocation remembers the last location a chat shared
func (sm *StateManager) SetPendingLocation(chatID int64, point places.GeoPoint) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	session, exists := sm.sessions[chatID]
	if !exists || time.Now().After(session.ExpiresAt) {
		session = &ChatSession{ChatID: chatID}
		sm.sessions[chatID] = session
	}
	session.PendingLocation = &point
	session.LastUpdated = time.Now()
	session.ExpiresAt = time.Now().Add(sm.ttl)
}

// PendingLocation returns the chat's last shared location, if any
func (sm *StateManager) PendingLocation(chatID int64) (places.GeoPoint, bool) {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	session, exists := sm.sessions[chatID]
	if !exists || session.PendingLocation == nil || time.Now().After(session.ExpiresAt) {
		return places.GeoPoint{}, false
	}
	return *session.PendingLocation, true
}

// ClearPendingLocation forgets the chat's stored location
func (sm *StateManager) ClearPendingLocation(chatID int64) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if session, exists := sm.sessions[chatID]; exists {
		session.PendingLocation = nil
		session.LastUpdated = time.Now()
	}
}

// ClearSession removes a chat's entire session
func (sm *StateManager) ClearSession(chatID int64) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	delete(sm.sessions, chatID)
}

// CleanupExpiredSessions removes expired sessions
func (sm *StateManager) CleanupExpiredSessions() {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	now := time.Now()
	for chatID, session := range sm.sessions {
		if now.After(session.ExpiresAt) {
			delete(sm.sessions, chatID)
		}
	}
}

// ActiveSessionCount returns the number of live sessions
func (sm *StateManager) ActiveSessionCount() int {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	return len(sm.sessions)
}

// StartCleanupRoutine starts a background routine to clean up expired sessions
func (sm *StateManager) StartCleanupRoutine(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			sm.CleanupExpiredSessions()
		}
	}()
}
