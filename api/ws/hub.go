package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Hub tracks live sessions. A user may hold several connections at once.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]map[*Session]struct{}
	logger   *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[int64]map[*Session]struct{}),
		logger:   logger,
	}
}

// Register adds a session.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[s.UserID]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[s.UserID] = set
	}
	set[s] = struct{}{}
	h.logger.Debug("ws session registered", zap.Int64("user_id", s.UserID), zap.Int("connections", len(set)))
}

// Unregister removes a session.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.sessions[s.UserID]
	delete(set, s)
	if len(set) == 0 {
		delete(h.sessions, s.UserID)
	}
}

// IsOnline reports whether userID has at least one live connection.
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// Count returns the number of distinct connected users.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll closes every session.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.sessions {
		for s := range set {
			s.Close()
		}
	}
}

// CloseToken closes every session opened with the given access token and
// returns how many there were.
func (h *Hub) CloseToken(token string) int {
	if token == "" {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.sessions {
		for s := range set {
			if s.Token == token {
				s.Close()
				n++
			}
		}
	}
	return n
}
