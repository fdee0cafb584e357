package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the state of a Gmail connect session
type SessionStatus string

const (
	StatusPending  SessionStatus = "pending"
	StatusComplete SessionStatus = "complete"
	StatusError    SessionStatus = "error"

	// DefaultSessionTTL is how long sessions live before cleanup
	DefaultSessionTTL = 10 * time.Minute
)

// Session is a connect attempt between the consent redirect and the callback
type Session struct {
	Id        string        `json:"id"`
	State     string        `json:"-"` // OAuth state param, maps back to session
	UserId    string        `json:"user_id"`
	Status    SessionStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	ReturnTo  string        `json:"-"` // Optional redirect after callback
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Store manages connect sessions in memory with TTL cleanup
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session // keyed by session ID
	byState  map[string]string   // state -> session ID
	ttl      time.Duration
	nowFn    func() time.Time
	stopCh   chan struct{}
}

// NewStore creates a new session store with cleanup goroutine
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &Store{
		sessions: make(map[string]*Session),
		byState:  make(map[string]string),
		ttl:      ttl,
		nowFn:    time.Now,
		stopCh:   make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Create creates a new pending session for userId
func (s *Store) Create(userId, returnTo string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	session := &Session{
		Id:        uuid.NewString(),
		State:     generateState(),
		UserId:    userId,
		Status:    StatusPending,
		ReturnTo:  returnTo,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.sessions[session.Id] = session
	s.byState[session.State] = session.Id
	copied := *session
	return &copied
}

// Get retrieves a live session by ID
func (s *Store) Get(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live(s.sessions[id])
}

// GetByState retrieves a live session by OAuth state parameter
func (s *Store) GetByState(state string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byState[state]
	if !ok {
		return nil
	}
	return s.live(s.sessions[id])
}

// Complete marks a session as successfully completed
func (s *Store) Complete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[id]; ok {
		session.Status = StatusComplete
	}
}

// Fail marks a session as failed with an error
func (s *Store) Fail(id, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[id]; ok {
		session.Status = StatusError
		session.Error = errMsg
	}
}

// Delete removes a session
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[id]; ok {
		delete(s.byState, session.State)
		delete(s.sessions, id)
	}
}

// Stop stops the cleanup goroutine
func (s *Store) Stop() {
	close(s.stopCh)
}

func (s *Store) live(session *Session) *Session {
	if session == nil || s.nowFn().After(session.ExpiresAt) {
		return nil
	}
	copied := *session
	return &copied
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.byState, session.State)
			delete(s.sessions, id)
		}
	}
}

func generateState() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
