package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/4-gent/phisherman/internal/app"
)

// SessionStore is the in-memory implementation of app.SessionStore. It keeps
// a secondary (userID, topic) index so clients can rejoin a live session
// without knowing its ID. Idle sessions are evicted by the sweep; that is
// the sole garbage-collection mechanism, nothing is persisted.
type SessionStore struct {
	idleTTL time.Duration
	log     *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*app.Session
	owners   map[ownerKey]string
}

type ownerKey struct {
	userID string
	topic  string
}

func NewSessionStore(idleTTL time.Duration, log *zap.Logger) *SessionStore {
	return &SessionStore{
		idleTTL:  idleTTL,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*app.Session),
		owners:   make(map[ownerKey]string),
	}
}

func (s *SessionStore) Create(session *app.Session) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ownerKey{session.UserID(), session.Topic()}
	if id, ok := s.owners[key]; ok {
		if existing, live := s.sessions[id]; live {
			return existing, false
		}
	}
	s.sessions[session.ID()] = session
	s.owners[key] = session.ID()
	return session, true
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

func (s *SessionStore) Lookup(userID, topic string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.owners[ownerKey{userID, topic}]
	if !ok {
		return nil, false
	}
	session, ok := s.sessions[id]
	return session, ok
}

func (s *SessionStore) Touch(sessionID string) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		session.Touch()
	}
}

func (s *SessionStore) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(sessionID)
}

func (s *SessionStore) removeLocked(sessionID string) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	delete(s.sessions, sessionID)
	key := ownerKey{session.UserID(), session.Topic()}
	if s.owners[key] == sessionID {
		delete(s.owners, key)
	}
}

// Sweep evicts sessions idle beyond the configured TTL, expiring them so any
// later reference yields session-not-found. Expiry is silent: the client is
// assumed gone, no error event is emitted.
func (s *SessionStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	var expired []*app.Session
	for id, session := range s.sessions {
		if session.IdleFor(now) > s.idleTTL {
			expired = append(expired, session)
			s.removeLocked(id)
		}
	}
	s.mu.Unlock()

	for _, session := range expired {
		session.Expire()
		s.log.Info("session expired", zap.String("session_id", session.ID()))
	}
	return len(expired)
}

// StartSweeper runs Sweep on the given interval until ctx is canceled.
func (s *SessionStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}
