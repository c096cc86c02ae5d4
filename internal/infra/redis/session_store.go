package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/4-gent/phisherman/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionStore.
// Notes:
//   - Sessions themselves stay in a local map: the state machine's subscriber
//     channels and per-session locks are in-process constructs.
//   - Redis holds liveness markers with the idle TTL, refreshed on Touch, so
//     operators can observe live sessions and a future multi-instance
//     deployment has a shared source of truth for ownership.
type SessionStore struct {
	client  *redis.Client
	idleTTL time.Duration
	log     *zap.Logger
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*app.Session
	owners   map[string]string
}

func NewSessionStore(client *redis.Client, idleTTL time.Duration, log *zap.Logger) *SessionStore {
	return &SessionStore{
		client:   client,
		idleTTL:  idleTTL,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*app.Session),
		owners:   make(map[string]string),
	}
}

func (s *SessionStore) Create(session *app.Session) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := ownerKey(session.UserID(), session.Topic())
	if id, ok := s.owners[owner]; ok {
		if existing, live := s.sessions[id]; live {
			return existing, false
		}
	}
	s.sessions[session.ID()] = session
	s.owners[owner] = session.ID()
	// best-effort liveness markers
	ctx := context.Background()
	if err := s.client.Set(ctx, sessionKey(session.ID()), session.UserID(), s.idleTTL).Err(); err != nil {
		s.log.Warn("redis liveness set failed", zap.Error(err))
	}
	_ = s.client.Set(ctx, owner, session.ID(), s.idleTTL).Err()
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
	id, ok := s.owners[ownerKey(userID, topic)]
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
	if !ok {
		return
	}
	session.Touch()
	ctx := context.Background()
	_ = s.client.Expire(ctx, sessionKey(sessionID), s.idleTTL).Err()
	_ = s.client.Expire(ctx, ownerKey(session.UserID(), session.Topic()), s.idleTTL).Err()
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
	owner := ownerKey(session.UserID(), session.Topic())
	if s.owners[owner] == sessionID {
		delete(s.owners, owner)
	}
	ctx := context.Background()
	_ = s.client.Del(ctx, sessionKey(sessionID), owner).Err()
}

// Sweep evicts sessions idle past the TTL, mirroring the memory store.
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

func sessionKey(sessionID string) string {
	return "quiz:session:" + sessionID
}

func ownerKey(userID, topic string) string {
	return "quiz:owner:" + userID + ":" + topic
}
