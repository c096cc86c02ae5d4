package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/4-gent/phisherman/internal/domain"
)

// SessionStore abstracts how live sessions are tracked (in-memory, Redis-marked, etc).
type SessionStore interface {
	// Create registers the session unless its (userID, topic) pair already
	// owns a live one; the race loser gets the existing session back so at
	// most one question is ever in flight per pair.
	Create(s *Session) (*Session, bool)
	Get(sessionID string) (*Session, bool)
	// Lookup resolves the live session for a (userID, topic) pair so a
	// client can rejoin without a known session ID.
	Lookup(userID, topic string) (*Session, bool)
	Touch(sessionID string)
	Remove(sessionID string)
}

// QuestionBank supplies the ordered question snapshot for a topic.
type QuestionBank interface {
	Questions(ctx context.Context, topic string, count int) ([]domain.Question, error)
}

// Policy fixes the scoring and pacing knobs the protocol leaves open.
type Policy struct {
	Questions       int           // questions per session
	Reward          int           // delta for a correct answer
	Penalty         int           // magnitude subtracted for a wrong or absent answer
	QuestionSeconds int           // per-question budget pushed to clients; 0 disables timers
	AnswerGrace     time.Duration // slack past the budget before the server scores a no-answer
	EnforceDeadline bool          // mirror the client timer server-side
}

// DefaultPolicy matches the observed training flow: ten questions, +10/-10.
func DefaultPolicy() Policy {
	return Policy{
		Questions:       10,
		Reward:          10,
		Penalty:         10,
		QuestionSeconds: 0,
		AnswerGrace:     2 * time.Second,
		EnforceDeadline: false,
	}
}

// Engine drives quiz sessions through their lifecycle: it validates inbound
// events against session state, scores answers, and emits outbound events
// through each session's subscribers.
type Engine struct {
	store  SessionStore
	bank   QuestionBank
	policy Policy
	log    *zap.Logger
	newID  func() string
	now    func() time.Time
}

// NewEngine wires the session engine. The logger may not be nil.
func NewEngine(store SessionStore, bank QuestionBank, policy Policy, log *zap.Logger) *Engine {
	if policy.Questions <= 0 {
		policy.Questions = DefaultPolicy().Questions
	}
	return &Engine{
		store:  store,
		bank:   bank,
		policy: policy,
		log:    log,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// JoinResult carries everything the gateway sends to the joining connection.
type JoinResult struct {
	Session  *Session
	Init     domain.Init
	Question *domain.QuestionPrompt
	// Score replays the outstanding question's score update when the client
	// rejoined after scoring but before requesting the next question.
	Score *domain.ScoreUpdate
	// Resumed is true when an existing session was recovered untouched.
	Resumed bool
	// StaleSessionID is set when the client supplied a session ID that no
	// longer exists; the gateway reports it alongside the fresh session so
	// the client can reset local state.
	StaleSessionID string
}

// Join creates a session for (userID, topic), or recovers one: by sessionID
// on reconnect, or through the owner index when two connections race to join.
// Resume is idempotent; it never changes score or cursor.
func (e *Engine) Join(ctx context.Context, userID, topic, sessionID string) (JoinResult, error) {
	stale := ""
	if sessionID != "" {
		if s, ok := e.store.Get(sessionID); ok {
			init, q, score := s.resume()
			e.store.Touch(s.ID())
			e.log.Debug("session resumed", zap.String("session_id", s.ID()))
			return JoinResult{Session: s, Init: init, Question: q, Score: score, Resumed: true}, nil
		}
		// Expired or bogus ID: degrade to a fresh join, but tell the client.
		stale = sessionID
	}

	if s, ok := e.store.Lookup(userID, topic); ok {
		// Second joiner for the same pair mirrors the existing session so at
		// most one question is ever in flight.
		init, q, score := s.resume()
		e.store.Touch(s.ID())
		return JoinResult{Session: s, Init: init, Question: q, Score: score, Resumed: true, StaleSessionID: stale}, nil
	}

	questions, err := e.bank.Questions(ctx, topic, e.policy.Questions)
	if err != nil {
		return JoinResult{}, err
	}
	if e.policy.QuestionSeconds > 0 {
		for i := range questions {
			if questions[i].Seconds == 0 {
				questions[i].Seconds = e.policy.QuestionSeconds
			}
		}
	}

	s, created := e.store.Create(newSession(e.newID(), userID, topic, questions, e.now))
	if !created {
		init, q, score := s.resume()
		return JoinResult{Session: s, Init: init, Question: q, Score: score, Resumed: true, StaleSessionID: stale}, nil
	}
	e.log.Info("session created",
		zap.String("session_id", s.ID()),
		zap.String("topic", topic),
		zap.Int("questions", len(questions)))

	init, q, _ := s.resume()
	if q != nil {
		e.armDeadline(s, q.QID, q.Seconds)
	}
	return JoinResult{Session: s, Init: init, Question: q, StaleSessionID: stale}, nil
}

// Answer validates and scores a submission, broadcasting the score update to
// every attached connection. choiceIndex -1 means no-answer and always
// scores as incorrect.
func (e *Engine) Answer(ctx context.Context, sessionID, qid string, choiceIndex int) (domain.ScoreUpdate, error) {
	s, ok := e.store.Get(sessionID)
	if !ok {
		return domain.ScoreUpdate{}, domain.ErrUnknownSession
	}
	update, err := s.answer(qid, choiceIndex, e.policy.Reward, e.policy.Penalty)
	if err != nil {
		return domain.ScoreUpdate{}, err
	}
	e.store.Touch(sessionID)
	e.log.Debug("answer scored",
		zap.String("session_id", sessionID),
		zap.String("qid", qid),
		zap.Bool("correct", update.Correct),
		zap.Int("total", update.Total))
	return update, nil
}

// Next advances the cursor. It is rejected while the outstanding question is
// unscored; clients normally pace this a couple of seconds after the score
// update, but the server accepts it at any point after scoring.
func (e *Engine) Next(ctx context.Context, sessionID string) (*domain.QuestionPrompt, *domain.Completion, error) {
	s, ok := e.store.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrUnknownSession
	}
	q, done, err := s.advance()
	if err != nil {
		return nil, nil, err
	}
	if done != nil {
		e.store.Remove(sessionID)
		e.log.Info("session complete",
			zap.String("session_id", sessionID),
			zap.Int("total", done.Total),
			zap.Int("correct", done.CorrectCount),
			zap.Int("wrong", done.WrongCount))
		return nil, done, nil
	}
	e.store.Touch(sessionID)
	e.armDeadline(s, q.QID, q.Seconds)
	return q, nil, nil
}

// Leave detaches the caller without destroying the session; only the idle
// sweep evicts it, so the client can still reconnect.
func (e *Engine) Leave(ctx context.Context, sessionID string) {
	if _, ok := e.store.Get(sessionID); !ok {
		return
	}
	e.store.Touch(sessionID)
	e.log.Debug("client left session", zap.String("session_id", sessionID))
}

// armDeadline mirrors the client countdown server-side so a stalled client
// cannot hold the outstanding question open forever.
func (e *Engine) armDeadline(s *Session, qid string, seconds int) {
	if !e.policy.EnforceDeadline || seconds <= 0 {
		return
	}
	d := time.Duration(seconds)*time.Second + e.policy.AnswerGrace
	s.mu.Lock()
	if s.deadline != nil {
		s.deadline.Stop()
	}
	s.deadline = time.AfterFunc(d, func() {
		e.forceTimeout(s.ID(), qid)
	})
	s.mu.Unlock()
}

func (e *Engine) forceTimeout(sessionID, qid string) {
	s, ok := e.store.Get(sessionID)
	if !ok {
		return
	}
	_, err := s.answer(qid, domain.NoAnswer, e.policy.Reward, e.policy.Penalty)
	if err != nil {
		// The client answered in the meantime; nothing to synthesize.
		return
	}
	e.store.Touch(sessionID)
	e.log.Info("question timed out server-side",
		zap.String("session_id", sessionID),
		zap.String("qid", qid))
}
