package app

import (
	"sync"
	"time"

	"github.com/4-gent/phisherman/internal/domain"
)

// Event is a server-to-client message fanned out to every connection
// attached to a session.
type Event struct {
	Type    string
	Payload any
}

// Session is one user's run through a topic. All lifecycle transitions are
// serialized behind mu: scoring and cursor advancement are not commutative,
// so no two events for the same session may interleave.
type Session struct {
	id     string
	userID string
	topic  string

	// questions is the content snapshot taken at creation; the order never
	// changes for the session's life.
	questions []domain.Question

	cursor       int
	answered     map[string]struct{}
	score        int
	correctCount int
	wrongCount   int
	state        domain.SessionState
	// lastUpdate is the score event for the outstanding-but-scored question,
	// replayed on resume so a client that disconnected between score:update
	// and next can re-enter its feedback path.
	lastUpdate *domain.ScoreUpdate

	createdAt    time.Time
	lastActivity time.Time
	now          func() time.Time

	// deadline is the server-side no-answer timer for the outstanding
	// question, armed by the engine when enforcement is on.
	deadline *time.Timer

	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

// NewSession is exported for infrastructure layers and tests that need to
// seed sessions directly.
func NewSession(id, userID, topic string, questions []domain.Question) *Session {
	return newSession(id, userID, topic, questions, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(id, userID, topic string, questions []domain.Question, now func() time.Time) *Session {
	return newSession(id, userID, topic, questions, now)
}

func newSession(id, userID, topic string, questions []domain.Question, now func() time.Time) *Session {
	ts := now()
	return &Session{
		id:           id,
		userID:       userID,
		topic:        topic,
		questions:    questions,
		answered:     make(map[string]struct{}, len(questions)),
		state:        domain.StateQuestionPending,
		createdAt:    ts,
		lastActivity: ts,
		now:          now,
		subscribers:  make(map[chan Event]struct{}),
	}
}

// ID returns the immutable session identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the owning user.
func (s *Session) UserID() string { return s.userID }

// Topic returns the content selector the session was created with.
func (s *Session) Topic() string { return s.topic }

// State reports the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IdleFor reports how long the session has gone without client activity.
func (s *Session) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// Subscribe attaches a listener for broadcast events. The cancel function
// must be called on disconnect; it detaches without destroying the session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// init builds the resume/fresh-join init payload. Caller holds mu.
func (s *Session) initLocked() domain.Init {
	return domain.Init{
		SessionID:      s.id,
		UserID:         s.userID,
		Topic:          s.topic,
		TotalQuestions: len(s.questions),
	}
}

// outstandingLocked returns the current unanswered question, or nil when the
// session is past its last question. Caller holds mu.
func (s *Session) outstandingLocked() *domain.QuestionPrompt {
	if s.state != domain.StateQuestionPending || s.cursor >= len(s.questions) {
		return nil
	}
	p := s.questions[s.cursor].Prompt(s.cursor)
	return &p
}

// resume re-reads the session for an idempotent rejoin: no score or cursor
// change, the same outstanding question both times. When the outstanding
// question is already scored, the score update is replayed instead so the
// client can pick up where it left off and request the next question.
func (s *Session) resume() (domain.Init, *domain.QuestionPrompt, *domain.ScoreUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.now()
	var score *domain.ScoreUpdate
	if s.state == domain.StateAnswerPendingNext && s.lastUpdate != nil {
		u := *s.lastUpdate
		score = &u
	}
	return s.initLocked(), s.outstandingLocked(), score
}

// answer validates and scores one submission. A qid can be scored at most
// once; duplicates are rejected, not re-scored.
func (s *Session) answer(qid string, choiceIndex, reward, penalty int) (domain.ScoreUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateQuestionPending {
		if _, done := s.answered[qid]; done {
			return domain.ScoreUpdate{}, domain.ErrStaleAnswer
		}
		return domain.ScoreUpdate{}, domain.ErrInvalidState
	}

	current := s.questions[s.cursor]
	if qid != current.QID {
		return domain.ScoreUpdate{}, domain.ErrStaleAnswer
	}
	if _, done := s.answered[qid]; done {
		return domain.ScoreUpdate{}, domain.ErrStaleAnswer
	}
	if choiceIndex < domain.NoAnswer || choiceIndex >= len(current.Options) {
		return domain.ScoreUpdate{}, domain.ErrInvalidChoice
	}

	correct := choiceIndex != domain.NoAnswer && choiceIndex == current.AnswerIndex
	delta := -penalty
	if correct {
		delta = reward
	}

	s.answered[qid] = struct{}{}
	s.score += delta
	if correct {
		s.correctCount++
	} else {
		s.wrongCount++
	}
	s.state = domain.StateAnswerPendingNext
	s.lastActivity = s.now()
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
	}

	update := domain.ScoreUpdate{QID: qid, Correct: correct, Delta: delta, Total: s.score}
	s.lastUpdate = &update
	s.broadcastLocked(Event{Type: "score:update", Payload: update})
	return update, nil
}

// advance moves the cursor forward on a next request. It returns either the
// new outstanding question or the completion summary, never both.
func (s *Session) advance() (*domain.QuestionPrompt, *domain.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateAnswerPendingNext {
		return nil, nil, domain.ErrInvalidState
	}

	s.cursor++
	s.lastActivity = s.now()
	s.lastUpdate = nil

	if s.cursor < len(s.questions) {
		s.state = domain.StateQuestionPending
		p := s.questions[s.cursor].Prompt(s.cursor)
		s.broadcastLocked(Event{Type: "question", Payload: p})
		return &p, nil, nil
	}

	s.state = domain.StateComplete
	done := domain.Completion{
		Total:        s.score,
		CorrectCount: s.correctCount,
		WrongCount:   s.wrongCount,
	}
	s.broadcastLocked(Event{Type: "complete", Payload: done})
	return nil, &done, nil
}

// Touch records client activity for idle-expiry accounting.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.now()
}

// Expire marks the session evicted and closes every subscriber channel.
// Subsequent references through the store yield session-not-found.
func (s *Session) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateComplete {
		s.state = domain.StateExpired
	}
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
	}
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

func (s *Session) broadcastLocked(ev Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest buffered event so a slow reader never blocks
			// the state machine.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
