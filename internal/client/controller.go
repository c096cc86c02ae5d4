// Package client reproduces the quiz-taking side of the protocol as an
// explicit state machine, decoupled from any rendering layer. Timers and
// analytics are injected instead of living in globals so the controller can
// be driven deterministically in tests.
package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/4-gent/phisherman/internal/domain"
)

// State mirrors the server-side session lifecycle from the client's view.
type State string

const (
	StateIdle     State = "IDLE"
	StateJoining  State = "JOINING"
	StateQuestion State = "QUESTION_PENDING"
	StateFeedback State = "ANSWER_PENDING_NEXT"
	StateComplete State = "COMPLETE"
)

// Emitter sends client-to-server protocol events.
type Emitter interface {
	Join(userID, topic, sessionID string) error
	Answer(sessionID, qid string, choiceIndex int) error
	Next(sessionID string) error
	Leave(sessionID string) error
}

// TimerService schedules a callback after a delay and returns a cancel
// function. Injected so tests can fire timers synchronously.
type TimerService interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

// EventSink observes controller lifecycle events (analytics hook).
type EventSink interface {
	Event(name string, payload any)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Event(string, any) {}

// WallClockTimers is the production TimerService.
type WallClockTimers struct{}

func (WallClockTimers) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Progress is the current position within the quiz.
type Progress struct {
	Current int
	Total   int
}

// Feedback is the last scoring outcome shown to the user.
type Feedback struct {
	QID     string
	Correct bool
	Delta   int
}

// Controller drives one quiz run. All methods are safe for concurrent use;
// inbound protocol events and timer callbacks are serialized behind mu.
type Controller struct {
	emitter Emitter
	timers  TimerService
	sink    EventSink

	userID    string
	topic     string
	nextDelay time.Duration

	mu              sync.Mutex
	state           State
	sessionID       string
	current         *domain.QuestionPrompt
	answered        map[string]struct{}
	locked          bool
	score           int
	progress        Progress
	feedback        *Feedback
	results         *domain.Completion
	lastErr         string
	cancelCountdown func()
	cancelPacing    func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithNextDelay overrides the pacing delay between score feedback and the
// next-question request.
func WithNextDelay(d time.Duration) Option {
	return func(c *Controller) { c.nextDelay = d }
}

// WithEventSink attaches an analytics sink.
func WithEventSink(sink EventSink) Option {
	return func(c *Controller) { c.sink = sink }
}

func NewController(emitter Emitter, timers TimerService, userID, topic string, opts ...Option) *Controller {
	c := &Controller{
		emitter:   emitter,
		timers:    timers,
		sink:      NopSink{},
		userID:    userID,
		topic:     topic,
		nextDelay: 2 * time.Second,
		state:     StateIdle,
		answered:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start joins a fresh session.
func (c *Controller) Start() error {
	c.mu.Lock()
	c.state = StateJoining
	c.mu.Unlock()
	return c.emitter.Join(c.userID, c.topic, "")
}

// Resume rejoins after a reconnect, supplying the stored session ID so the
// server recovers the outstanding question without rescoring anything.
func (c *Controller) Resume() error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.state = StateJoining
	c.mu.Unlock()
	return c.emitter.Join(c.userID, c.topic, sessionID)
}

// Dispatch routes a raw server event into the state machine.
func (c *Controller) Dispatch(eventType string, payload json.RawMessage) error {
	switch eventType {
	case "init":
		var init domain.Init
		if err := json.Unmarshal(payload, &init); err != nil {
			return err
		}
		c.handleInit(init)
	case "question":
		var q domain.QuestionPrompt
		if err := json.Unmarshal(payload, &q); err != nil {
			return err
		}
		c.handleQuestion(q)
	case "score:update":
		var update domain.ScoreUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			return err
		}
		c.handleScoreUpdate(update)
	case "complete":
		var done domain.Completion
		if err := json.Unmarshal(payload, &done); err != nil {
			return err
		}
		c.handleComplete(done)
	case "error":
		var e struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload, &e); err != nil {
			return err
		}
		c.handleError(e.Message)
	}
	return nil
}

func (c *Controller) handleInit(init domain.Init) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if init.SessionID != c.sessionID {
		// Fresh session (or the server replaced a stale one): reset the
		// answered set so old qids don't shadow the new run.
		c.answered = make(map[string]struct{})
		c.current = nil
		c.score = 0
		c.feedback = nil
		c.results = nil
	}
	c.sessionID = init.SessionID
	c.progress = Progress{Current: 0, Total: init.TotalQuestions}
	c.sink.Event("init", init)
}

func (c *Controller) handleQuestion(q domain.QuestionPrompt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, done := c.answered[q.QID]; done {
		// Duplicate delivery of an already-scored question (reconnect race).
		return
	}
	if c.current != nil && c.current.QID == q.QID && c.state == StateQuestion {
		// Repeat of the outstanding question: keep the running countdown.
		return
	}

	c.current = &q
	c.state = StateQuestion
	c.locked = false
	c.feedback = nil
	c.progress.Current = q.Index + 1
	c.stopCountdownLocked()
	if q.Seconds > 0 {
		qid := q.QID
		c.cancelCountdown = c.timers.Schedule(time.Duration(q.Seconds)*time.Second, func() {
			c.submit(qid, domain.NoAnswer)
		})
	}
	c.sink.Event("question", q)
}

// Submit sends the user's choice for the outstanding question.
func (c *Controller) Submit(choiceIndex int) error {
	c.mu.Lock()
	if c.current == nil || c.locked || c.state != StateQuestion {
		c.mu.Unlock()
		return nil
	}
	qid := c.current.QID
	c.mu.Unlock()
	return c.submit(qid, choiceIndex)
}

// submit is the shared path for manual answers and countdown expiry; the
// answered set guards against the timer and the user racing to score the
// same question twice.
func (c *Controller) submit(qid string, choiceIndex int) error {
	c.mu.Lock()
	if _, done := c.answered[qid]; done {
		c.mu.Unlock()
		return nil
	}
	c.answered[qid] = struct{}{}
	c.locked = true
	c.stopCountdownLocked()
	sessionID := c.sessionID
	c.mu.Unlock()

	c.sink.Event("answer", map[string]any{"qid": qid, "choiceIndex": choiceIndex})
	return c.emitter.Answer(sessionID, qid, choiceIndex)
}

func (c *Controller) handleScoreUpdate(update domain.ScoreUpdate) {
	c.mu.Lock()
	c.score = update.Total
	c.feedback = &Feedback{QID: update.QID, Correct: update.Correct, Delta: update.Delta}
	c.state = StateFeedback
	if c.cancelPacing != nil {
		c.cancelPacing()
	}
	sessionID := c.sessionID
	// Pacing is cosmetic; correctness never depends on this delay.
	c.cancelPacing = c.timers.Schedule(c.nextDelay, func() {
		_ = c.emitter.Next(sessionID)
	})
	c.mu.Unlock()
	c.sink.Event("score", update)
}

func (c *Controller) handleComplete(done domain.Completion) {
	c.mu.Lock()
	c.results = &done
	c.state = StateComplete
	c.locked = true
	c.stopCountdownLocked()
	if c.cancelPacing != nil {
		c.cancelPacing()
		c.cancelPacing = nil
	}
	c.mu.Unlock()
	c.sink.Event("complete", done)
}

func (c *Controller) handleError(message string) {
	c.mu.Lock()
	c.lastErr = message
	c.mu.Unlock()
	c.sink.Event("error", message)
}

// Leave detaches from the session without destroying it server-side.
func (c *Controller) Leave() error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.stopCountdownLocked()
	if c.cancelPacing != nil {
		c.cancelPacing()
		c.cancelPacing = nil
	}
	c.mu.Unlock()
	if sessionID == "" {
		return nil
	}
	return c.emitter.Leave(sessionID)
}

func (c *Controller) stopCountdownLocked() {
	if c.cancelCountdown != nil {
		c.cancelCountdown()
		c.cancelCountdown = nil
	}
}

// Snapshot is a render-friendly view of the controller.
type Snapshot struct {
	State     State
	SessionID string
	Question  *domain.QuestionPrompt
	Locked    bool
	Score     int
	Progress  Progress
	Feedback  *Feedback
	Results   *domain.Completion
	LastError string
}

// Snapshot returns a copy of the current state for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:     c.state,
		SessionID: c.sessionID,
		Locked:    c.locked,
		Score:     c.score,
		Progress:  c.progress,
		LastError: c.lastErr,
	}
	if c.current != nil {
		q := *c.current
		snap.Question = &q
	}
	if c.feedback != nil {
		f := *c.feedback
		snap.Feedback = &f
	}
	if c.results != nil {
		r := *c.results
		snap.Results = &r
	}
	return snap
}
