package client

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4-gent/phisherman/internal/domain"
)

// recordingEmitter captures outbound protocol events instead of sending them.
type recordingEmitter struct {
	mu    sync.Mutex
	calls []emitterCall
}

type emitterCall struct {
	method      string
	userID      string
	topic       string
	sessionID   string
	qid         string
	choiceIndex int
}

func (e *recordingEmitter) Join(userID, topic, sessionID string) error {
	e.record(emitterCall{method: "join", userID: userID, topic: topic, sessionID: sessionID})
	return nil
}

func (e *recordingEmitter) Answer(sessionID, qid string, choiceIndex int) error {
	e.record(emitterCall{method: "answer", sessionID: sessionID, qid: qid, choiceIndex: choiceIndex})
	return nil
}

func (e *recordingEmitter) Next(sessionID string) error {
	e.record(emitterCall{method: "next", sessionID: sessionID})
	return nil
}

func (e *recordingEmitter) Leave(sessionID string) error {
	e.record(emitterCall{method: "leave", sessionID: sessionID})
	return nil
}

func (e *recordingEmitter) record(call emitterCall) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
}

func (e *recordingEmitter) recorded() []emitterCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]emitterCall, len(e.calls))
	copy(out, e.calls)
	return out
}

func (e *recordingEmitter) last(t *testing.T) emitterCall {
	t.Helper()
	calls := e.recorded()
	require.NotEmpty(t, calls)
	return calls[len(calls)-1]
}

// manualTimers holds scheduled callbacks so tests fire them explicitly.
type manualTimers struct {
	mu      sync.Mutex
	pending []*manualTimer
}

type manualTimer struct {
	delay    time.Duration
	fn       func()
	canceled bool
}

func (m *manualTimers) Schedule(d time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	timer := &manualTimer{delay: d, fn: fn}
	m.pending = append(m.pending, timer)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		timer.canceled = true
	}
}

// fire runs every live timer once and clears the queue.
func (m *manualTimers) fire() int {
	m.mu.Lock()
	timers := m.pending
	m.pending = nil
	m.mu.Unlock()

	fired := 0
	for _, timer := range timers {
		if !timer.canceled {
			timer.fn()
			fired++
		}
	}
	return fired
}

func (m *manualTimers) liveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, timer := range m.pending {
		if !timer.canceled {
			n++
		}
	}
	return n
}

func dispatch(t *testing.T, c *Controller, eventType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, c.Dispatch(eventType, raw))
}

func startedController(t *testing.T) (*Controller, *recordingEmitter, *manualTimers) {
	t.Helper()
	emitter := &recordingEmitter{}
	timers := &manualTimers{}
	c := NewController(emitter, timers, "u1", "suspicious_link")

	require.NoError(t, c.Start())
	dispatch(t, c, "init", domain.Init{SessionID: "s1", UserID: "u1", Topic: "suspicious_link", TotalQuestions: 10})
	return c, emitter, timers
}

func prompt(qid string, index, seconds int) domain.QuestionPrompt {
	return domain.QuestionPrompt{
		QID:     qid,
		Index:   index,
		Text:    "text " + qid,
		Options: []string{"a", "b", "c"},
		Seconds: seconds,
	}
}

func TestStartJoinsAndTracksInit(t *testing.T) {
	c, emitter, _ := startedController(t)

	calls := emitter.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "join", calls[0].method)
	assert.Equal(t, "u1", calls[0].userID)
	assert.Empty(t, calls[0].sessionID)

	snap := c.Snapshot()
	assert.Equal(t, "s1", snap.SessionID)
	assert.Equal(t, 10, snap.Progress.Total)
}

func TestQuestionThenSubmit(t *testing.T) {
	c, emitter, _ := startedController(t)

	dispatch(t, c, "question", prompt("q0", 0, 0))
	snap := c.Snapshot()
	assert.Equal(t, StateQuestion, snap.State)
	assert.False(t, snap.Locked)
	assert.Equal(t, 1, snap.Progress.Current)

	require.NoError(t, c.Submit(1))
	call := emitter.last(t)
	assert.Equal(t, "answer", call.method)
	assert.Equal(t, "s1", call.sessionID)
	assert.Equal(t, "q0", call.qid)
	assert.Equal(t, 1, call.choiceIndex)

	// Locked until the score comes back; repeat submits are swallowed.
	require.NoError(t, c.Submit(2))
	assert.Len(t, emitter.recorded(), 2)
	assert.True(t, c.Snapshot().Locked)
}

func TestCountdownSubmitsNoAnswerOnce(t *testing.T) {
	c, emitter, timers := startedController(t)

	dispatch(t, c, "question", prompt("q0", 0, 15))
	require.Equal(t, 1, timers.liveCount())

	timers.fire()
	call := emitter.last(t)
	assert.Equal(t, "answer", call.method)
	assert.Equal(t, domain.NoAnswer, call.choiceIndex)

	// A late manual submit after expiry must not double-score.
	require.NoError(t, c.Submit(0))
	assert.Len(t, emitter.recorded(), 2)
}

func TestManualAnswerCancelsCountdown(t *testing.T) {
	c, emitter, timers := startedController(t)

	dispatch(t, c, "question", prompt("q0", 0, 15))
	require.NoError(t, c.Submit(0))

	if fired := timers.fire(); fired != 0 {
		t.Fatalf("countdown fired %d times after a manual answer", fired)
	}
	assert.Len(t, emitter.recorded(), 2) // join + answer
}

func TestDuplicateQuestionKeepsCountdown(t *testing.T) {
	c, _, timers := startedController(t)

	dispatch(t, c, "question", prompt("q0", 0, 15))
	require.Equal(t, 1, timers.liveCount())

	// Resume replay of the outstanding question must not re-arm the timer.
	dispatch(t, c, "question", prompt("q0", 0, 15))
	assert.Equal(t, 1, timers.liveCount())
}

func TestAnsweredQuestionReplayIgnored(t *testing.T) {
	c, emitter, timers := startedController(t)

	dispatch(t, c, "question", prompt("q0", 0, 15))
	require.NoError(t, c.Submit(0))
	dispatch(t, c, "score:update", domain.ScoreUpdate{QID: "q0", Correct: true, Delta: 10, Total: 10})

	// Replay of a scored question (reconnect race) changes nothing.
	dispatch(t, c, "question", prompt("q0", 0, 15))
	snap := c.Snapshot()
	assert.Equal(t, StateFeedback, snap.State)
	assert.Equal(t, 1, timers.liveCount(), "only the pacing timer may be live")
	assert.Len(t, emitter.recorded(), 2) // join + answer, no re-answer
}

func TestScoreUpdateSchedulesNext(t *testing.T) {
	c, emitter, timers := startedController(t)

	dispatch(t, c, "question", prompt("q0", 0, 0))
	require.NoError(t, c.Submit(0))
	dispatch(t, c, "score:update", domain.ScoreUpdate{QID: "q0", Correct: true, Delta: 10, Total: 10})

	snap := c.Snapshot()
	assert.Equal(t, StateFeedback, snap.State)
	require.NotNil(t, snap.Feedback)
	assert.True(t, snap.Feedback.Correct)
	assert.Equal(t, 10, snap.Score)

	timers.fire()
	call := emitter.last(t)
	assert.Equal(t, "next", call.method)
	assert.Equal(t, "s1", call.sessionID)
}

func TestCompleteStopsAllTimers(t *testing.T) {
	c, emitter, timers := startedController(t)

	dispatch(t, c, "question", prompt("q9", 9, 15))
	require.NoError(t, c.Submit(0))
	dispatch(t, c, "score:update", domain.ScoreUpdate{QID: "q9", Correct: true, Delta: 10, Total: 100})
	dispatch(t, c, "complete", domain.Completion{Total: 100, CorrectCount: 10, WrongCount: 0})

	snap := c.Snapshot()
	assert.Equal(t, StateComplete, snap.State)
	require.NotNil(t, snap.Results)
	assert.Equal(t, 100, snap.Results.Total)

	// Neither the pacing timer nor a countdown may fire post-completion.
	if fired := timers.fire(); fired != 0 {
		t.Fatalf("%d timers fired after completion", fired)
	}
	before := len(emitter.recorded())
	require.NoError(t, c.Submit(0))
	assert.Len(t, emitter.recorded(), before)
}

func TestResumeSendsStoredSessionID(t *testing.T) {
	c, emitter, _ := startedController(t)

	require.NoError(t, c.Resume())
	call := emitter.last(t)
	assert.Equal(t, "join", call.method)
	assert.Equal(t, "s1", call.sessionID)
}

func TestResumedScoreReplaySchedulesNext(t *testing.T) {
	c, emitter, timers := startedController(t)

	// Server resume path after a disconnect between scoring and next: init
	// arrives with a replayed score:update and no question.
	dispatch(t, c, "init", domain.Init{SessionID: "s1", TotalQuestions: 10})
	dispatch(t, c, "score:update", domain.ScoreUpdate{QID: "q0", Correct: true, Delta: 10, Total: 10})

	snap := c.Snapshot()
	assert.Equal(t, StateFeedback, snap.State)
	require.Equal(t, 1, timers.liveCount(), "pacing timer must be rearmed")

	timers.fire()
	call := emitter.last(t)
	assert.Equal(t, "next", call.method)
	assert.Equal(t, "s1", call.sessionID)
}

func TestNewInitResetsRunState(t *testing.T) {
	c, _, _ := startedController(t)

	dispatch(t, c, "question", prompt("q0", 0, 0))
	require.NoError(t, c.Submit(0))
	dispatch(t, c, "score:update", domain.ScoreUpdate{QID: "q0", Correct: true, Delta: 10, Total: 10})

	// The server replaced a stale session with a fresh one.
	dispatch(t, c, "init", domain.Init{SessionID: "s2", TotalQuestions: 10})
	dispatch(t, c, "question", prompt("q0", 0, 0))

	snap := c.Snapshot()
	assert.Equal(t, "s2", snap.SessionID)
	assert.Equal(t, StateQuestion, snap.State)
	assert.Equal(t, 0, snap.Score)

	// q0 of the new run is answerable even though the old run scored a q0.
	require.NoError(t, c.Submit(1))
	assert.True(t, c.Snapshot().Locked)
}

func TestErrorEventRecorded(t *testing.T) {
	c, _, _ := startedController(t)

	dispatch(t, c, "error", map[string]string{"message": "session not found"})
	assert.Equal(t, "session not found", c.Snapshot().LastError)
}

func TestLeaveEmitsAndCancelsTimers(t *testing.T) {
	c, emitter, timers := startedController(t)

	dispatch(t, c, "question", prompt("q0", 0, 15))
	require.NoError(t, c.Leave())

	call := emitter.last(t)
	assert.Equal(t, "leave", call.method)
	assert.Equal(t, "s1", call.sessionID)
	if fired := timers.fire(); fired != 0 {
		t.Fatalf("%d timers fired after leave", fired)
	}
}
