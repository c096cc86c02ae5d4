package domain

// Question models a single-choice quiz question. AnswerIndex is server-side
// only and must never appear in payloads sent before scoring.
type Question struct {
	QID         string   `json:"qid"`
	Text        string   `json:"text"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Seconds     int      `json:"seconds,omitempty"` // time budget; 0 means untimed
}

// Topic is a named set of questions for one training subject.
type Topic struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// NoAnswer is the choice index the client submits when the countdown
// expires without a selection. It always scores as incorrect.
const NoAnswer = -1

// SessionState tracks where a session is in its lifecycle.
type SessionState string

const (
	// StateQuestionPending means a question is outstanding and unanswered.
	StateQuestionPending SessionState = "QUESTION_PENDING"
	// StateAnswerPendingNext means the outstanding question was scored and
	// the session waits for a next request.
	StateAnswerPendingNext SessionState = "ANSWER_PENDING_NEXT"
	// StateComplete is terminal: every question has been scored.
	StateComplete SessionState = "COMPLETE"
	// StateExpired marks a session evicted by the idle sweep.
	StateExpired SessionState = "EXPIRED"
)

// Init is sent once per fresh session (and re-sent on resume).
type Init struct {
	SessionID      string `json:"sessionId"`
	UserID         string `json:"userId"`
	Topic          string `json:"topic"`
	TotalQuestions int    `json:"totalQuestions"`
}

// QuestionPrompt is the client-facing view of the outstanding question.
// It intentionally has no answer index.
type QuestionPrompt struct {
	QID     string   `json:"qid"`
	Index   int      `json:"index"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Seconds int      `json:"seconds,omitempty"`
}

// ScoreUpdate reports the outcome of scoring one question.
type ScoreUpdate struct {
	QID     string `json:"qid"`
	Correct bool   `json:"correct"`
	Delta   int    `json:"delta"`
	Total   int    `json:"total"`
}

// Completion is the terminal summary for a finished session.
type Completion struct {
	Total        int `json:"total"`
	CorrectCount int `json:"correctCount"`
	WrongCount   int `json:"wrongCount"`
}

// Prompt converts a question to its client-facing form at a given position.
func (q Question) Prompt(index int) QuestionPrompt {
	return QuestionPrompt{
		QID:     q.QID,
		Index:   index,
		Text:    q.Text,
		Options: q.Options,
		Seconds: q.Seconds,
	}
}
