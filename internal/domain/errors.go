package domain

import "errors"

var (
	// ErrUnknownSession is returned for a missing or expired session ID.
	ErrUnknownSession = errors.New("session not found")
	// ErrStaleAnswer is returned when the qid does not match the outstanding
	// question or was already scored.
	ErrStaleAnswer = errors.New("stale answer")
	// ErrInvalidState is returned when an event is not valid in the session's
	// current state, e.g. next before scoring.
	ErrInvalidState = errors.New("event not valid in current state")
	// ErrUnknownTopic indicates no questions exist for the requested topic.
	ErrUnknownTopic = errors.New("unknown topic")
	// ErrInvalidChoice indicates a choice index outside the option range.
	ErrInvalidChoice = errors.New("invalid choice index")
)
