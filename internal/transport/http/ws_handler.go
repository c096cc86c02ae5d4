package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/4-gent/phisherman/internal/app"
	"github.com/4-gent/phisherman/internal/domain"
)

// WSHandler is the transport gateway: it binds each websocket connection to
// zero-or-one quiz session, routes inbound events into the engine, and
// delivers the session's outbound events to exactly this connection.
type WSHandler struct {
	engine   *app.Engine
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.Engine, log *zap.Logger) *WSHandler {
	return &WSHandler{
		engine: engine,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type joinPayload struct {
	UserID    string `json:"userId"`
	Topic     string `json:"topic"`
	SessionID string `json:"sessionId,omitempty"`
}

type answerPayload struct {
	SessionID   string `json:"sessionId"`
	QID         string `json:"qid"`
	ChoiceIndex int    `json:"choiceIndex"`
}

type sessionRefPayload struct {
	SessionID string `json:"sessionId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the connection's event loop.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Keep draining after a write error so event forwarders never block
		// on a dead connection.
		broken := false
		for msg := range send {
			if broken {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				broken = true
			}
		}
	}()

	// Connection-local session binding; a connection serves one session.
	var (
		boundID     string
		unsubscribe func()
		forwardDone chan struct{}
	)
	detach := func() {
		if unsubscribe != nil {
			unsubscribe()
			<-forwardDone
			unsubscribe = nil
		}
	}
	defer func() {
		detach()
		if boundID != "" {
			h.engine.Leave(r.Context(), boundID)
		}
		close(send)
		<-writerDone
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}

		switch inbound.Type {
		case "join":
			var payload joinPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.UserID == "" {
				send <- errorMessage("invalid join payload")
				continue
			}
			result, err := h.engine.Join(r.Context(), payload.UserID, payload.Topic, payload.SessionID)
			if err != nil {
				send <- errorMessage(protocolError(err))
				continue
			}

			// Rebind: a join while already attached (reconnect on the same
			// socket, or a topic switch) replaces the old subscription.
			detach()
			boundID = result.Session.ID()

			events, cancel := result.Session.Subscribe()
			unsubscribe = cancel
			forwardDone = make(chan struct{})
			go forwardEvents(events, send, forwardDone)

			if result.StaleSessionID != "" {
				send <- errorMessage("session not found; starting a new session")
			}
			send <- outboundMessage{Type: "init", Payload: result.Init}
			if result.Question != nil {
				send <- outboundMessage{Type: "question", Payload: *result.Question}
			}
			if result.Score != nil {
				// Rejoin landed between scoring and next: replay the score so
				// the client re-enters its feedback flow.
				send <- outboundMessage{Type: "score:update", Payload: *result.Score}
			}

		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid answer payload")
				continue
			}
			// The score update reaches this connection through its session
			// subscription, so mirrors observe the same event.
			if _, err := h.engine.Answer(r.Context(), payload.SessionID, payload.QID, payload.ChoiceIndex); err != nil {
				send <- errorMessage(protocolError(err))
			}

		case "next":
			var payload sessionRefPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid next payload")
				continue
			}
			if _, _, err := h.engine.Next(r.Context(), payload.SessionID); err != nil {
				send <- errorMessage(protocolError(err))
			}

		case "leave":
			var payload sessionRefPayload
			_ = json.Unmarshal(inbound.Payload, &payload)
			detach()
			if payload.SessionID != "" {
				h.engine.Leave(r.Context(), payload.SessionID)
			}
			boundID = ""

		default:
			send <- errorMessage("unsupported message type")
		}
	}
}

// forwardEvents pumps broadcast session events into this connection's writer.
func forwardEvents(events <-chan app.Event, send chan<- outboundMessage, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		send <- outboundMessage{Type: ev.Type, Payload: ev.Payload}
	}
}

func errorMessage(message string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: message}}
}

// protocolError maps engine errors onto the wire taxonomy without leaking
// internals; validation failures never crash the connection.
func protocolError(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownSession):
		return "session not found"
	case errors.Is(err, domain.ErrStaleAnswer):
		return "question already answered or no longer current"
	case errors.Is(err, domain.ErrInvalidState):
		return "request not valid in current session state"
	case errors.Is(err, domain.ErrUnknownTopic):
		return "unknown topic"
	case errors.Is(err, domain.ErrInvalidChoice):
		return "invalid choice index"
	default:
		return "internal error"
	}
}
