package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Socket adapts a live websocket connection to the Controller: it implements
// Emitter for outbound events and pumps inbound events into Dispatch.
type Socket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects to the quiz endpoint, e.g. ws://host:8080/ws.
func Dial(url string) (*Socket, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial quiz server: %w", err)
	}
	return &Socket{conn: conn}, nil
}

// Pump reads server events and feeds them to the controller until the
// connection closes. It returns the read error that ended the loop.
func (s *Socket) Pump(ctrl *Controller) error {
	for {
		var msg envelope
		if err := s.conn.ReadJSON(&msg); err != nil {
			return err
		}
		if err := ctrl.Dispatch(msg.Type, msg.Payload); err != nil {
			return err
		}
	}
}

func (s *Socket) Join(userID, topic, sessionID string) error {
	return s.write("join", map[string]any{
		"userId":    userID,
		"topic":     topic,
		"sessionId": sessionID,
	})
}

func (s *Socket) Answer(sessionID, qid string, choiceIndex int) error {
	return s.write("answer", map[string]any{
		"sessionId":   sessionID,
		"qid":         qid,
		"choiceIndex": choiceIndex,
	})
}

func (s *Socket) Next(sessionID string) error {
	return s.write("next", map[string]any{"sessionId": sessionID})
}

func (s *Socket) Leave(sessionID string) error {
	return s.write("leave", map[string]any{"sessionId": sessionID})
}

// Close tears the connection down.
func (s *Socket) Close() error {
	return s.conn.Close()
}

func (s *Socket) write(eventType string, payload any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(map[string]any{"type": eventType, "payload": payload})
}
