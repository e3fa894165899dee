package voiceagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"call-relay/internal/calls"

	"github.com/gorilla/websocket"
)

// SignedURLSource issues conversation URLs. *Client implements it.
type SignedURLSource interface {
	GetSignedURL(ctx context.Context) (string, error)
}

// SessionManager opens one agent conversation per answered call and closes it
// when the call ends. It implements calls.AgentTrigger.
type SessionManager struct {
	urls   SignedURLSource
	dialer *websocket.Dialer
	log    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	callID    string
	conn      *websocket.Conn
	startedAt time.Time
	done      chan struct{}
}

func NewSessionManager(urls SignedURLSource, log *slog.Logger) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{
		urls:     urls,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:      log.With("component", "voice_agent"),
		sessions: map[string]*session{},
	}
}

var _ calls.AgentTrigger = (*SessionManager)(nil)

// conversation_initiation_client_data overrides the agent's prompt and first
// message for this conversation.
type initiationMessage struct {
	Type     string           `json:"type"`
	Override overrideEnvelope `json:"conversation_config_override"`
}

type overrideEnvelope struct {
	Agent agentOverride `json:"agent"`
}

type agentOverride struct {
	Prompt       *promptOverride `json:"prompt,omitempty"`
	FirstMessage string          `json:"first_message,omitempty"`
}

type promptOverride struct {
	Prompt string `json:"prompt"`
}

type serverEvent struct {
	Type      string `json:"type"`
	PingEvent *struct {
		EventID int64 `json:"event_id"`
	} `json:"ping_event,omitempty"`
}

type pongMessage struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id"`
}

func newInitiationMessage(rec calls.Record) initiationMessage {
	m := initiationMessage{Type: "conversation_initiation_client_data"}
	if rec.Prompt != "" {
		m.Override.Agent.Prompt = &promptOverride{Prompt: rec.Prompt}
	}
	m.Override.Agent.FirstMessage = rec.FirstMessage
	return m
}

// StartSession is a no-op when the call already has a live session.
func (m *SessionManager) StartSession(ctx context.Context, rec calls.Record) error {
	if m.active(rec.CallID) {
		return nil
	}

	signedURL, err := m.urls.GetSignedURL(ctx)
	if err != nil {
		return err
	}

	conn, _, err := m.dialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		return fmt.Errorf("voiceagent: conversation dial failed: %w", err)
	}
	if err := conn.WriteJSON(newInitiationMessage(rec)); err != nil {
		_ = conn.Close()
		return fmt.Errorf("voiceagent: conversation init failed: %w", err)
	}

	s := &session{callID: rec.CallID, conn: conn, startedAt: time.Now(), done: make(chan struct{})}

	m.mu.Lock()
	if _, exists := m.sessions[rec.CallID]; exists {
		// A concurrent duplicate answered event won the race.
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	m.sessions[rec.CallID] = s
	m.mu.Unlock()

	m.log.Info("agent session started", "call_id", rec.CallID)
	go m.readLoop(s)
	return nil
}

// EndSession closes the call's session if there is one.
func (m *SessionManager) EndSession(ctx context.Context, callID string) {
	m.mu.Lock()
	s, ok := m.sessions[callID]
	if ok {
		delete(m.sessions, callID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.closeSession(s)
	m.log.Info("agent session ended", "call_id", callID, "duration_s", time.Since(s.startedAt).Seconds())
}

// Active returns the number of live sessions.
func (m *SessionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close ends every session; used on shutdown.
func (m *SessionManager) Close() {
	m.mu.Lock()
	all := make([]*session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, s := range all {
		m.closeSession(s)
	}
}

func (m *SessionManager) active(callID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[callID]
	return ok
}

func (m *SessionManager) closeSession(s *session) {
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"), deadline)
	_ = s.conn.Close()
	<-s.done
}

// readLoop is the only writer after initiation: it answers pings with pongs.
func (m *SessionManager) readLoop(s *session) {
	defer close(s.done)
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			m.forget(s)
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				m.log.Debug("agent session read stopped", "call_id", s.callID, "err", err)
			}
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		if ev.Type == "ping" && ev.PingEvent != nil {
			if err := s.conn.WriteJSON(pongMessage{Type: "pong", EventID: ev.PingEvent.EventID}); err != nil {
				m.log.Warn("agent session pong failed", "call_id", s.callID, "err", err)
			}
		}
	}
}

// forget drops s from the map if it is still the registered session.
func (m *SessionManager) forget(s *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.callID]; ok && cur == s {
		delete(m.sessions, s.callID)
	}
}
