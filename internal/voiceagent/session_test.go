package voiceagent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"call-relay/internal/calls"

	"github.com/gorilla/websocket"
)

type staticURL struct {
	url string
	err error
}

func (s staticURL) GetSignedURL(ctx context.Context) (string, error) { return s.url, s.err }

// agentServer accepts one conversation, records the initiation message, sends
// a ping and reports the pong and close it receives.
type agentServer struct {
	srv    *httptest.Server
	inits  chan initiationMessage
	pongs  chan pongMessage
	closed chan struct{}
}

func newAgentServer(t *testing.T) *agentServer {
	t.Helper()
	a := &agentServer{
		inits:  make(chan initiationMessage, 1),
		pongs:  make(chan pongMessage, 1),
		closed: make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var init initiationMessage
		if err := conn.ReadJSON(&init); err != nil {
			t.Errorf("read init: %v", err)
			return
		}
		a.inits <- init

		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","ping_event":{"event_id":7}}`)); err != nil {
			t.Errorf("write ping: %v", err)
			return
		}

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(a.closed)
				return
			}
			var p pongMessage
			if json.Unmarshal(msg, &p) == nil && p.Type == "pong" {
				a.pongs <- p
			}
		}
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *agentServer) wsURL() string {
	return "ws" + strings.TrimPrefix(a.srv.URL, "http")
}

func TestSessionManager_StartAndEnd(t *testing.T) {
	a := newAgentServer(t)
	m := NewSessionManager(staticURL{url: a.wsURL()}, nil)

	rec := calls.Record{CallID: "abc123", Prompt: "Be friendly", FirstMessage: "Hello there"}
	if err := m.StartSession(context.Background(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case init := <-a.inits:
		if init.Type != "conversation_initiation_client_data" {
			t.Fatalf("unexpected type %q", init.Type)
		}
		if init.Override.Agent.Prompt == nil || init.Override.Agent.Prompt.Prompt != "Be friendly" {
			t.Fatalf("expected prompt override, got %+v", init.Override.Agent)
		}
		if init.Override.Agent.FirstMessage != "Hello there" {
			t.Fatalf("expected first message override, got %q", init.Override.Agent.FirstMessage)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no initiation message")
	}

	select {
	case p := <-a.pongs:
		if p.EventID != 7 {
			t.Fatalf("expected pong for event 7, got %d", p.EventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no pong")
	}

	// A duplicate answered event must not open a second conversation.
	if err := m.StartSession(context.Background(), rec); err != nil {
		t.Fatalf("duplicate start: %v", err)
	}
	if m.Active() != 1 {
		t.Fatalf("expected 1 active session, got %d", m.Active())
	}

	m.EndSession(context.Background(), "abc123")
	m.EndSession(context.Background(), "abc123")
	if m.Active() != 0 {
		t.Fatalf("expected no active sessions, got %d", m.Active())
	}
	select {
	case <-a.closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected server to observe close")
	}
}

func TestSessionManager_SignedURLErrorSurfaces(t *testing.T) {
	boom := errors.New("signed url unavailable")
	m := NewSessionManager(staticURL{err: boom}, nil)

	if err := m.StartSession(context.Background(), calls.Record{CallID: "c1"}); !errors.Is(err, boom) {
		t.Fatalf("expected signed url error, got %v", err)
	}
	if m.Active() != 0 {
		t.Fatalf("expected no session")
	}
}

func TestSessionManager_EndUnknownIsNoop(t *testing.T) {
	m := NewSessionManager(staticURL{}, nil)
	m.EndSession(context.Background(), "missing")
	m.Close()
}
