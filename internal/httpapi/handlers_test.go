package httpapi

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
	"call-relay/internal/reporting"
	"call-relay/internal/telephony"

	"github.com/gin-gonic/gin"
)

type stubDialer struct {
	callID string
	err    error
}

func (d stubDialer) Name() string { return "sipgate" }

func (d stubDialer) PlaceCall(ctx context.Context, req telephony.OutboundCallRequest) (telephony.OutboundCallResult, error) {
	if d.err != nil {
		return telephony.OutboundCallResult{}, d.err
	}
	return telephony.OutboundCallResult{ProviderCallID: d.callID}, nil
}

var fixedNow = time.Date(2026, 10, 15, 8, 30, 0, 0, time.UTC)

func newRouter(d telephony.Dialer) (*gin.Engine, *calls.MemoryStore) {
	gin.SetMode(gin.TestMode)

	store := calls.NewMemoryStore()
	stats := reporting.NewService(fixedNow)
	h := Handlers{
		Initiator:  calls.NewInitiator(d, store, stats, nil),
		Correlator: calls.NewCorrelator(store, nil, stats, nil),
		Store:      store,
		Reporting:  stats,
		Debug:      DebugInfo{Provider: d.Name(), CallerIDPresent: true, ServerURL: "https://relay.example.com"},
		Now:        func() time.Time { return fixedNow },
	}

	r := gin.New()
	r.POST("/outbound-call", h.OutboundCall)
	r.POST("/outbound-call-webhook", h.OutboundCallWebhook)
	r.POST("/outbound-call-twiml", h.OutboundCallTwiML)
	r.GET("/debug", h.DebugReport)
	r.GET("/health", h.Health)
	return r, store
}

func do(t *testing.T, r http.Handler, method, target, contentType, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, target, err, w.Body.String())
	}
	return w.Code, out
}

func TestCallLifecycle(t *testing.T) {
	r, store := newRouter(stubDialer{callID: "abc123"})

	code, out := do(t, r, http.MethodPost, "/outbound-call", "application/json",
		`{"number":"+491701234567","prompt":"Be friendly","firstMessage":"Hello there"}`)
	if code != http.StatusOK || out["success"] != true || out["callSid"] != "abc123" {
		t.Fatalf("unexpected initiate response %d %v", code, out)
	}
	rec, ok := store.Get("abc123")
	if !ok || rec.Prompt != "Be friendly" || rec.FirstMessage != "Hello there" {
		t.Fatalf("unexpected record %+v ok=%v", rec, ok)
	}

	_, out = do(t, r, http.MethodPost, "/outbound-call-webhook", "application/json", `{"state":"ANSWERED","callId":"abc123"}`)
	if out["success"] != true || out["message"] != "Call answered" {
		t.Fatalf("unexpected answered response %v", out)
	}

	for i := 0; i < 2; i++ {
		_, out = do(t, r, http.MethodPost, "/outbound-call-webhook", "application/json", `{"state":"DISCONNECTED","callId":"abc123"}`)
		if out["success"] != true || out["message"] != "Call ended" {
			t.Fatalf("attempt %d: unexpected ended response %v", i, out)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store")
	}

	_, out = do(t, r, http.MethodGet, "/debug", "", "")
	summary, _ := out["calls"].(map[string]any)
	if summary["total_calls"] != float64(1) || summary["answered_calls"] != float64(1) || summary["completed_calls"] != float64(1) {
		t.Fatalf("unexpected calls summary %v", out["calls"])
	}
}

func TestOutboundCall_ProviderErrorPayload(t *testing.T) {
	r, store := newRouter(stubDialer{err: &telephony.ProviderError{Provider: "sipgate", StatusCode: 403, Detail: "FORBIDDEN", Message: "nope"}})

	code, out := do(t, r, http.MethodPost, "/outbound-call", "application/json", `{"number":"+4930"}`)
	if code != http.StatusOK || out["success"] != false || out["error"] != "FORBIDDEN" {
		t.Fatalf("unexpected response %d %v", code, out)
	}
	if store.Len() != 0 {
		t.Fatalf("expected no record")
	}
}

func TestOutboundCall_TransportErrorMessage(t *testing.T) {
	r, _ := newRouter(stubDialer{err: errors.New("dial tcp: timeout")})

	_, out := do(t, r, http.MethodPost, "/outbound-call", "application/json", `{"number":"+4930"}`)
	if out["success"] != false || out["error"] != "dial tcp: timeout" {
		t.Fatalf("unexpected response %v", out)
	}
}

func TestOutboundCall_InvalidBody(t *testing.T) {
	r, _ := newRouter(stubDialer{callID: "x"})

	_, out := do(t, r, http.MethodPost, "/outbound-call", "application/json", `{`)
	if out["success"] != false {
		t.Fatalf("expected failure, got %v", out)
	}
	_, out = do(t, r, http.MethodPost, "/outbound-call", "application/json", `{"prompt":"p"}`)
	if out["success"] != false {
		t.Fatalf("expected failure without number, got %v", out)
	}
}

func TestWebhook_Errors(t *testing.T) {
	r, _ := newRouter(stubDialer{})

	_, out := do(t, r, http.MethodPost, "/outbound-call-webhook", "application/json", `{"state":"ANSWERED"}`)
	if out["success"] != false || out["error"] != "No call ID in event" {
		t.Fatalf("unexpected response %v", out)
	}

	_, out = do(t, r, http.MethodPost, "/outbound-call-webhook", "application/json", `{"event":"answer","callId":"ghost"}`)
	if out["success"] != false || out["error"] != "Call data not found" {
		t.Fatalf("unexpected response %v", out)
	}
}

func TestWebhook_FallbackFromQuery(t *testing.T) {
	r, store := newRouter(stubDialer{})

	_, out := do(t, r, http.MethodPost, "/outbound-call-webhook?prompt=Sei%2520nett&firstMessage=Hallo",
		"application/x-www-form-urlencoded", "event=answer&callId=late")
	if out["success"] != true || out["message"] != "Call answered" {
		t.Fatalf("unexpected response %v", out)
	}
	rec, ok := store.Get("late")
	if !ok || rec.Prompt != "Sei nett" {
		t.Fatalf("expected backfilled record, got %+v ok=%v", rec, ok)
	}
}

func TestWebhook_MalformedFallbackEscape(t *testing.T) {
	r, store := newRouter(stubDialer{})

	_, out := do(t, r, http.MethodPost, "/outbound-call-webhook?prompt=%25zz&firstMessage=Hallo",
		"application/json", `{"event":"answer","callId":"late"}`)
	if out["success"] != false || out["error"] == nil {
		t.Fatalf("unexpected response %v", out)
	}
	if store.Len() != 0 {
		t.Fatalf("expected no record from malformed parameters")
	}
}

func TestWebhook_UnknownEvent(t *testing.T) {
	r, store := newRouter(stubDialer{})

	_, out := do(t, r, http.MethodPost, "/outbound-call-webhook", "application/json", `{"event":"dtmf","callId":"c1","dtmf":"1"}`)
	if out["success"] != true || out["message"] != "Event received" {
		t.Fatalf("unexpected response %v", out)
	}
	if store.Len() != 0 {
		t.Fatalf("expected no state change")
	}
}

func TestDebugAndHealth(t *testing.T) {
	r, store := newRouter(stubDialer{})
	store.Put(calls.Record{CallID: "live"})

	_, out := do(t, r, http.MethodGet, "/debug", "", "")
	if out["version"] != "sipgate" || out["usingSipgate"] != true || out["usingTwilio"] != false {
		t.Fatalf("unexpected debug %v", out)
	}
	if out["sipgateCallerIdConfigured"] != true || out["serverUrl"] != "https://relay.example.com" {
		t.Fatalf("unexpected debug %v", out)
	}
	if out["activeCalls"] != float64(1) || out["timestamp"] != "2026-10-15T08:30:00.000Z" {
		t.Fatalf("unexpected debug %v", out)
	}

	code, out := do(t, r, http.MethodGet, "/health", "", "")
	if code != http.StatusOK || out["status"] != "ok" || out["timestamp"] != "2026-10-15T08:30:00.000Z" {
		t.Fatalf("unexpected health %d %v", code, out)
	}
}

func TestTwiML_UsesRecordFirstMessage(t *testing.T) {
	r, store := newRouter(stubDialer{})
	store.Put(calls.Record{CallID: "CA1", FirstMessage: "Hello from the record"})

	req := httptest.NewRequest(http.MethodPost, "/outbound-call-twiml?firstMessage=fallback", strings.NewReader("CallSid=CA1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "application/xml") {
		t.Fatalf("unexpected response %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "<Say>Hello from the record</Say>") {
		t.Fatalf("unexpected twiml %s", w.Body.String())
	}
}

func TestTwiML_FallsBackToQuery(t *testing.T) {
	r, _ := newRouter(stubDialer{})

	req := httptest.NewRequest(http.MethodPost, "/outbound-call-twiml?firstMessage=Hallo", strings.NewReader("CallSid=unknown"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "<Say>Hallo</Say>") {
		t.Fatalf("unexpected twiml %s", w.Body.String())
	}
}
