package httpapi

import (
	"errors"
	"net/http"
	"time"

	"call-relay/internal/auth"
	"call-relay/internal/calls"
	"call-relay/internal/reporting"
	"call-relay/internal/telephony"
	"call-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
//
// Call failures answer 200 with {"success": false, "error": ...}; callers
// branch on the success flag, not the status code.
type Handlers struct {
	Initiator  *calls.Initiator
	Correlator *calls.Correlator
	Store      calls.Store

	// Reporting is optional; when set /debug includes a calls summary.
	Reporting *reporting.Service

	Debug DebugInfo

	// Answer is the TwiML template for answered Twilio calls; Message is
	// filled per call.
	Answer telephony.AnswerInstructions

	// Now defaults to time.Now.
	Now func() time.Time
}

// isoMillis is the timestamp layout of /debug and /health.
const isoMillis = "2006-01-02T15:04:05.000Z"

// DebugInfo is the static part of the /debug report.
type DebugInfo struct {
	Provider        string
	CallerIDPresent bool
	ServerURL       string
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h Handlers) timestamp() string {
	return h.now().UTC().Format(isoMillis)
}

// --- Calls ---

// OutboundCall places a call and binds the provider call id to the script.
func (h Handlers) OutboundCall(c *gin.Context) {
	log := logger.FromGin(c)
	if op, err := auth.Operator(c.Request.Context()); err == nil {
		log = log.With("operator", op)
	}
	if h.Initiator == nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "initiator not configured"})
		return
	}

	var req calls.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "invalid json"})
		return
	}

	rec, err := h.Initiator.InitiateCall(c.Request.Context(), req)
	if err != nil {
		log.Warn("outbound call failed", "err", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": errorPayload(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "callSid": rec.CallID})
}

// OutboundCallWebhook receives provider status events. Script parameters in
// the query string are used when the call has no record yet.
func (h Handlers) OutboundCallWebhook(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Correlator == nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "correlator not configured"})
		return
	}

	ev, err := telephony.ParseCallEventRequest(c.Request)
	if err != nil {
		log.Warn("webhook parse failed", "err", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}

	res, err := h.Correlator.HandleEvent(c.Request.Context(), ev, calls.FallbackParams{
		Prompt:       c.Query("prompt"),
		FirstMessage: c.Query("firstMessage"),
	})
	switch {
	case errors.Is(err, calls.ErrMissingCallID):
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "No call ID in event"})
	case errors.Is(err, calls.ErrCallDataNotFound):
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Call data not found"})
	case err != nil:
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": res.Message})
	}
}

// OutboundCallTwiML is the Twilio answer URL. The greeting comes from the
// call's record, or from the firstMessage query value when there is none.
func (h Handlers) OutboundCallTwiML(c *gin.Context) {
	msg := c.Query("firstMessage")
	if h.Store != nil {
		if rec, ok := h.Store.Get(c.PostForm("CallSid")); ok && rec.FirstMessage != "" {
			msg = rec.FirstMessage
		}
	}

	in := h.Answer
	in.Message = msg
	body, err := telephony.RenderAnswerTwiML(in)
	if err != nil {
		_ = c.Error(err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(body))
}

// --- Ops ---

func (h Handlers) DebugReport(c *gin.Context) {
	active := 0
	if h.Store != nil {
		active = h.Store.Len()
	}
	out := gin.H{
		"version":                   h.Debug.Provider,
		"timestamp":                 h.timestamp(),
		"usingTwilio":               h.Debug.Provider == "twilio",
		"usingSipgate":              h.Debug.Provider == "sipgate",
		"sipgateCallerIdConfigured": h.Debug.CallerIDPresent,
		"serverUrl":                 h.Debug.ServerURL,
		"activeCalls":               active,
	}
	if h.Reporting != nil {
		out["calls"] = h.Reporting.CallsSummary()
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": h.timestamp()})
}

// errorPayload prefers the provider's own error payload over our message.
func errorPayload(err error) any {
	var pe *telephony.ProviderError
	if errors.As(err, &pe) && pe.Detail != nil {
		return pe.Detail
	}
	return err.Error()
}
