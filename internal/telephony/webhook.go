package telephony

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// EventShape is the closed set of provider webhook payloads we understand.
type EventShape string

const (
	// ShapeSipgatePush is a sipgate.io push event: {"event": "answer", "callId": ...}.
	ShapeSipgatePush EventShape = "sipgate_push"
	// ShapeCallState is a call state report: {"state": "ANSWERED", "callId": ...}.
	ShapeCallState EventShape = "call_state"
	// ShapeTwilioStatus is a Twilio status callback: CallSid=...&CallStatus=...
	ShapeTwilioStatus EventShape = "twilio_status"
	// ShapeUnknown carries no recognised tag.
	ShapeUnknown EventShape = "unknown"
)

// EventKind is what the correlator acts on.
type EventKind string

const (
	EventAnswered EventKind = "answered"
	EventEnded    EventKind = "ended"
	EventOther    EventKind = "other"
)

// CallEvent is a provider webhook classified into a known shape.
type CallEvent struct {
	Shape EventShape `json:"shape"`
	Kind  EventKind  `json:"kind"`

	// CallID is empty when the payload carried no identifier.
	CallID string `json:"call_id"`

	// Tag is the raw value that classified the event (event, state or CallStatus).
	Tag string `json:"tag,omitempty"`

	// Fields are the flat scalar members of the payload.
	Fields map[string]string `json:"fields,omitempty"`
}

var ErrMalformedEvent = errors.New("telephony: malformed webhook event")

const maxEventBody = 1 << 20

// ParseCallEventRequest reads the request body and classifies it.
func ParseCallEventRequest(r *http.Request) (CallEvent, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		return CallEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return ParseCallEvent(r.Header.Get("Content-Type"), body)
}

// ParseCallEvent classifies a JSON or form encoded webhook body.
// An empty body yields a ShapeUnknown event without a call id.
func ParseCallEvent(contentType string, body []byte) (CallEvent, error) {
	fields, err := decodeFields(contentType, body)
	if err != nil {
		return CallEvent{}, err
	}
	return Classify(fields), nil
}

// Classify picks the event shape first and then reads fields per shape.
func Classify(fields map[string]string) CallEvent {
	ev := CallEvent{Shape: ShapeUnknown, Kind: EventOther, Fields: fields}

	switch {
	case fields["CallSid"] != "":
		ev.Shape = ShapeTwilioStatus
		ev.CallID = fields["CallSid"]
		ev.Tag = fields["CallStatus"]
		ev.Kind = twilioStatusKind(ev.Tag)
		return ev
	case fields["event"] != "" || fields["state"] != "":
		ev.Shape, ev.Tag, ev.Kind = pushOrState(fields["event"], fields["state"])
	}

	ev.CallID = firstNonEmpty(fields["callId"], fields["id"])
	return ev
}

// pushOrState reads the event and state tags together. Answered in either
// tag wins, then ended; a tag that means nothing defers to the other one.
func pushOrState(event, state string) (EventShape, string, EventKind) {
	pushKind, stateKind := EventOther, EventOther
	if event != "" {
		pushKind = sipgatePushKind(event)
	}
	if state != "" {
		stateKind = callStateKind(state)
	}
	for _, want := range []EventKind{EventAnswered, EventEnded} {
		if pushKind == want {
			return ShapeSipgatePush, event, want
		}
		if stateKind == want {
			return ShapeCallState, state, want
		}
	}
	if event != "" {
		return ShapeSipgatePush, event, EventOther
	}
	return ShapeCallState, state, EventOther
}

func sipgatePushKind(tag string) EventKind {
	switch tag {
	case "answer":
		return EventAnswered
	case "hangup":
		return EventEnded
	default:
		// newCall, dtmf and future events are acknowledged only.
		return EventOther
	}
}

func callStateKind(tag string) EventKind {
	switch tag {
	case "ANSWERED":
		return EventAnswered
	case "DISCONNECTED":
		return EventEnded
	default:
		return EventOther
	}
}

func twilioStatusKind(tag string) EventKind {
	switch tag {
	case "in-progress", "answered":
		return EventAnswered
	case "completed", "busy", "failed", "no-answer", "canceled":
		return EventEnded
	default:
		return EventOther
	}
}

func decodeFields(contentType string, body []byte) (map[string]string, error) {
	fields := map[string]string{}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return fields, nil
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" {
		vals, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		for k := range vals {
			fields[k] = strings.TrimSpace(vals.Get(k))
		}
		return fields, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	for k, v := range obj {
		if s, ok := scalarString(v); ok {
			fields[k] = s
		}
	}
	return fields, nil
}

// scalarString flattens JSON scalars; objects, arrays and null are skipped.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
