package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"call-relay/internal/telephony"
)

var (
	ErrMissingCallID    = errors.New("calls: no call id in event")
	ErrCallDataNotFound = errors.New("calls: call data not found")
	ErrBadFallback      = errors.New("calls: malformed callback url parameter")
)

const (
	MessageAnswered = "Call answered"
	MessageEnded    = "Call ended"
	MessageReceived = "Event received"
)

// FallbackParams are script parameters carried in the callback URL. They are
// used only when an answered call has no record. Other events never create
// records.
type FallbackParams struct {
	Prompt       string
	FirstMessage string
}

// Result is the outcome of a handled webhook event.
type Result struct {
	CallID  string
	Kind    telephony.EventKind
	Message string

	// Backfilled reports that the record was created from FallbackParams.
	Backfilled bool
}

// Correlator resolves provider webhook events against the Store and drives the
// answered and ended transitions. Every path is idempotent under repetition.
type Correlator struct {
	store     Store
	trigger   AgentTrigger
	observers Observer
	log       *slog.Logger

	clock func() time.Time
}

func NewCorrelator(store Store, trigger AgentTrigger, observers Observer, log *slog.Logger) *Correlator {
	if log == nil {
		log = slog.Default()
	}
	if trigger == nil {
		trigger = LogTrigger{Log: log}
	}
	return &Correlator{
		store:     store,
		trigger:   trigger,
		observers: observers,
		log:       log.With("component", "webhook_correlator"),
		clock:     time.Now,
	}
}

// HandleEvent applies one classified webhook event.
//
// It returns ErrMissingCallID when the event has no identifier and
// ErrCallDataNotFound when an answered call has no record. Errors from the
// agent trigger are returned as-is. Unrecognised events are acknowledged.
func (c *Correlator) HandleEvent(ctx context.Context, ev telephony.CallEvent, fb FallbackParams) (Result, error) {
	if ev.CallID == "" {
		c.log.Warn("webhook event without call id", "shape", ev.Shape, "tag", ev.Tag)
		return Result{}, ErrMissingCallID
	}
	res := Result{CallID: ev.CallID, Kind: ev.Kind}

	switch ev.Kind {
	case telephony.EventAnswered:
		backfilled, err := c.backfill(ev.CallID, fb)
		if err != nil {
			c.log.Warn("callback url parameters rejected", "call_id", ev.CallID, "err", err)
			return res, err
		}
		res.Backfilled = backfilled
		rec, ok := c.store.Get(ev.CallID)
		if !ok {
			c.log.Warn("answered call has no record", "call_id", ev.CallID)
			return res, ErrCallDataNotFound
		}
		c.log.Info("call answered", "call_id", ev.CallID)
		if err := c.trigger.StartSession(ctx, rec); err != nil {
			c.log.Error("agent session start failed", "call_id", ev.CallID, "err", err)
			return res, err
		}
		if c.store.MarkAnswered(ev.CallID) {
			c.observe(ctx, Transition{Kind: TransitionAnswered, CallID: ev.CallID, Record: &rec})
		} else {
			c.log.Debug("repeated answered event", "call_id", ev.CallID)
		}
		res.Message = MessageAnswered
		return res, nil

	case telephony.EventEnded:
		rec, had := c.store.Take(ev.CallID)
		c.trigger.EndSession(ctx, ev.CallID)
		c.log.Info("call ended", "call_id", ev.CallID, "had_record", had)

		// Only the end of a known call is a transition. Repeats and calls
		// placed elsewhere have no record by now.
		if had {
			c.observe(ctx, Transition{Kind: TransitionEnded, CallID: ev.CallID, Record: &rec})
		}
		res.Message = MessageEnded
		return res, nil

	default:
		c.log.Debug("webhook event acknowledged", "call_id", ev.CallID, "shape", ev.Shape, "tag", ev.Tag)
		res.Message = MessageReceived
		return res, nil
	}
}

// backfill stores a record built from fb when the call has none. Both
// parameters must be present. A parameter with a broken escape is an error,
// checked only when a record would be created.
func (c *Correlator) backfill(callID string, fb FallbackParams) (bool, error) {
	if fb.Prompt == "" || fb.FirstMessage == "" {
		return false, nil
	}
	if _, ok := c.store.Get(callID); ok {
		return false, nil
	}
	prompt, err := decodeParam(fb.Prompt)
	if err != nil {
		return false, err
	}
	firstMessage, err := decodeParam(fb.FirstMessage)
	if err != nil {
		return false, err
	}
	rec := Record{
		CallID:       callID,
		Prompt:       prompt,
		FirstMessage: firstMessage,
		CreatedAt:    c.clock().UTC(),
	}
	if !c.store.PutIfAbsent(rec) {
		return false, nil
	}
	c.log.Info("call record backfilled from callback url", "call_id", callID)
	return true, nil
}

func (c *Correlator) observe(ctx context.Context, t Transition) {
	if c.observers == nil {
		return
	}
	t.At = c.clock().UTC()
	c.observers.Observe(ctx, t)
}

// decodeParam undoes one more level of percent-encoding. Query values arrive
// decoded once already; senders that double-encode are still read correctly.
func decodeParam(s string) (string, error) {
	out, err := url.PathUnescape(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadFallback, err)
	}
	return out, nil
}
