package calls

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"call-relay/internal/telephony"
)

var ErrNumberRequired = errors.New("calls: number is required")

// InitiateRequest is a request to place one outbound call.
type InitiateRequest struct {
	Number       string `json:"number"`
	Prompt       string `json:"prompt"`
	FirstMessage string `json:"firstMessage"`
}

// Initiator places outbound calls and binds the provider call id to the
// call's conversation parameters.
type Initiator struct {
	dialer    telephony.Dialer
	store     Store
	observers Observer
	log       *slog.Logger

	// ServerURL is the externally reachable base URL used for callback URLs.
	// Empty disables per-call callback URLs.
	ServerURL string

	clock func() time.Time
}

func NewInitiator(dialer telephony.Dialer, store Store, observers Observer, log *slog.Logger) *Initiator {
	if log == nil {
		log = slog.Default()
	}
	return &Initiator{
		dialer:    dialer,
		store:     store,
		observers: observers,
		log:       log.With("component", "call_initiator"),
		clock:     time.Now,
	}
}

// InitiateCall asks the provider to dial req.Number and waits for the answer.
//
// On success exactly one Record exists for the returned call id. On failure
// no Record is created and the provider error is returned unchanged.
func (i *Initiator) InitiateCall(ctx context.Context, req InitiateRequest) (Record, error) {
	number := strings.TrimSpace(req.Number)
	if number == "" {
		return Record{}, ErrNumberRequired
	}
	if i.dialer == nil || i.store == nil {
		return Record{}, errors.New("calls: initiator not configured")
	}

	out := telephony.OutboundCallRequest{
		To:          number,
		CallbackURL: i.callbackURL("/outbound-call-webhook", req.Prompt, req.FirstMessage),
		AnswerURL:   i.callbackURL("/outbound-call-twiml", "", req.FirstMessage),
	}

	i.log.Info("initiating call", "provider", i.dialer.Name(), "to", number)
	res, err := i.dialer.PlaceCall(ctx, out)
	if err != nil {
		i.log.Error("call initiation failed", "provider", i.dialer.Name(), "to", number, "err", err)
		i.observe(ctx, Transition{Kind: TransitionFailed, Provider: i.dialer.Name(), To: number, Reason: err.Error()})
		return Record{}, err
	}

	rec := Record{
		CallID:       res.ProviderCallID,
		Prompt:       req.Prompt,
		FirstMessage: req.FirstMessage,
		CreatedAt:    i.clock().UTC(),
	}
	i.store.Put(rec)

	i.log.Info("call initiated", "provider", i.dialer.Name(), "call_id", rec.CallID)
	i.observe(ctx, Transition{Kind: TransitionInitiated, CallID: rec.CallID, Provider: i.dialer.Name(), To: number, Record: &rec, At: rec.CreatedAt})
	return rec, nil
}

// callbackURL builds ServerURL+path with the non-empty script parameters as
// query values. The webhook correlator reads them back when it has no record.
func (i *Initiator) callbackURL(path, prompt, firstMessage string) string {
	base := strings.TrimRight(strings.TrimSpace(i.ServerURL), "/")
	if base == "" {
		return ""
	}
	q := url.Values{}
	if prompt != "" {
		q.Set("prompt", prompt)
	}
	if firstMessage != "" {
		q.Set("firstMessage", firstMessage)
	}
	if len(q) == 0 {
		return base + path
	}
	return base + path + "?" + q.Encode()
}

func (i *Initiator) observe(ctx context.Context, t Transition) {
	if i.observers == nil {
		return
	}
	if t.At.IsZero() {
		t.At = i.clock().UTC()
	}
	i.observers.Observe(ctx, t)
}
