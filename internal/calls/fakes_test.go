package calls

import (
	"context"
	"sync"

	"call-relay/internal/telephony"
)

type fakeDialer struct {
	callID string
	err    error

	mu   sync.Mutex
	reqs []telephony.OutboundCallRequest
}

func (d *fakeDialer) Name() string { return "fake" }

func (d *fakeDialer) PlaceCall(ctx context.Context, req telephony.OutboundCallRequest) (telephony.OutboundCallResult, error) {
	d.mu.Lock()
	d.reqs = append(d.reqs, req)
	d.mu.Unlock()
	if d.err != nil {
		return telephony.OutboundCallResult{}, d.err
	}
	return telephony.OutboundCallResult{ProviderCallID: d.callID}, nil
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []Transition
}

func (o *recordingObserver) Observe(ctx context.Context, t Transition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, t)
}

func (o *recordingObserver) kinds() []TransitionKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]TransitionKind, 0, len(o.seen))
	for _, t := range o.seen {
		out = append(out, t.Kind)
	}
	return out
}

type fakeTrigger struct {
	startErr error

	mu      sync.Mutex
	started []Record
	ended   []string
}

func (f *fakeTrigger) StartSession(ctx context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, rec)
	return nil
}

func (f *fakeTrigger) EndSession(ctx context.Context, callID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, callID)
}
