package events

import (
	"context"
	"sync"
)

type sentMessage struct {
	Topic   string
	Payload []byte
}

// recordingPublisher keeps every publish in memory. A non-nil err makes
// Publish fail without recording.
type recordingPublisher struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, sentMessage{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) messages() []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentMessage(nil), p.sent...)
}
