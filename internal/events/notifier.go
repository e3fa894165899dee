package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"call-relay/internal/calls"
)

const DefaultTopicPrefix = "call-relay"

// Notifier publishes call lifecycle transitions as JSON to
// <prefix>/calls/<call_id>/<kind>. Failed initiations have no call id and go
// to <prefix>/calls/failed. It implements calls.Observer.
type Notifier struct {
	pub     Publisher
	prefix  string
	timeout time.Duration
	log     *slog.Logger
}

func NewNotifier(pub Publisher, prefix string, log *slog.Logger) *Notifier {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{pub: pub, prefix: prefix, timeout: 5 * time.Second, log: log.With("component", "lifecycle_notifier")}
}

// Message is the published payload.
type Message struct {
	Kind      calls.TransitionKind `json:"kind"`
	CallID    string               `json:"call_id,omitempty"`
	Provider  string               `json:"provider,omitempty"`
	To        string               `json:"to,omitempty"`
	Reason    string               `json:"reason,omitempty"`
	Prompt    string               `json:"prompt,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

func (n *Notifier) Topic(t calls.Transition) string {
	if t.CallID == "" {
		return n.prefix + "/calls/" + string(t.Kind)
	}
	return n.prefix + "/calls/" + t.CallID + "/" + string(t.Kind)
}

func (n *Notifier) Observe(ctx context.Context, t calls.Transition) {
	msg := Message{
		Kind:      t.Kind,
		CallID:    t.CallID,
		Provider:  t.Provider,
		To:        t.To,
		Reason:    t.Reason,
		Timestamp: t.At,
	}
	if t.Record != nil {
		msg.Prompt = t.Record.Prompt
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		n.log.Error("marshalling transition", "err", err)
		return
	}

	// The request context may be cancelled as soon as the response is written.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	topic := n.Topic(t)
	if err := n.pub.Publish(pubCtx, topic, payload); err != nil {
		n.log.Warn("publish failed", "topic", topic, "err", err)
		return
	}
	n.log.Debug("published transition", "topic", topic)
}
