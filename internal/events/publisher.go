package events

import "context"

// Publisher delivers a payload to a topic (MQTT topic or Redis channel).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
