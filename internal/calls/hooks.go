package calls

import (
	"context"
	"log/slog"
)

// AgentTrigger is the extension point fired by call transitions that concern
// the voice agent. StartSession runs when a call with a known record is
// answered and its error is reported to the webhook caller. EndSession runs on
// every end-of-call event, also for calls without a session.
type AgentTrigger interface {
	StartSession(ctx context.Context, rec Record) error
	EndSession(ctx context.Context, callID string)
}

// Observer receives lifecycle transitions. Observers are best effort: they
// cannot fail a call operation.
type Observer interface {
	Observe(ctx context.Context, t Transition)
}

// Observers fans a transition out to every member.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, t Transition) {
	for _, ob := range o {
		if ob != nil {
			ob.Observe(ctx, t)
		}
	}
}

// LogTrigger only records the intent to start an agent session.
type LogTrigger struct {
	Log *slog.Logger
}

func (t LogTrigger) StartSession(ctx context.Context, rec Record) error {
	t.logger().Info("agent session requested",
		"component", "agent_trigger",
		"call_id", rec.CallID,
		"first_message", rec.FirstMessage,
	)
	return nil
}

func (t LogTrigger) EndSession(ctx context.Context, callID string) {
	t.logger().Debug("agent session end requested", "component", "agent_trigger", "call_id", callID)
}

func (t LogTrigger) logger() *slog.Logger {
	if t.Log != nil {
		return t.Log
	}
	return slog.Default()
}
