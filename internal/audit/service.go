package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"call-relay/internal/calls"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only. No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records call lifecycle transitions. It implements calls.Observer.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log.With("component", "audit"), clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.CallID == "" && e.Type != EventTypeCallFailed {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

var transitionTypes = map[calls.TransitionKind]EventType{
	calls.TransitionInitiated: EventTypeCallInitiated,
	calls.TransitionFailed:    EventTypeCallFailed,
	calls.TransitionAnswered:  EventTypeCallAnswered,
	calls.TransitionEnded:     EventTypeCallEnded,
}

// Observe appends an event for t. Failures are logged, never returned.
func (s *Service) Observe(ctx context.Context, t calls.Transition) {
	typ, ok := transitionTypes[t.Kind]
	if !ok {
		return
	}

	e := Event{
		Type:        typ,
		CallID:      t.CallID,
		Provider:    t.Provider,
		Destination: t.To,
		Message:     t.Reason,
		CreatedAt:   t.At,
	}
	if t.Record != nil {
		if b, err := json.Marshal(t.Record); err == nil {
			e.Metadata = string(b)
		}
	}
	if err := s.Append(ctx, e); err != nil {
		s.log.Warn("audit append failed", "type", typ, "call_id", t.CallID, "err", err)
	}
}
