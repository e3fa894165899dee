package audit

import "time"

// Event is an immutable, append-only record of a call lifecycle step.
//
// Invariants:
// - Events are never updated or deleted.
// - Audit is best-effort; call handling never blocks on audit failures.
//
// Storage (Postgres): table call_audit_events, INSERT only. See PostgresRepo.
type Event struct {
	ID string `json:"id" db:"id"`

	Type EventType `json:"type" db:"type"`

	// CallID is empty for failed initiations; the provider never issued one.
	CallID   string `json:"call_id,omitempty" db:"call_id"`
	Provider string `json:"provider,omitempty" db:"provider"`

	// Destination is the dialed number, when known.
	Destination string `json:"destination,omitempty" db:"destination"`

	// Message is a short human-readable description for ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON with the full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallInitiated EventType = "call_initiated"
	EventTypeCallFailed    EventType = "call_failed"
	EventTypeCallAnswered  EventType = "call_answered"
	EventTypeCallEnded     EventType = "call_ended"
)
