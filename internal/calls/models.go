package calls

import "time"

// Record holds the conversation parameters of one outbound call between the
// provider acknowledging the call and its end-of-call event.
//
// Invariants:
// - CallID is assigned by the telephony provider and is unique in a Store.
// - Fields are never mutated once stored; a Store hands out copies.
type Record struct {
	CallID       string    `json:"call_id"`
	Prompt       string    `json:"prompt"`
	FirstMessage string    `json:"first_message"`
	CreatedAt    time.Time `json:"created_at"`
}

// TransitionKind names a lifecycle step reported to observers.
type TransitionKind string

const (
	TransitionInitiated TransitionKind = "initiated"
	TransitionFailed    TransitionKind = "failed"
	TransitionAnswered  TransitionKind = "answered"
	TransitionEnded     TransitionKind = "ended"
)

// Transition describes a lifecycle step of a call.
//
// For TransitionFailed the CallID is empty (the provider never issued one) and
// Reason carries the failure; To is the requested destination.
type Transition struct {
	Kind     TransitionKind `json:"kind"`
	CallID   string         `json:"call_id,omitempty"`
	Provider string         `json:"provider,omitempty"`
	To       string         `json:"to,omitempty"`
	Reason   string         `json:"reason,omitempty"`

	// Record is set when the call's record was known at transition time.
	Record *Record `json:"record,omitempty"`

	At time.Time `json:"at"`
}
