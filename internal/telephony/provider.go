package telephony

import (
	"context"
	"fmt"
)

// Dialer defines the provider-agnostic outbound call interface used by the
// call initiator.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - PlaceCall is synchronous: it returns once the provider accepted or refused the call.
// - Adapters never retry.
type Dialer interface {
	Name() string
	PlaceCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error)
}

// OutboundCallRequest asks the provider to dial To.
type OutboundCallRequest struct {
	// To is the destination in the provider's number format.
	To string `json:"to"`

	// CallbackURL receives status webhooks for this call. Providers that only
	// support account-wide webhooks ignore it.
	CallbackURL string `json:"callback_url,omitempty"`

	// AnswerURL is fetched by providers that need call instructions once the
	// callee picks up.
	AnswerURL string `json:"answer_url,omitempty"`
}

// OutboundCallResult is the provider's acknowledgement of a created call.
type OutboundCallResult struct {
	// ProviderCallID is the provider's unique identifier for this call.
	ProviderCallID string `json:"provider_call_id"`

	// RawPayload is the provider response, kept for debugging.
	RawPayload string `json:"raw_payload,omitempty"`
}

// ProviderError is returned when the provider answered with an error.
//
// Detail holds the provider's error payload when the response carried one
// (for example the "error" member of a JSON body), otherwise it is nil.
type ProviderError struct {
	Provider   string
	StatusCode int
	Detail     any
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("telephony: %s returned status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("telephony: %s returned status %d", e.Provider, e.StatusCode)
}
