package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultSipgateBaseURL  = "https://api.sipgate.com/v2"
	DefaultSipgateDeviceID = "e0"
)

// SipgateConfig holds the credentials of a sipgate personal access token.
type SipgateConfig struct {
	BaseURL  string
	TokenID  string
	Token    string
	CallerID string

	// DeviceID is the originating device; "e0" is the default web phone.
	DeviceID string
}

// SipgateDialer places calls through the sipgate REST API (POST /calls).
//
// sipgate delivers call webhooks to the account-wide sipgate.io URL, so the
// per-call CallbackURL is not sent.
type SipgateDialer struct {
	cfg    SipgateConfig
	client *http.Client
}

func NewSipgateDialer(cfg SipgateConfig, client *http.Client) *SipgateDialer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSipgateBaseURL
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = DefaultSipgateDeviceID
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SipgateDialer{cfg: cfg, client: client}
}

func (d *SipgateDialer) Name() string { return "sipgate" }

type sipgateCallRequest struct {
	DeviceID string `json:"deviceId"`
	Caller   string `json:"caller"`
	Callee   string `json:"callee"`
	CallerID string `json:"callerId"`
}

type sipgateCallResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
}

func (d *SipgateDialer) PlaceCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error) {
	if strings.TrimSpace(req.To) == "" {
		return OutboundCallResult{}, errors.New("telephony: sipgate callee required")
	}

	body, err := json.Marshal(sipgateCallRequest{
		DeviceID: d.cfg.DeviceID,
		Caller:   d.cfg.CallerID,
		Callee:   req.To,
		CallerID: d.cfg.CallerID,
	})
	if err != nil {
		return OutboundCallResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(d.cfg.BaseURL, "/")+"/calls", bytes.NewReader(body))
	if err != nil {
		return OutboundCallResult{}, err
	}
	httpReq.SetBasicAuth(d.cfg.TokenID, d.cfg.Token)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return OutboundCallResult{}, fmt.Errorf("telephony: sipgate request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return OutboundCallResult{}, fmt.Errorf("telephony: sipgate response read failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return OutboundCallResult{}, providerErrorFromBody(d.Name(), resp.StatusCode, raw)
	}

	var out sipgateCallResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return OutboundCallResult{}, fmt.Errorf("telephony: sipgate response decode failed: %w", err)
		}
	}
	id := out.ID
	if id == "" {
		id = out.SessionID
	}
	if id == "" {
		return OutboundCallResult{}, errors.New("telephony: sipgate response carried no call id")
	}
	return OutboundCallResult{ProviderCallID: id, RawPayload: string(raw)}, nil
}

// providerErrorFromBody keeps the "error" member of a JSON error body as the
// error detail, falling back to the body text for the message.
func providerErrorFromBody(provider string, status int, raw []byte) *ProviderError {
	pe := &ProviderError{Provider: provider, StatusCode: status}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err == nil {
		if v, ok := payload["error"]; ok && v != nil {
			pe.Detail = v
		}
		if msg, ok := payload["message"].(string); ok {
			pe.Message = msg
		}
	}
	if pe.Message == "" {
		pe.Message = strings.TrimSpace(string(raw))
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(status)
	}
	return pe
}
