package telephony

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioConfig holds the account credentials and caller number for Twilio.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// twilioCallCreator is the slice of the Twilio REST client the dialer uses.
type twilioCallCreator interface {
	CreateCall(params *twapi.CreateCallParams) (*twapi.ApiV2010Call, error)
}

// twilioStatusEvents are the progress events requested on the status callback.
var twilioStatusEvents = []string{"initiated", "ringing", "answered", "completed"}

// TwilioDialer places calls through the Twilio Programmable Voice API.
type TwilioDialer struct {
	from string
	api  twilioCallCreator
}

func NewTwilioDialer(cfg TwilioConfig) *TwilioDialer {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioDialer{from: cfg.FromNumber, api: client.Api}
}

func (d *TwilioDialer) Name() string { return "twilio" }

func (d *TwilioDialer) PlaceCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error) {
	if strings.TrimSpace(req.To) == "" {
		return OutboundCallResult{}, errors.New("telephony: twilio destination required")
	}
	if req.AnswerURL == "" {
		return OutboundCallResult{}, errors.New("telephony: twilio answer url required")
	}
	if err := ctx.Err(); err != nil {
		return OutboundCallResult{}, err
	}

	params := &twapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(d.from)
	params.SetUrl(req.AnswerURL)
	if req.CallbackURL != "" {
		params.SetStatusCallback(req.CallbackURL)
		params.SetStatusCallbackMethod("POST")
		params.SetStatusCallbackEvent(twilioStatusEvents)
	}

	call, err := d.api.CreateCall(params)
	if err != nil {
		var restErr *twclient.TwilioRestError
		if errors.As(err, &restErr) {
			return OutboundCallResult{}, &ProviderError{
				Provider:   d.Name(),
				StatusCode: restErr.Status,
				Detail:     restErr.Message,
				Message:    fmt.Sprintf("code %d: %s", restErr.Code, restErr.Message),
			}
		}
		return OutboundCallResult{}, fmt.Errorf("telephony: twilio request failed: %w", err)
	}
	if call == nil || call.Sid == nil || *call.Sid == "" {
		return OutboundCallResult{}, errors.New("telephony: twilio response carried no call sid")
	}
	return OutboundCallResult{ProviderCallID: *call.Sid}, nil
}
