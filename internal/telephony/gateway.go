// Package telephony is the Twilio side of a simulated call: placing it and speaking TwiML.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

var ErrMissingCredentials = errors.New("missing Twilio credentials: TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required")

// CallRequest describes one outbound call.
type CallRequest struct {
	To        string
	From      string
	AnswerURL string
	StatusURL string
}

// Placer places outbound calls and returns the provider's call id.
type Placer interface {
	PlaceCall(ctx context.Context, req CallRequest) (string, error)
}

// callCreator is the slice of the Twilio REST API the gateway uses.
type callCreator interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// TwilioGateway places calls through the Twilio REST API.
type TwilioGateway struct {
	calls callCreator
}

func NewTwilioGateway(accountSID, authToken string) (*TwilioGateway, error) {
	if accountSID == "" || authToken == "" {
		return nil, ErrMissingCredentials
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioGateway{calls: client.Api}, nil
}

func (g *TwilioGateway) PlaceCall(ctx context.Context, req CallRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.To == "" || req.From == "" || req.AnswerURL == "" {
		return "", fmt.Errorf("place call: to, from and answer url are required")
	}
	params := &twilioApi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetUrl(req.AnswerURL)
	params.SetMethod("POST")
	if req.StatusURL != "" {
		params.SetStatusCallback(req.StatusURL)
		params.SetStatusCallbackMethod("POST")
		params.SetStatusCallbackEvent([]string{"completed"})
	}

	call, err := g.calls.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	if call == nil || call.Sid == nil || *call.Sid == "" {
		return "", fmt.Errorf("create call: provider returned no call sid")
	}
	log.Printf("[telephony] call placed sid=%s to=%s", *call.Sid, req.To)
	return *call.Sid, nil
}
