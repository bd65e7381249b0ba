// Package messaging provides outbound WhatsApp message delivery.
//
// This file implements the Twilio WhatsApp channel, used by deployments
// that relay confirmation texts through Twilio instead of the Cloud API.
// Twilio cannot deliver interactive Flow messages.
package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration for the Twilio channel.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string // "whatsapp:+1234567890"
}

// TwilioOption defines a configuration option for the Twilio channel.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number, "whatsapp:+..." format.
func WithFromWhats(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromWhats = from }
}

// TwilioService sends messages through the Twilio REST API.
type TwilioService struct {
	client    *twilio.RestClient
	fromWhats string
}

// NewTwilioService creates a Twilio channel from options.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	slog.Debug("messaging.NewTwilioService: channel configured", "from", cfg.FromWhats)
	return &TwilioService{client: client, fromWhats: cfg.FromWhats}, nil
}

// SendText sends a WhatsApp message using the Twilio API.
func (s *TwilioService) SendText(ctx context.Context, to, body string) error {
	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + canonical)
	params.SetFrom(s.fromWhats)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioService SendText failed", "to", canonical, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	slog.Debug("TwilioService SendText succeeded", "to", canonical)
	return nil
}

// SendFlowLaunch is unsupported on the Twilio channel.
func (s *TwilioService) SendFlowLaunch(ctx context.Context, to string) error {
	return ErrFlowLaunchUnsupported
}
