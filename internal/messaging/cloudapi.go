// Package messaging provides outbound WhatsApp message delivery.
//
// This file implements the WhatsApp Business Cloud API (Graph) channel.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	graphAPIBaseURL = "https://graph.facebook.com"
	graphAPIVersion = "v23.0"

	defaultHTTPTimeout = 30 * time.Second
)

// CloudAPIOpts holds configuration for the Cloud API channel.
type CloudAPIOpts struct {
	AccessToken   string
	PhoneNumberID string
	FlowID        string
	BaseURL       string // overridable for tests
}

// CloudAPIOption defines a configuration option for the Cloud API channel.
type CloudAPIOption func(*CloudAPIOpts)

// WithAccessToken sets the Graph API bearer token.
func WithAccessToken(token string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.AccessToken = token }
}

// WithPhoneNumberID sets the business phone number ID messages are sent from.
func WithPhoneNumberID(id string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.PhoneNumberID = id }
}

// WithFlowID sets the published Flow launched by SendFlowLaunch.
func WithFlowID(id string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.FlowID = id }
}

// WithBaseURL overrides the Graph API base URL.
func WithBaseURL(u string) CloudAPIOption {
	return func(o *CloudAPIOpts) { o.BaseURL = u }
}

// CloudAPIService sends messages through Meta's Graph API.
type CloudAPIService struct {
	accessToken string
	flowID      string
	messagesURL string
	httpClient  *http.Client
}

// NewCloudAPIService creates a Cloud API channel. Access token and phone
// number ID are required.
func NewCloudAPIService(opts ...CloudAPIOption) (*CloudAPIService, error) {
	var cfg CloudAPIOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" || cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("access token and phone number ID must be provided")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = graphAPIBaseURL
	}
	slog.Debug("messaging.NewCloudAPIService: channel configured", "phone_number_id", cfg.PhoneNumberID, "flow_id_set", cfg.FlowID != "")
	return &CloudAPIService{
		accessToken: cfg.AccessToken,
		flowID:      cfg.FlowID,
		messagesURL: fmt.Sprintf("%s/%s/%s/messages", cfg.BaseURL, graphAPIVersion, cfg.PhoneNumberID),
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
	}, nil
}

// SendText sends a plain text message.
func (s *CloudAPIService) SendText(ctx context.Context, to, body string) error {
	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                canonical,
		"type":              "text",
		"text":              map[string]interface{}{"body": body},
	}
	if err := s.post(ctx, payload); err != nil {
		slog.Error("CloudAPIService SendText failed", "to", canonical, "error", err)
		return fmt.Errorf("failed to send text to %s: %w", canonical, err)
	}
	slog.Debug("CloudAPIService SendText succeeded", "to", canonical)
	return nil
}

// SendFlowLaunch sends the interactive message that opens the booking Flow.
func (s *CloudAPIService) SendFlowLaunch(ctx context.Context, to string) error {
	if s.flowID == "" {
		return ErrFlowLaunchUnsupported
	}
	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                canonical,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type": "flow",
			"body": map[string]interface{}{"text": "Agende seu horário na barbearia:"},
			"action": map[string]interface{}{
				"name": "flow",
				"parameters": map[string]interface{}{
					"flow_message_version": "3",
					"flow_id":              s.flowID,
					"flow_token":           uuid.NewString(),
					"flow_cta":             "Agendar",
					"flow_action":          "navigate",
					"flow_action_payload":  map[string]interface{}{"screen": "SERVICE_SELECTION"},
				},
			},
		},
	}
	if err := s.post(ctx, payload); err != nil {
		slog.Error("CloudAPIService SendFlowLaunch failed", "to", canonical, "error", err)
		return fmt.Errorf("failed to send flow launch to %s: %w", canonical, err)
	}
	slog.Info("CloudAPIService SendFlowLaunch succeeded", "to", canonical)
	return nil
}

func (s *CloudAPIService) post(ctx context.Context, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.messagesURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph API status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
