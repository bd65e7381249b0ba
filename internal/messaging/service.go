// Package messaging provides outbound WhatsApp message delivery for
// AgendaFlow.
//
// The Service interface abstracts the delivery channel: the Cloud API
// client talks to Meta's Graph API (and is the only channel able to launch
// a Flow), while the Twilio client serves deployments that relay
// confirmations through Twilio's WhatsApp gateway.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Service defines a pluggable outbound message delivery abstraction.
type Service interface {
	// SendText sends a plain text WhatsApp message.
	SendText(ctx context.Context, to, body string) error

	// SendFlowLaunch sends an interactive message that opens the booking
	// Flow on the recipient's device.
	SendFlowLaunch(ctx context.Context, to string) error
}

// ErrFlowLaunchUnsupported is returned by channels that cannot deliver
// interactive Flow messages.
var ErrFlowLaunchUnsupported = errors.New("flow launch not supported on this channel")

var phoneNumberRegex = regexp.MustCompile(`\D`)

// CanonicalizeRecipient strips non-digits and validates the result.
func CanonicalizeRecipient(recipient string) (string, error) {
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short", canonical)
	}
	return canonical, nil
}
