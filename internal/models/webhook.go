// Package models defines the core data structures for AgendaFlow.
//
// This file mirrors the WhatsApp Business Cloud API webhook payload shapes
// used by the message-webhook variant of the endpoint.
package models

// WebhookObjectBusinessAccount identifies a WhatsApp Business Account
// message webhook.
const WebhookObjectBusinessAccount = "whatsapp_business_account"

// WebhookPayload is the incoming JSON payload from Meta's webhook callbacks.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry represents one entry within the webhook body.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange captures the actual notification contents.
type WebhookChange struct {
	Value WebhookValue `json:"value"`
	Field string       `json:"field"`
}

// WebhookValue contains message metadata, contacts and message events.
type WebhookValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         WebhookMetadata   `json:"metadata"`
	Contacts         []WebhookContact  `json:"contacts,omitempty"`
	Messages         []InboundMessage  `json:"messages,omitempty"`
	Statuses         []DeliveryStatus  `json:"statuses,omitempty"`
}

// WebhookMetadata contains the business phone identifiers.
type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// WebhookContact represents the WhatsApp user initiating the conversation.
type WebhookContact struct {
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
	WaID string `json:"wa_id"`
}

// InboundMessage aggregates the inbound message shapes this endpoint cares
// about.
type InboundMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *TextContent        `json:"text,omitempty"`
	Interactive *InteractiveContent `json:"interactive,omitempty"`
}

// TextContent carries a plain text message body.
type TextContent struct {
	Body string `json:"body"`
}

// InteractiveContent represents interactive replies (buttons, lists, flows).
type InteractiveContent struct {
	Type        string       `json:"type"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty"`
	ListReply   *ListReply   `json:"list_reply,omitempty"`
	NfmReply    *NfmReply    `json:"nfm_reply,omitempty"`
}

// ButtonReply models a pressed button payload.
type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListReply models a selected list item payload.
type ListReply struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// NfmReply is delivered when a user completes (or exits) a Flow. The
// ResponsePayload field carries the final screen's data as a JSON string.
type NfmReply struct {
	ResponsePayload string `json:"response_json"`
	Body            string `json:"body"`
	Name            string `json:"name"`
}

// DeliveryStatus is a delivered/read receipt. Status-only webhooks are
// acknowledged and otherwise ignored.
type DeliveryStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}
