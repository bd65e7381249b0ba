package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/AgendaBarber/AgendaFlow/internal/flow"
	"github.com/AgendaBarber/AgendaFlow/internal/flowcrypto"
	"github.com/AgendaBarber/AgendaFlow/internal/messaging"
	"github.com/AgendaBarber/AgendaFlow/internal/models"
)

// maxBodyBytes caps webhook payload size. Flow payloads are small; anything
// bigger is garbage.
const maxBodyBytes = 1 << 20

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verifyHandler answers Meta's webhook subscription handshake. The challenge
// must be echoed back verbatim as a bare string.
func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && token != "" && token == s.verifyToken && challenge != "" {
		slog.Info("Server.verifyHandler: webhook verification succeeded")
		writePlainResponse(w, http.StatusOK, challenge)
		return
	}
	slog.Warn("Server.verifyHandler: webhook verification failed", "mode", mode)
	writePlainResponse(w, http.StatusForbidden, "verification failed")
}

// flowWebhookHandler receives both encrypted Flow data-exchange payloads and
// plain WhatsApp business webhooks on the same route. Logical Flow errors
// are reported in-band with HTTP 200; non-200 statuses are reserved for
// transport-level failures (bad signature, undecryptable payload).
func (s *Server) flowWebhookHandler(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("Server.flowWebhookHandler: failed to read request body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unable to read request body"))
		return
	}

	if !s.checkSignature(rawBody, r.Header.Get("X-Hub-Signature-256")) {
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid payload signature"))
		return
	}

	var enc models.EncryptedEnvelope
	if err := json.Unmarshal(rawBody, &enc); err == nil && enc.IsComplete() {
		s.handleEncrypted(r.Context(), w, enc)
		return
	}
	s.handlePlaintext(r.Context(), w, rawBody)
}

// checkSignature validates X-Hub-Signature-256 against the app secret.
// Without a secret configured verification is skipped with a warning.
func (s *Server) checkSignature(rawBody []byte, header string) bool {
	if s.appSecret == "" {
		slog.Warn("Server.checkSignature: no app secret configured, skipping signature verification")
		return true
	}
	if flowcrypto.VerifySignature(rawBody, header, s.appSecret) {
		return true
	}
	if s.allowInvalidSig {
		slog.Warn("Server.checkSignature: invalid signature accepted (permissive mode)")
		return true
	}
	slog.Warn("Server.checkSignature: rejected payload with invalid signature")
	return false
}

// handleEncrypted decrypts the Flow envelope, dispatches it and returns the
// response encrypted under the same material with a flipped IV. A 421 tells
// the WhatsApp client to refresh its public key and retry.
func (s *Server) handleEncrypted(ctx context.Context, w http.ResponseWriter, enc models.EncryptedEnvelope) {
	if s.privateKey == nil {
		slog.Error("Server.handleEncrypted: encrypted payload received but no private key is configured")
		writePlainResponse(w, http.StatusMisdirectedRequest, "decryption unavailable")
		return
	}

	payload, mat, err := flowcrypto.Decrypt(enc, s.privateKey)
	if err != nil {
		slog.Error("Server.handleEncrypted: failed to decrypt payload",
			"error", err, "code", models.ErrorCodeDecryption)
		writePlainResponse(w, http.StatusMisdirectedRequest, "decryption failed")
		return
	}

	response := s.dispatch(ctx, payload)
	cipherB64, err := flowcrypto.Encrypt(response, mat)
	if err != nil {
		slog.Error("Server.handleEncrypted: failed to encrypt response",
			"error", err, "code", models.ErrorCodeEncryption)
		writePlainResponse(w, http.StatusInternalServerError, "encryption failed")
		return
	}
	writePlainResponse(w, http.StatusOK, cipherB64)
}

// handlePlaintext serves unencrypted payloads: plain business webhooks and
// Flow envelopes in local test mode.
func (s *Server) handlePlaintext(ctx context.Context, w http.ResponseWriter, rawBody []byte) {
	var payload map[string]interface{}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		slog.Warn("Server.handlePlaintext: malformed JSON body", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Malformed JSON body"))
		return
	}
	writeJSONResponse(w, http.StatusOK, s.dispatch(ctx, payload))
}

// dispatch routes a decoded payload either to the business webhook handler
// or to the Flow state machine.
func (s *Server) dispatch(ctx context.Context, payload map[string]interface{}) interface{} {
	if obj, _ := payload["object"].(string); obj == models.WebhookObjectBusinessAccount {
		return s.handleBusinessWebhook(ctx, payload)
	}

	screen, _ := payload["screen"].(string)
	if d, present := payload["data"]; present && d != nil {
		if _, isObject := d.(map[string]interface{}); !isObject {
			slog.Warn("Server.dispatch: data field is not an object", "screen", screen)
			return flow.Failure(screen, models.ErrInvalidPayload)
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Server.dispatch: failed to re-encode payload", "error", err)
		return flow.Failure(screen, err)
	}
	var env models.FlowEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("Server.dispatch: payload is not a flow envelope", "error", err)
		return flow.Failure(screen, fmt.Errorf("envelope decode: %w", models.ErrInvalidPayload))
	}
	return s.router.Handle(ctx, env)
}

// handleBusinessWebhook processes WhatsApp Business Account notifications:
// nfm_reply Flow completions and test-number text triggers. Delivery
// status receipts are acknowledged and ignored. The response is always an
// empty object so Meta does not retry.
func (s *Server) handleBusinessWebhook(ctx context.Context, payload map[string]interface{}) interface{} {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Server.handleBusinessWebhook: failed to re-encode payload", "error", err)
		return map[string]interface{}{}
	}
	var wp models.WebhookPayload
	if err := json.Unmarshal(raw, &wp); err != nil {
		slog.Warn("Server.handleBusinessWebhook: malformed webhook payload", "error", err)
		return map[string]interface{}{}
	}

	for _, entry := range wp.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) == 0 {
				if len(change.Value.Statuses) > 0 {
					slog.Debug("Server.handleBusinessWebhook: status-only webhook, skipping",
						"statuses", len(change.Value.Statuses))
				}
				continue
			}
			for _, msg := range change.Value.Messages {
				s.handleInboundMessage(ctx, msg)
			}
		}
	}
	return map[string]interface{}{}
}

func (s *Server) handleInboundMessage(ctx context.Context, msg models.InboundMessage) {
	switch {
	case msg.Interactive != nil && msg.Interactive.NfmReply != nil:
		s.handleFlowCompletion(ctx, msg)
	case msg.Type == "text" && msg.Text != nil:
		s.handleTextMessage(ctx, msg)
	default:
		slog.Debug("Server.handleInboundMessage: ignoring message", "type", msg.Type, "from", msg.From)
	}
}

// handleFlowCompletion finalizes a booking from the asynchronous nfm_reply
// sent when the user finishes the Flow, then messages the customer a
// confirmation.
func (s *Server) handleFlowCompletion(ctx context.Context, msg models.InboundMessage) {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(msg.Interactive.NfmReply.ResponsePayload), &fields); err != nil {
		slog.Error("Server.handleFlowCompletion: malformed nfm_reply response payload",
			"error", err, "from", msg.From)
		return
	}

	bookingID, _ := fields["booking_id"].(string)
	if err := s.router.ConfirmFromWebhook(ctx, bookingID, fields); err != nil {
		slog.Error("Server.handleFlowCompletion: failed to confirm booking",
			"error", err, "booking_id", bookingID, "from", msg.From)
		return
	}
	slog.Info("Server.handleFlowCompletion: booking confirmed",
		"booking_id", bookingID, "from", msg.From)

	if s.messenger == nil {
		return
	}
	if err := s.messenger.SendText(ctx, msg.From, confirmationText(bookingID, fields)); err != nil {
		slog.Error("Server.handleFlowCompletion: failed to send confirmation message",
			"error", err, "from", msg.From)
	}
}

// handleTextMessage launches the booking Flow when the configured test
// number texts the business. Everything else is ignored.
func (s *Server) handleTextMessage(ctx context.Context, msg models.InboundMessage) {
	if s.testNumber == "" || s.messenger == nil {
		return
	}
	from, err := messaging.CanonicalizeRecipient(msg.From)
	if err != nil {
		return
	}
	expected, err := messaging.CanonicalizeRecipient(s.testNumber)
	if err != nil || from != expected {
		return
	}
	if err := s.messenger.SendFlowLaunch(ctx, msg.From); err != nil {
		slog.Error("Server.handleTextMessage: failed to launch flow", "error", err, "to", msg.From)
		return
	}
	slog.Info("Server.handleTextMessage: flow launched", "to", msg.From)
}

func confirmationText(bookingID string, fields map[string]interface{}) string {
	service, _ := fields["service_name"].(string)
	date, _ := fields["date_formatted"].(string)
	if date == "" {
		date, _ = fields["selected_date"].(string)
	}
	hour, _ := fields["selected_time"].(string)

	text := "✅ Agendamento confirmado!"
	if service != "" {
		text += fmt.Sprintf("\nServiço: %s", service)
	}
	if date != "" {
		text += fmt.Sprintf("\nData: %s", date)
	}
	if hour != "" {
		text += fmt.Sprintf("\nHorário: %s", hour)
	}
	if bookingID != "" {
		text += fmt.Sprintf("\nCódigo: %s", bookingID)
	}
	return text
}
