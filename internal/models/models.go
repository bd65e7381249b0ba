// Package models defines the core data structures for AgendaFlow.
//
// It includes the WhatsApp Flow wire types, the booking domain types shared
// across modules, and error variables used throughout the webhook pipeline.
package models

import (
	"errors"
	"time"
)

// FlowVersion is the WhatsApp Flow data-exchange protocol version this
// endpoint speaks.
const FlowVersion = "3.0"

// Flow actions carried in the envelope's "action" field.
const (
	// ActionInit is sent when the user opens the Flow.
	ActionInit = "INIT"
	// ActionDataExchange is sent for every screen-to-screen navigation after INIT.
	ActionDataExchange = "data_exchange"
	// ActionPing is the WhatsApp health check; it must be answered before any
	// other business logic runs.
	ActionPing = "ping"
)

// Screen names of the booking wizard.
const (
	ScreenServiceSelection = "SERVICE_SELECTION"
	ScreenDateSelection    = "DATE_SELECTION"
	ScreenClubOption       = "CLUB_OPTION"
	ScreenCPFInput         = "CPF_INPUT"
	ScreenBranchSelection  = "BRANCH_SELECTION"
	ScreenBarberSelection  = "BARBER_SELECTION"
	ScreenTimeSelection    = "TIME_SELECTION"
	ScreenDetails          = "DETAILS"
	ScreenConfirmation     = "CONFIRMATION"
	ScreenSuccess          = "SUCCESS"
)

// Action types carried in data.action_type for data_exchange requests.
const (
	ActionTypeSelectService    = "SELECT_SERVICE"
	ActionTypeSelectDate       = "SELECT_DATE"
	ActionTypeSelectClubOption = "SELECT_CLUB_OPTION"
	ActionTypeSubmitCPF        = "SUBMIT_CPF"
	ActionTypeSelectBranch     = "SELECT_BRANCH"
	ActionTypeSelectBarber     = "SELECT_BARBER"
	ActionTypeSelectTime       = "SELECT_TIME"
	ActionTypeSubmitDetails    = "SUBMIT_DETAILS"
	ActionTypeConfirmBooking   = "CONFIRM_BOOKING"
)

// FlowEnvelope is the wire-level request/response wrapper for the WhatsApp
// Flow data-exchange protocol. It is constructed fresh per HTTP request and
// never persisted.
type FlowEnvelope struct {
	Version   string                 `json:"version,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Screen    string                 `json:"screen,omitempty"`
	FlowToken string                 `json:"flow_token,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EncryptedEnvelope is the wire format when WhatsApp Flow encryption is
// active. All three fields are base64-encoded.
type EncryptedEnvelope struct {
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	EncryptedFlowData string `json:"encrypted_flow_data"`
	InitialVector     string `json:"initial_vector"`
}

// IsComplete reports whether the envelope carries all fields required to
// attempt decryption.
func (e EncryptedEnvelope) IsComplete() bool {
	return e.EncryptedAESKey != "" && e.EncryptedFlowData != "" && e.InitialVector != ""
}

// ErrorCode classifies a webhook-path failure for in-band signaling.
type ErrorCode string

const (
	ErrorCodeValidation ErrorCode = "validation_error"
	ErrorCodeDecryption ErrorCode = "decryption_error"
	ErrorCodeEncryption ErrorCode = "encryption_error"
	ErrorCodeCalendar   ErrorCode = "calendar_error"
	ErrorCodeTimeout    ErrorCode = "timeout_error"
	ErrorCodeRateLimit  ErrorCode = "rate_limit_error"
	ErrorCodeInternal   ErrorCode = "internal_error"
)

// UserMessage returns the user-safe, localized message for an error code.
// Raw error details never travel back to the WhatsApp client.
func (c ErrorCode) UserMessage() string {
	switch c {
	case ErrorCodeValidation:
		return "Dados inválidos. Verifique as informações e tente novamente."
	case ErrorCodeCalendar:
		return "Não foi possível acessar a agenda. Tente novamente em instantes."
	case ErrorCodeTimeout:
		return "O serviço demorou para responder. Tente novamente."
	case ErrorCodeRateLimit:
		return "Muitas solicitações. Aguarde um momento e tente novamente."
	default:
		return "Ocorreu um erro. Tente novamente."
	}
}

// Error variables shared across the flow pipeline.
var (
	ErrMissingAction      = errors.New("envelope action is required")
	ErrUnknownVersion     = errors.New("unsupported flow version")
	ErrInvalidPayload     = errors.New("data payload must be an object")
	ErrUnknownService     = errors.New("unknown service id")
	ErrUnknownBranch      = errors.New("unknown branch id")
	ErrUnknownBarber      = errors.New("unknown barber id")
	ErrInvalidDate        = errors.New("date must be in YYYY-MM-DD format")
	ErrMissingField       = errors.New("required field is missing")
	ErrBookingNotFound    = errors.New("booking record not found")
	ErrServiceUnavailable = errors.New("collaborator unavailable")
)

// BookingRecord is the accumulated booking payload keyed by a generated
// booking ID. It bridges the synchronous data-exchange flow and the later
// asynchronous nfm_reply webhook.
type BookingRecord struct {
	BookingID    string    `json:"booking_id"`
	ServiceID    string    `json:"selected_service"`
	ServiceName  string    `json:"service_name,omitempty"`
	BranchID     string    `json:"selected_branch,omitempty"`
	BranchName   string    `json:"branch_name,omitempty"`
	BarberID     string    `json:"selected_barber"`
	BarberName   string    `json:"barber_name,omitempty"`
	Date         string    `json:"selected_date"`
	DateDisplay  string    `json:"date_formatted,omitempty"`
	Time         string    `json:"selected_time"`
	ClientName   string    `json:"client_name"`
	ClientPhone  string    `json:"client_phone"`
	ClientEmail  string    `json:"client_email,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CPF          string    `json:"cpf,omitempty"`
	Price        string    `json:"price_formatted,omitempty"`
	HasPlan      bool      `json:"has_plan,omitempty"`
	IsClubMember bool      `json:"is_club_member,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Customer is a customer row from the persistence layer (Supabase/Postgres
// in production).
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
	CPF   string `json:"cpf"`
}

// Subscription carries the plan/club flags resolved for a CPF.
type Subscription struct {
	HasPlan      bool   `json:"has_plan"`
	IsClubMember bool   `json:"is_club_member"`
	PlanName     string `json:"plan_name,omitempty"`
}

// TimeSlot is one bookable slot offered on the TIME_SELECTION screen.
type TimeSlot struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Appointment is a confirmed booking persisted for the admin dashboard.
type Appointment struct {
	ID          string    `json:"id"`
	BookingID   string    `json:"booking_id"`
	ServiceID   string    `json:"service_id"`
	ServiceName string    `json:"service_name"`
	BranchID    string    `json:"branch_id,omitempty"`
	BarberID    string    `json:"barber_id"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	ClientName  string    `json:"client_name"`
	ClientPhone string    `json:"client_phone"`
	ClientEmail string    `json:"client_email,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CPF         string    `json:"cpf,omitempty"`
	Price       string    `json:"price,omitempty"`
	EventID     string    `json:"event_id,omitempty"`
	EventLink   string    `json:"event_link,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AppointmentRequest is the payload sent to the calendar collaborator when
// creating an event.
type AppointmentRequest struct {
	BookingID   string `json:"booking_id"`
	ServiceID   string `json:"service"`
	BarberID    string `json:"barber"`
	BranchID    string `json:"branch,omitempty"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	ClientEmail string `json:"client_email,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// AppointmentResult is the calendar collaborator's answer to event creation.
type AppointmentResult struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	HTMLLink string `json:"htmlLink,omitempty"`
}
