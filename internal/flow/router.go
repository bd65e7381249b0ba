// Package flow implements the screen-routing state machine that drives the
// booking wizard.
//
// The router is the single entry point for decrypted Flow envelopes: it
// validates the envelope shape, resolves placeholders against the
// per-token context, merges the payload into that context, and dispatches
// to the screen handler registered for the request's action type. Every
// reachable outcome produces a well-formed envelope; errors travel in-band
// (data.error = true) because the WhatsApp client expects HTTP 200 for any
// logical outcome.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AgendaBarber/AgendaFlow/internal/booking"
	"github.com/AgendaBarber/AgendaFlow/internal/calendar"
	"github.com/AgendaBarber/AgendaFlow/internal/models"
	"github.com/AgendaBarber/AgendaFlow/internal/store"
)

// CollaboratorTimeout bounds every calendar/database call issued from a
// screen handler so a hung collaborator cannot outlive the WhatsApp
// client's own round-trip deadline.
const CollaboratorTimeout = 15 * time.Second

// requiredFields maps each action type to the fields that must be present
// (in the payload or recoverable from context) before its handler runs.
var requiredFields = map[string][]string{
	models.ActionTypeSelectService:    {"selected_service"},
	models.ActionTypeSelectDate:       {"selected_service", "selected_date"},
	models.ActionTypeSelectClubOption: {"club_option"},
	models.ActionTypeSubmitCPF:        {"cpf"},
	models.ActionTypeSelectBranch:     {"selected_branch"},
	models.ActionTypeSelectBarber:     {"selected_service", "selected_date", "selected_barber"},
	models.ActionTypeSelectTime:       {"selected_service", "selected_date", "selected_barber", "selected_time"},
	models.ActionTypeSubmitDetails:    {"client_name", "client_phone"},
	models.ActionTypeConfirmBooking:   {"booking_id"},
}

// originScreen maps an action type to the screen the client is on when it
// fires, used when a precondition fails and the user must stay put.
var originScreen = map[string]string{
	models.ActionTypeSelectService:    models.ScreenServiceSelection,
	models.ActionTypeSelectDate:       models.ScreenDateSelection,
	models.ActionTypeSelectClubOption: models.ScreenClubOption,
	models.ActionTypeSubmitCPF:        models.ScreenCPFInput,
	models.ActionTypeSelectBranch:     models.ScreenBranchSelection,
	models.ActionTypeSelectBarber:     models.ScreenBarberSelection,
	models.ActionTypeSelectTime:       models.ScreenTimeSelection,
	models.ActionTypeSubmitDetails:    models.ScreenDetails,
	models.ActionTypeConfirmBooking:   models.ScreenConfirmation,
}

// actionTypeForScreen is the fallback dispatch table used when the client
// omits action_type and only reports the screen it believes it is on.
var actionTypeForScreen = map[string]string{
	models.ScreenServiceSelection: models.ActionTypeSelectService,
	models.ScreenDateSelection:    models.ActionTypeSelectDate,
	models.ScreenClubOption:       models.ActionTypeSelectClubOption,
	models.ScreenCPFInput:         models.ActionTypeSubmitCPF,
	models.ScreenBranchSelection:  models.ActionTypeSelectBranch,
	models.ScreenBarberSelection:  models.ActionTypeSelectBarber,
	models.ScreenTimeSelection:    models.ActionTypeSelectTime,
	models.ScreenDetails:          models.ActionTypeSubmitDetails,
	models.ScreenConfirmation:     models.ActionTypeConfirmBooking,
}

// KnownScreens is the set of valid state-machine nodes; every response's
// screen field is a member.
var KnownScreens = map[string]bool{
	models.ScreenServiceSelection: true,
	models.ScreenDateSelection:    true,
	models.ScreenClubOption:       true,
	models.ScreenCPFInput:         true,
	models.ScreenBranchSelection:  true,
	models.ScreenBarberSelection:  true,
	models.ScreenTimeSelection:    true,
	models.ScreenDetails:          true,
	models.ScreenConfirmation:     true,
	models.ScreenSuccess:          true,
}

// Opts holds router configuration.
type Opts struct {
	Contexts    *ContextStore
	Bookings    *booking.Store
	Calendar    calendar.Service
	Store       store.Store
	HorizonDays int
	ClubFlow    bool
	Now         func() time.Time
}

// Option defines a configuration option for the router.
type Option func(*Opts)

// WithContextStore sets the per-token flow context store.
func WithContextStore(cs *ContextStore) Option {
	return func(o *Opts) { o.Contexts = cs }
}

// WithBookingStore sets the booking correlation store.
func WithBookingStore(bs *booking.Store) Option {
	return func(o *Opts) { o.Bookings = bs }
}

// WithCalendar sets the calendar collaborator.
func WithCalendar(c calendar.Service) Option {
	return func(o *Opts) { o.Calendar = c }
}

// WithStore sets the customer/subscription persistence backend.
func WithStore(s store.Store) Option {
	return func(o *Opts) { o.Store = s }
}

// WithHorizonDays sets how many days ahead the date picker allows.
func WithHorizonDays(days int) Option {
	return func(o *Opts) { o.HorizonDays = days }
}

// WithClubFlow enables the CPF/plan-aware variant that routes through the
// CLUB_OPTION and CPF_INPUT screens before branch selection.
func WithClubFlow(enabled bool) Option {
	return func(o *Opts) { o.ClubFlow = enabled }
}

// WithClock overrides the router's clock (tests).
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Router dispatches Flow envelopes to screen handlers.
type Router struct {
	contexts    *ContextStore
	bookings    *booking.Store
	cal         calendar.Service
	st          store.Store
	horizonDays int
	clubFlow    bool
	loc         *time.Location
	now         func() time.Time
}

// NewRouter creates a flow router with the given options.
func NewRouter(opts ...Option) *Router {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = NewContextStore(0, 0)
	}
	if cfg.Bookings == nil {
		cfg.Bookings = booking.NewStore()
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = DefaultHorizonDays
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	loc, err := time.LoadLocation(BusinessTimezone)
	if err != nil {
		slog.Error("flow.NewRouter: failed to load business timezone, falling back to UTC", "error", err)
		loc = time.UTC
	}
	return &Router{
		contexts:    cfg.Contexts,
		bookings:    cfg.Bookings,
		cal:         cfg.Calendar,
		st:          cfg.Store,
		horizonDays: cfg.HorizonDays,
		clubFlow:    cfg.ClubFlow,
		loc:         loc,
		now:         cfg.Now,
	}
}

// Bookings exposes the correlation store to the webhook layer.
func (r *Router) Bookings() *booking.Store { return r.bookings }

// Handle processes one Flow envelope and returns the response envelope.
func (r *Router) Handle(ctx context.Context, env models.FlowEnvelope) models.FlowEnvelope {
	// Health check fast path, before any other logic.
	if env.Action == models.ActionPing {
		return models.FlowEnvelope{Version: envVersion(env), Data: map[string]interface{}{"status": "active"}}
	}

	if err := validateEnvelope(env); err != nil {
		slog.Warn("flow.Router.Handle: invalid envelope", "error", err)
		return Failure(env.Screen, err)
	}

	token := env.FlowToken
	resolved := ResolvePlaceholders(env.Data, r.contexts.Snapshot(token))
	r.contexts.Merge(token, resolved)
	view := r.contexts.Snapshot(token)

	switch env.Action {
	case models.ActionInit:
		return r.handleInit(ctx, token, view)
	case models.ActionDataExchange:
		return r.dispatchDataExchange(ctx, token, env, resolved, view)
	default:
		slog.Debug("flow.Router.Handle: unrecognized action", "action", env.Action)
		return models.FlowEnvelope{Version: envVersion(env), Data: map[string]interface{}{}}
	}
}

func (r *Router) dispatchDataExchange(ctx context.Context, token string, env models.FlowEnvelope, resolved, view map[string]interface{}) models.FlowEnvelope {
	actionType := strVal(resolved, "action_type")
	if actionType == "" {
		// Client omitted action_type; fall back to the screen it reports.
		actionType = actionTypeForScreen[env.Screen]
		if actionType == "" {
			slog.Warn("flow.Router.dispatchDataExchange: no action_type and unknown screen", "screen", env.Screen)
			return errorEnvelope(env.Screen, models.ErrorCodeValidation, "")
		}
		slog.Debug("flow.Router.dispatchDataExchange: dispatching by reported screen", "screen", env.Screen, "action_type", actionType)
	}

	if missing := missingFields(actionType, view); missing != "" {
		slog.Warn("flow.Router.dispatchDataExchange: missing required field", "action_type", actionType, "field", missing)
		return Failure(originScreen[actionType], fmt.Errorf("%s: %w", missing, models.ErrMissingField))
	}

	switch actionType {
	case models.ActionTypeSelectService:
		return r.handleSelectService(ctx, token, view)
	case models.ActionTypeSelectDate:
		return r.handleSelectDate(ctx, token, view)
	case models.ActionTypeSelectClubOption:
		return r.handleSelectClubOption(ctx, token, view)
	case models.ActionTypeSubmitCPF:
		return r.handleSubmitCPF(ctx, token, view)
	case models.ActionTypeSelectBranch:
		return r.handleSelectBranch(ctx, token, view)
	case models.ActionTypeSelectBarber:
		return r.handleSelectBarber(ctx, token, view)
	case models.ActionTypeSelectTime:
		return r.handleSelectTime(ctx, token, view)
	case models.ActionTypeSubmitDetails:
		return r.handleSubmitDetails(ctx, token, view)
	case models.ActionTypeConfirmBooking:
		return r.handleConfirmBooking(ctx, token, view)
	default:
		slog.Warn("flow.Router.dispatchDataExchange: unknown action_type", "action_type", actionType)
		return errorEnvelope(env.Screen, models.ErrorCodeValidation, "")
	}
}

// validateEnvelope checks the wire-level shape before any dispatch runs.
func validateEnvelope(env models.FlowEnvelope) error {
	if env.Action == "" {
		return models.ErrMissingAction
	}
	if env.Version != "" && env.Version != models.FlowVersion {
		return fmt.Errorf("%q: %w", env.Version, models.ErrUnknownVersion)
	}
	return nil
}

// missingFields returns the first required field absent from view, or "".
func missingFields(actionType string, view map[string]interface{}) string {
	for _, field := range requiredFields[actionType] {
		v, ok := view[field]
		if !ok || v == nil {
			return field
		}
		if s, isStr := v.(string); isStr && s == "" {
			return field
		}
	}
	return ""
}

func envVersion(env models.FlowEnvelope) string {
	if env.Version != "" {
		return env.Version
	}
	return models.FlowVersion
}

// respond builds a normal response envelope for a screen.
func respond(screen string, data map[string]interface{}) models.FlowEnvelope {
	return models.FlowEnvelope{Version: models.FlowVersion, Screen: screen, Data: data}
}

// Failure converts a pipeline error into the in-band envelope the client
// expects, keeping the user on screen. Sentinels from the models package
// select the error code and the user-facing message; an unrecognized error
// reports a generic internal code, never its own text.
func Failure(screen string, err error) models.FlowEnvelope {
	code := models.ErrorCodeInternal
	msg := ""
	switch {
	case errors.Is(err, models.ErrMissingAction),
		errors.Is(err, models.ErrUnknownVersion),
		errors.Is(err, models.ErrInvalidPayload),
		errors.Is(err, models.ErrBookingNotFound):
		code = models.ErrorCodeValidation
	case errors.Is(err, models.ErrUnknownService):
		code, msg = models.ErrorCodeValidation, "Serviço inválido. Escolha uma opção da lista."
	case errors.Is(err, models.ErrUnknownBranch):
		code, msg = models.ErrorCodeValidation, "Unidade inválida. Escolha uma opção da lista."
	case errors.Is(err, models.ErrUnknownBarber):
		code, msg = models.ErrorCodeValidation, "Profissional inválido. Escolha uma opção da lista."
	case errors.Is(err, models.ErrInvalidDate):
		code, msg = models.ErrorCodeValidation, "Data inválida. Escolha uma data no calendário."
	case errors.Is(err, models.ErrMissingField):
		code, msg = models.ErrorCodeValidation, "Informação obrigatória ausente. Volte e selecione novamente."
	case errors.Is(err, context.DeadlineExceeded):
		code = models.ErrorCodeTimeout
	case errors.Is(err, models.ErrServiceUnavailable):
		code = models.ErrorCodeCalendar
	}
	return errorEnvelope(screen, code, msg)
}

// errorEnvelope returns the user to screen with an in-band error. The flow
// context is not cleared, so the user's progress survives.
func errorEnvelope(screen string, code models.ErrorCode, msg string) models.FlowEnvelope {
	if screen == "" || !KnownScreens[screen] {
		screen = models.ScreenServiceSelection
	}
	if msg == "" {
		msg = code.UserMessage()
	}
	return models.FlowEnvelope{
		Version: models.FlowVersion,
		Screen:  screen,
		Data: map[string]interface{}{
			"error":         true,
			"error_message": msg,
			"error_code":    string(code),
		},
	}
}
