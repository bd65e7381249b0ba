// Package flow implements the screen-routing state machine.
//
// One handler per screen transition. Handlers are total over their
// precondition set: missing or invalid input returns the user to the same
// screen with an in-band error, never an exception that aborts the HTTP
// response. Derived display strings (formatted price, date with weekday)
// are written into the flow context the first time they are computed and
// reused verbatim on later screens.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
	"github.com/google/uuid"
)

var nonDigits = regexp.MustCompile(`\D`)

func (r *Router) handleInit(ctx context.Context, token string, view map[string]interface{}) models.FlowEnvelope {
	services := make([]map[string]interface{}, 0, len(Services))
	for _, s := range Services {
		services = append(services, map[string]interface{}{
			"id":          s.ID,
			"title":       s.Title,
			"description": FormatPrice(s.Price),
		})
	}
	slog.Debug("flow.Router.handleInit: serving catalog", "flow_token", token, "services", len(services))
	return respond(models.ScreenServiceSelection, map[string]interface{}{
		"services": services,
	})
}

func (r *Router) handleSelectService(ctx context.Context, token string, view map[string]interface{}) models.FlowEnvelope {
	serviceID := strVal(view, "selected_service")
	svc, ok := ServiceByID(serviceID)
	if !ok {
		slog.Warn("flow.Router.handleSelectService: unknown service", "service", serviceID)
		return Failure(models.ScreenServiceSelection, fmt.Errorf("%q: %w", serviceID, models.ErrUnknownService))
	}

	hasPlan := boolVal(view, "has_plan")
	isClub := boolVal(view, "is_club_member")
	price := FormatPrice(DiscountedPrice(svc.Price, hasPlan, isClub))

	today := r.now().In(r.loc)
	minDate := today.Format("2006-01-02")
	maxDate := today.AddDate(0, 0, r.horizonDays).Format("2006-01-02")

	// Derived strings enter the context so CONFIRMATION shows exactly what
	// the user saw here.
	r.contexts.Merge(token, map[string]interface{}{
		"service_name":    svc.Title,
		"price_formatted": price,
	})

	slog.Info("flow.Router.handleSelectService: service selected", "flow_token", token, "service", serviceID, "price", price)
	return respond(models.ScreenDateSelection, map[string]interface{}{
		"selected_service": serviceID,
		"service_name":     svc.Title,
		"price_formatted":  price,
		"min_date":         minDate,
		"max_date":         maxDate,
	})
}

func (r *Router) handleSelectDate(ctx context.Context, token string, view map[string]interface{}) models.FlowEnvelope {
	date := strVal(view, "selected_date")
	if _, err := ParseDate(date, r.loc); err != nil {
		slog.Warn("flow.Router.handleSelectDate: invalid date", "date", date)
		return Failure(models.ScreenDateSelection, fmt.Errorf("%q: %w", date, models.ErrInvalidDate))
	}

	dateDisplay := FormatDateWithWeekday(date, r.loc)
	r.contexts.Merge(token, map[string]interface{}{"date_formatted": dateDisplay})

	if r.clubFlow {
		return respond(models.ScreenClubOption, map[string]interface{}{
			"selected_date":  date,
			"date_formatted": dateDisplay,
			"club_question":  "Você é assinante do clube ou possui um plano?",
		})
	}
	return respond(models.ScreenBranchSelection, branchData(date, dateDisplay))
}

func (r *Router) handleSelectClubOption(ctx context.Context, token string, view map[string]interface{}) models.FlowEnvelope {
	option := strVal(view, "club_option")
	if option == "yes" {
		return respond(models.ScreenCPFInput, map[string]interface{}{
			"cpf_prompt": "Informe seu CPF para localizarmos sua assinatura.",
		})
	}
	return respond(models.ScreenBranchSelection, branchData(strVal(view, "selected_date"), strVal(view, "date_formatted")))
}

func (r *Router) handleSubmitCPF(ctx context.Context, token string, view map[string]interface{}) models.FlowEnvelope {
	cpf := nonDigits.ReplaceAllString(strVal(view, "cpf"), "")
	if len(cpf) != 11 {
		return errorEnvelope(models.ScreenCPFInput, models.ErrorCodeValidation, "CPF inválido. Informe os 11 dígitos.")
	}

	hasPlan, isClub := false, false
	if r.st != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, CollaboratorTimeout)
		defer cancel()
		sub, err := r.st.GetActiveSubscriptionByCPF(lookupCtx, cpf)
		if err != nil {
			slog.Error("flow.Router.handleSubmitCPF: subscription lookup failed", "error", err)
		} else if sub != nil {
			hasPlan, isClub = sub.HasPlan, sub.IsClubMember
		}
	}

	// Recompute the price now that the discount flags are known.
	priceUpdate := map[string]interface{}{"cpf": cpf, "has_plan": hasPlan, "is_club_member": isClub}
	if svc, ok := ServiceByID(strVal(view, "selected_service")); ok {
		priceUpdate["price_formatted"] = FormatPrice(DiscountedPrice(svc.Price, hasPlan, isClub))
	}
	r.contexts.Merge(token, priceUpdate)

	data := branchData(strVal(view, "selected_date"), strVal(view, "date_formatted"))
	data["has_plan"] = hasPlan
	data["is_club_member"] = isClub
	if p, ok := priceUpdate["price_formatted"]; ok {
		data["price_formatted"] = p
	}
	slog.Info("flow.Router.handleSubmitCPF: subscription resolved", "flow_token", token, "has_plan", hasPlan, "is_club_member", isClub)
	return respond(models.ScreenBranchSelection, data)
}

func (r *Router) handleSelectBranch(ctx context.Context, token string, view map[string]interface{}) models.FlowEnvelope {
	branchID := strVal(view, "selected_branch")
	branch, ok := BranchByID(branchID)
	if !ok {
		slog.Warn("flow.Router.handleSelectBranch: unknown branch", "branch", branchID)
		return Failure(models.ScreenBranchSelection, fmt.Errorf("%q: %w", branchID, models.ErrUnknownBranch))
	}

	r.contexts.Merge(token, map[string]interface{}{
		"branch_name":    branch.Name,
		"branch_address": branch.Address,
	})

	barbers := make([]map[string]interface{}, 0)
	for _, b := range BarbersForBranch(branchID) {
		barbers = append(barbers, map[string]interface{}{"id": b.ID, "title": b.Name})
	}
	return respond(models.ScreenBarberSelection, map[string]interface{}{
		"selected_branch": branchID,
		"branch_name":     branch.Name,
		"branch_address":  branch.Address,
		"barbers":         barbers,
	})
}

func (r *Router) handleSelectBarber(ctx context.Context, token string, view map[string]interface{}) models.FlowEnvelope {
	barberID := strVal(view, "selected_barber")
	barber, ok := BarberByID(barberID)
	if !ok {
		slog.Warn("flow.Router.handleSelectBarber: unknown barber", "barber", barberID)
		return Failure(models.ScreenBarberSelection, fmt.Errorf("%q: %w", barberID, models.ErrUnknownBarber))
	}
	r.contexts.Merge(token, map[string]interface{}{"barber_name": barber.Name})

	slots := r.availableSlots(ctx, barberID, strVal(view, "selected_date"), strVal(view, "selected_service"))
	return respond(models.ScreenTimeSelection, map[string]interface{}{
		"selected_barber": barberID,
		"barber_name":     barber.Name,
		"time_slots":      slots,
	})
}

// availableSlots asks the calendar collaborator for slots, degrading to the
// fixed default list when the collaborator is missing or failing so the UX
// keeps moving.
func (r *Router) availableSlots(ctx context.Context, barberID, date, serviceID string) []map[string]interface{} {
	if r.cal != nil {
		calCtx, cancel := context.WithTimeout(ctx, CollaboratorTimeout)
		defer cancel()
		slots, err := r.cal.GetAvailableSlots(calCtx, barberID, date, serviceID)
		if err == nil && len(slots) > 0 {
			out := make([]map[string]interface{}, 0, len(slots))
			for _, s := range slots {
				out = append(out, map[string]interface{}{"id": s.ID, "title": s.Title, "description": s.Description})
			}
			return out
		}
		if err != nil {
			slog.Warn("flow.Router.availableSlots: calendar degraded, using default slots", "error", err, "barber", barberID, "date", date)
		}
	}
	out := make([]map[string]interface{}, 0, len(DefaultTimeSlots))
	for _, t := range DefaultTimeSlots {
		out = append(out, map[string]interface{}{"id": t, "title": t})
	}
	return out
}

func (r *Router) handleSelectTime(ctx context.Context, token string, view map[string]interface{}) models.FlowEnvelope {
	selectedTime := strVal(view, "selected_time")

	bookingID := strVal(view, "booking_id")
	if bookingID == "" {
		bookingID = r.bookings.NewID()
		r.contexts.Merge(token, map[string]interface{}{"booking_id": bookingID})
	}

	data := map[string]interface{}{
		"selected_time":   selectedTime,
		"booking_id":      bookingID,
		"service_name":    strVal(view, "service_name"),
		"barber_name":     strVal(view, "barber_name"),
		"date_formatted":  strVal(view, "date_formatted"),
		"price_formatted": strVal(view, "price_formatted"),
	}

	// Pre-fill contact details for known customers.
	if cpf := strVal(view, "cpf"); cpf != "" && r.st != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, CollaboratorTimeout)
		defer cancel()
		customer, err := r.st.GetCustomerByCPF(lookupCtx, cpf)
		if err != nil {
			slog.Error("flow.Router.handleSelectTime: customer lookup failed", "error", err)
		} else if customer != nil {
			data["client_name"] = customer.Name
			data["client_phone"] = customer.Phone
			if customer.Email != "" {
				data["client_email"] = customer.Email
			}
			slog.Debug("flow.Router.handleSelectTime: contact pre-filled from customer record", "flow_token", token)
		}
	}

	return respond(models.ScreenDetails, data)
}

func (r *Router) handleSubmitDetails(ctx context.Context, token string, view map[string]interface{}) models.FlowEnvelope {
	name := strings.TrimSpace(strVal(view, "client_name"))
	phone := nonDigits.ReplaceAllString(strVal(view, "client_phone"), "")
	if name == "" || phone == "" {
		return errorEnvelope(models.ScreenDetails, models.ErrorCodeValidation, "Nome e telefone são obrigatórios.")
	}

	bookingID := strVal(view, "booking_id")
	if bookingID == "" {
		bookingID = r.bookings.NewID()
	}
	r.contexts.Merge(token, map[string]interface{}{
		"client_name":  name,
		"client_phone": phone,
		"booking_id":   bookingID,
	})
	view = r.contexts.Snapshot(token)

	rec := r.recordFromView(view)
	rec.ClientName = name
	rec.ClientPhone = phone
	r.bookings.Put(bookingID, rec)

	slog.Info("flow.Router.handleSubmitDetails: booking staged", "flow_token", token, "booking_id", bookingID)

	// CONFIRMATION is a terminal screen: the client applies data onto it
	// only from this exact response, so the full set travels at once.
	return respond(models.ScreenConfirmation, map[string]interface{}{
		"booking_id":       bookingID,
		"selected_service": rec.ServiceID,
		"service_name":     rec.ServiceName,
		"selected_branch":  rec.BranchID,
		"branch_name":      rec.BranchName,
		"selected_barber":  rec.BarberID,
		"barber_name":      rec.BarberName,
		"selected_date":    rec.Date,
		"date_formatted":   rec.DateDisplay,
		"selected_time":    rec.Time,
		"client_name":      name,
		"client_phone":     phone,
		"client_email":     rec.ClientEmail,
		"notes":            rec.Notes,
		"price_formatted":  rec.Price,
	})
}

func (r *Router) handleConfirmBooking(ctx context.Context, token string, view map[string]interface{}) models.FlowEnvelope {
	bookingID := strVal(view, "booking_id")
	rec, ok := r.bookings.Get(bookingID)
	if !ok {
		slog.Warn("flow.Router.handleConfirmBooking: no staged record, rebuilding from context", "booking_id", bookingID)
		rec = r.recordFromView(view)
		rec.BookingID = bookingID
	}

	if err := r.finalizeBooking(ctx, &rec); err != nil {
		slog.Error("flow.Router.handleConfirmBooking: appointment creation failed", "error", err, "booking_id", bookingID)
		env := Failure(models.ScreenConfirmation, err)
		env.Data["booking_id"] = bookingID
		return env
	}
	r.bookings.Delete(bookingID)

	slog.Info("flow.Router.handleConfirmBooking: booking confirmed", "booking_id", bookingID)
	return respond(models.ScreenSuccess, map[string]interface{}{
		"booking_id":      bookingID,
		"service_name":    rec.ServiceName,
		"barber_name":     rec.BarberName,
		"date_formatted":  rec.DateDisplay,
		"selected_time":   rec.Time,
		"price_formatted": rec.Price,
		"message":         "Agendamento confirmado! Até breve.",
	})
}

// ConfirmFromWebhook handles the asynchronous confirmation path: the
// nfm_reply webhook arrived with the Flow's final payload. Webhook fields
// take precedence over the staged record; a missing record (expired or lost
// to a restart) degrades to whatever the webhook itself carries.
func (r *Router) ConfirmFromWebhook(ctx context.Context, bookingID string, fields map[string]interface{}) error {
	if bookingID == "" {
		return fmt.Errorf("nfm_reply carries no booking_id: %w", models.ErrBookingNotFound)
	}
	rec, ok := r.bookings.Get(bookingID)
	if !ok {
		slog.Warn("flow.Router.ConfirmFromWebhook: booking record missing, using webhook fields only", "booking_id", bookingID)
		rec = models.BookingRecord{BookingID: bookingID}
	}
	applyWebhookFields(&rec, fields)
	if rec.BookingID == "" {
		rec.BookingID = bookingID
	}

	if err := r.finalizeBooking(ctx, &rec); err != nil {
		return err
	}
	r.bookings.Delete(bookingID)
	slog.Info("flow.Router.ConfirmFromWebhook: booking confirmed", "booking_id", bookingID)
	return nil
}

// finalizeBooking creates the calendar event and persists the appointment.
// A missing calendar collaborator is tolerated (logged) so the plaintext
// test mode works end to end.
func (r *Router) finalizeBooking(ctx context.Context, rec *models.BookingRecord) error {
	var result *models.AppointmentResult
	if r.cal != nil {
		calCtx, cancel := context.WithTimeout(ctx, CollaboratorTimeout)
		defer cancel()
		var err error
		result, err = r.cal.CreateAppointment(calCtx, models.AppointmentRequest{
			BookingID:   rec.BookingID,
			ServiceID:   rec.ServiceID,
			BarberID:    rec.BarberID,
			BranchID:    rec.BranchID,
			Date:        rec.Date,
			Time:        rec.Time,
			ClientName:  rec.ClientName,
			ClientPhone: rec.ClientPhone,
			ClientEmail: rec.ClientEmail,
			Notes:       rec.Notes,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", models.ErrServiceUnavailable, err)
		}
	} else {
		slog.Warn("flow.Router.finalizeBooking: no calendar configured, skipping event creation", "booking_id", rec.BookingID)
	}

	if r.st != nil {
		appt := models.Appointment{
			ID:          uuid.NewString(),
			BookingID:   rec.BookingID,
			ServiceID:   rec.ServiceID,
			ServiceName: rec.ServiceName,
			BranchID:    rec.BranchID,
			BarberID:    rec.BarberID,
			Date:        rec.Date,
			Time:        rec.Time,
			ClientName:  rec.ClientName,
			ClientPhone: rec.ClientPhone,
			ClientEmail: rec.ClientEmail,
			Notes:       rec.Notes,
			CPF:         rec.CPF,
			Price:       rec.Price,
			CreatedAt:   time.Now(),
		}
		if result != nil {
			appt.EventID = result.ID
			appt.EventLink = result.HTMLLink
		}
		saveCtx, cancel := context.WithTimeout(ctx, CollaboratorTimeout)
		defer cancel()
		if err := r.st.SaveAppointment(saveCtx, appt); err != nil {
			// The calendar event exists; losing the dashboard row is not
			// worth failing the user's confirmation.
			slog.Error("flow.Router.finalizeBooking: failed to persist appointment", "error", err, "booking_id", rec.BookingID)
		}
	}
	return nil
}

// recordFromView assembles a booking record from the accumulated context.
func (r *Router) recordFromView(view map[string]interface{}) models.BookingRecord {
	return models.BookingRecord{
		BookingID:    strVal(view, "booking_id"),
		ServiceID:    strVal(view, "selected_service"),
		ServiceName:  strVal(view, "service_name"),
		BranchID:     strVal(view, "selected_branch"),
		BranchName:   strVal(view, "branch_name"),
		BarberID:     strVal(view, "selected_barber"),
		BarberName:   strVal(view, "barber_name"),
		Date:         strVal(view, "selected_date"),
		DateDisplay:  strVal(view, "date_formatted"),
		Time:         strVal(view, "selected_time"),
		ClientName:   strVal(view, "client_name"),
		ClientPhone:  strVal(view, "client_phone"),
		ClientEmail:  strVal(view, "client_email"),
		Notes:        strings.TrimSpace(strVal(view, "notes")),
		CPF:          strVal(view, "cpf"),
		Price:        strVal(view, "price_formatted"),
		HasPlan:      boolVal(view, "has_plan"),
		IsClubMember: boolVal(view, "is_club_member"),
	}
}

// applyWebhookFields overlays the nfm_reply payload onto a staged record;
// the webhook is the client's authoritative final state.
func applyWebhookFields(rec *models.BookingRecord, fields map[string]interface{}) {
	set := func(dst *string, key string) {
		if v := strVal(fields, key); v != "" {
			*dst = v
		}
	}
	set(&rec.BookingID, "booking_id")
	set(&rec.ServiceID, "selected_service")
	set(&rec.ServiceName, "service_name")
	set(&rec.BranchID, "selected_branch")
	set(&rec.BranchName, "branch_name")
	set(&rec.BarberID, "selected_barber")
	set(&rec.BarberName, "barber_name")
	set(&rec.Date, "selected_date")
	set(&rec.DateDisplay, "date_formatted")
	set(&rec.Time, "selected_time")
	set(&rec.ClientName, "client_name")
	set(&rec.ClientPhone, "client_phone")
	set(&rec.ClientEmail, "client_email")
	set(&rec.Notes, "notes")
	set(&rec.CPF, "cpf")
	set(&rec.Price, "price_formatted")
}

// branchData builds the BRANCH_SELECTION payload.
func branchData(date, dateDisplay string) map[string]interface{} {
	branches := make([]map[string]interface{}, 0, len(Branches))
	for _, b := range Branches {
		branches = append(branches, map[string]interface{}{
			"id":          b.ID,
			"title":       b.Name,
			"description": b.Address,
		})
	}
	data := map[string]interface{}{"branches": branches}
	if date != "" {
		data["selected_date"] = date
	}
	if dateDisplay != "" {
		data["date_formatted"] = dateDisplay
	}
	return data
}

// strVal extracts a string field from a payload map, tolerating absence.
func strVal(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// boolVal extracts a boolean field, accepting JSON booleans and the string
// forms the Flow client sometimes sends.
func boolVal(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "yes" || v == "1"
	default:
		return false
	}
}
