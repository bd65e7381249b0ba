package api

import (
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
)

var cpfPattern = regexp.MustCompile(`^\d{11}$`)

// listAppointmentsHandler returns stored appointments, optionally filtered
// by the from/to query parameters (YYYY-MM-DD, inclusive).
func (s *Server) listAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	if s.st == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Persistent store not configured"))
		return
	}
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")

	appointments, err := s.st.ListAppointments(r.Context(), from, to)
	if err != nil {
		slog.Error("Server.listAppointmentsHandler: failed to list appointments", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list appointments"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(appointments))
}

// getCustomerHandler looks up a customer by CPF, including their active
// subscription when one exists.
func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	if s.st == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Persistent store not configured"))
		return
	}
	cpf := chi.URLParam(r, "cpf")
	if !cpfPattern.MatchString(cpf) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("CPF must be 11 digits"))
		return
	}

	customer, err := s.st.GetCustomerByCPF(r.Context(), cpf)
	if err != nil {
		slog.Error("Server.getCustomerHandler: failed to look up customer", "error", err, "cpf", cpf)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up customer"))
		return
	}
	if customer == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Customer not found"))
		return
	}

	subscription, err := s.st.GetActiveSubscriptionByCPF(r.Context(), cpf)
	if err != nil {
		slog.Error("Server.getCustomerHandler: failed to look up subscription", "error", err, "cpf", cpf)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up subscription"))
		return
	}

	result := map[string]interface{}{
		"customer":     customer,
		"subscription": subscription,
	}
	if subscription == nil {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("no active subscription", result))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// statsHandler reports appointment volume and in-flight booking count.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"pending_bookings": s.router.Bookings().Len(),
	}
	if s.st != nil {
		total, err := s.st.CountAppointments(r.Context())
		if err != nil {
			slog.Error("Server.statsHandler: failed to count appointments", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute stats"))
			return
		}
		stats["total_appointments"] = total
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}
