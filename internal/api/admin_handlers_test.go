package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
	"github.com/AgendaBarber/AgendaFlow/internal/store"
)

func adminGet(s *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func seedStore(t *testing.T) *store.InMemoryStore {
	t.Helper()
	st := store.NewInMemoryStore()
	st.AddCustomer(models.Customer{ID: "c1", Name: "Maria Silva", Phone: "11988887777", CPF: "12345678901"})
	st.AddSubscription("12345678901", models.Subscription{HasPlan: true, PlanName: "Clube Mensal"})
	if err := st.SaveAppointment(context.Background(), models.Appointment{
		ID: "a1", BookingID: "AGD-000123", ServiceID: "barba", BarberID: "joao",
		Date: "2025-09-05", Time: "10:00", ClientName: "Maria Silva", CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	return st
}

func TestListAppointments(t *testing.T) {
	s := newTestServer(t, seedStore(t))

	rec := adminGet(s, "/api/v1/appointments?from=2025-09-01&to=2025-09-30")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Status string               `json:"status"`
		Result []models.Appointment `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Result) != 1 || resp.Result[0].BookingID != "AGD-000123" {
		t.Errorf("unexpected appointments: %v", resp.Result)
	}

	// Out-of-range filter returns an empty list, not an error.
	rec = adminGet(s, "/api/v1/appointments?from=2026-01-01")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for empty range, got %d", rec.Code)
	}
}

func TestGetCustomer(t *testing.T) {
	s := newTestServer(t, seedStore(t))

	rec := adminGet(s, "/api/v1/customers/12345678901")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Result struct {
			Customer     *models.Customer     `json:"customer"`
			Subscription *models.Subscription `json:"subscription"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Result.Customer == nil || resp.Result.Customer.Name != "Maria Silva" {
		t.Errorf("customer missing from response: %v", resp.Result.Customer)
	}
	if resp.Result.Subscription == nil || !resp.Result.Subscription.HasPlan {
		t.Errorf("subscription missing from response: %v", resp.Result.Subscription)
	}
}

func TestGetCustomerWithoutSubscription(t *testing.T) {
	st := seedStore(t)
	st.AddCustomer(models.Customer{ID: "c2", Name: "José Santos", Phone: "11977776666", CPF: "98765432100"})
	s := newTestServer(t, st)

	rec := adminGet(s, "/api/v1/customers/98765432100")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message != "no active subscription" {
		t.Errorf("expected the no-subscription message, got %q", resp.Message)
	}
}

func TestGetCustomerNotFound(t *testing.T) {
	s := newTestServer(t, seedStore(t))

	if rec := adminGet(s, "/api/v1/customers/99999999999"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown CPF, got %d", rec.Code)
	}
}

func TestGetCustomerBadCPF(t *testing.T) {
	s := newTestServer(t, seedStore(t))

	if rec := adminGet(s, "/api/v1/customers/123"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed CPF, got %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t, seedStore(t))

	rec := adminGet(s, "/api/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Result map[string]interface{} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Result["total_appointments"] != float64(1) {
		t.Errorf("expected 1 appointment, got %v", resp.Result["total_appointments"])
	}
	if _, ok := resp.Result["pending_bookings"]; !ok {
		t.Error("stats must report pending_bookings")
	}
}

func TestAdminWithoutStore(t *testing.T) {
	s := newTestServer(t, nil)

	if rec := adminGet(s, "/api/v1/appointments"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a store, got %d", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	s := newTestServer(t, seedStore(t), WithRateLimit(3))

	var last int
	for i := 0; i < 5; i++ {
		last = adminGet(s, "/api/v1/stats").Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("expected 429 after exceeding the limit, got %d", last)
	}
}

func TestRateLimiterNeverThrottlesWebhook(t *testing.T) {
	s := newTestServer(t, nil, WithRateLimit(2))

	for i := 0; i < 6; i++ {
		rec := postJSON(s, []byte(`{"version":"3.0","action":"ping"}`), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("webhook request %d got %d, the flow route must keep answering 200", i+1, rec.Code)
		}
	}
}
