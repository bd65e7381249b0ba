package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(
		WithBaseURL(baseURL),
		WithAPIKey("test-key"),
		WithTimeout(2*time.Second),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	// Keep retries fast in tests.
	c.baseDelay = time.Millisecond
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("NewClient without a base URL must fail")
	}
}

func TestGetAvailableSlots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/slots" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("barber") != "joao" || r.URL.Query().Get("date") != "2025-09-05" {
			t.Errorf("missing query params: %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode([]models.TimeSlot{
			{ID: "10:00", Title: "10:00"},
			{ID: "11:00", Title: "11:00"},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	slots, err := c.GetAvailableSlots(context.Background(), "joao", "2025-09-05", "barba")
	if err != nil {
		t.Fatalf("GetAvailableSlots failed: %v", err)
	}
	if len(slots) != 2 || slots[0].ID != "10:00" {
		t.Errorf("unexpected slots: %v", slots)
	}
}

func TestRetryOnServiceUnavailable(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]models.TimeSlot{{ID: "10:00", Title: "10:00"}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	slots, err := c.GetAvailableSlots(context.Background(), "joao", "2025-09-05", "barba")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if len(slots) != 1 {
		t.Errorf("unexpected slots: %v", slots)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.GetAvailableSlots(context.Background(), "joao", "2025-09-05", "barba"); err == nil {
		t.Fatal("expected an error for HTTP 400")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("client errors must not be retried, got %d attempts", got)
	}
}

func TestRetriesExhausted(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.GetAvailableSlots(context.Background(), "joao", "2025-09-05", "barba"); err == nil {
		t.Fatal("expected failure once retries are exhausted")
	}
	if got := atomic.LoadInt32(&attempts); got != int32(DefaultMaxAttempts) {
		t.Errorf("expected %d attempts, got %d", DefaultMaxAttempts, got)
	}
}

func TestCreateAppointment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/appointments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req models.AppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.BookingID != "AGD-000123" {
			t.Errorf("unexpected booking id %q", req.BookingID)
		}
		json.NewEncoder(w).Encode(models.AppointmentResult{ID: "evt-1"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	result, err := c.CreateAppointment(context.Background(), models.AppointmentRequest{
		BookingID: "AGD-000123",
		ServiceID: "barba",
		BarberID:  "joao",
		Date:      "2025-09-05",
		Time:      "10:00",
	})
	if err != nil {
		t.Fatalf("CreateAppointment failed: %v", err)
	}
	if result.ID != "evt-1" {
		t.Errorf("unexpected event id %q", result.ID)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&Error{Op: "slots", Retryable: true}) {
		t.Error("retryable error not detected")
	}
	if IsRetryable(&Error{Op: "slots", StatusCode: 400}) {
		t.Error("client error wrongly marked retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil error is not retryable")
	}
}
