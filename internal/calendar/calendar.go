// Package calendar defines the calendar collaborator consumed by the
// booking flow and an HTTP client implementation with explicit timeouts
// and a centralized retry/backoff policy.
//
// The flow treats this service as a black box: slot queries that fail are
// absorbed by the handlers' fallback slot list, while appointment creation
// failures surface as in-band flow errors.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
	"github.com/sethvargo/go-retry"
)

// Service is the collaborator interface consumed by the flow handlers.
type Service interface {
	// GetAvailableSlots returns the bookable slots for a barber on a date,
	// sized by the service's duration.
	GetAvailableSlots(ctx context.Context, barberID, date, serviceID string) ([]models.TimeSlot, error)

	// CreateAppointment creates the calendar event for a confirmed booking.
	CreateAppointment(ctx context.Context, req models.AppointmentRequest) (*models.AppointmentResult, error)
}

// Error is a calendar collaborator failure. Retryable errors (HTTP 429/503,
// connection resets, timeouts) are retried with backoff before surfacing.
type Error struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("calendar %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("calendar %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a calendar error flagged retryable.
func IsRetryable(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Retryable
}

// Default client policy. The request timeout converts a collaborator hang
// into a typed timeout error instead of leaving the Flow round trip
// dangling past the client's own deadline.
const (
	DefaultTimeout     = 12 * time.Second
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
)

// Opts holds configuration for the HTTP calendar client.
type Opts struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
}

// Option defines a configuration option for the calendar client.
type Option func(*Opts)

// WithBaseURL sets the calendar API base URL.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithAPIKey sets the bearer token sent to the calendar API.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithMaxAttempts sets the bounded retry attempts for retryable failures.
func WithMaxAttempts(n int) Option {
	return func(o *Opts) { o.MaxAttempts = n }
}

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

// NewClient creates a calendar client from options. BaseURL is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Timeout: DefaultTimeout, MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("calendar base URL not set")
	}
	slog.Debug("calendar.NewClient: client configured", "base_url", cfg.BaseURL, "timeout", cfg.Timeout, "max_attempts", cfg.MaxAttempts)
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
	}, nil
}

// GetAvailableSlots queries GET {base}/slots for the (barber, date, service)
// tuple.
func (c *Client) GetAvailableSlots(ctx context.Context, barberID, date, serviceID string) ([]models.TimeSlot, error) {
	q := url.Values{}
	q.Set("barber", barberID)
	q.Set("date", date)
	q.Set("service", serviceID)

	var slots []models.TimeSlot
	err := c.withRetry(ctx, "slots", func(ctx context.Context) error {
		body, err := c.do(ctx, http.MethodGet, "/slots?"+q.Encode(), nil, "slots")
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &slots); err != nil {
			return &Error{Op: "slots", Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("calendar.Client.GetAvailableSlots: slots fetched", "barber", barberID, "date", date, "count", len(slots))
	return slots, nil
}

// CreateAppointment posts the booking to POST {base}/appointments.
func (c *Client) CreateAppointment(ctx context.Context, req models.AppointmentRequest) (*models.AppointmentResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Op: "create", Err: err}
	}

	var result models.AppointmentResult
	err = c.withRetry(ctx, "create", func(ctx context.Context) error {
		body, err := c.do(ctx, http.MethodPost, "/appointments", payload, "create")
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return &Error{Op: "create", Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("calendar.Client.CreateAppointment: event created", "booking_id", req.BookingID, "event_id", result.ID)
	return &result, nil
}

// withRetry applies the bounded exponential backoff policy, retrying only
// failures flagged retryable.
func (c *Client) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.baseDelay))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsRetryable(err) {
			slog.Warn("calendar.Client: retryable failure", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, op string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors (timeouts, resets) are worth another attempt.
		return nil, &Error{Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Retryable: true, Err: err}
	}
	if resp.StatusCode >= 400 {
		retryable := resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode == http.StatusServiceUnavailable ||
			resp.StatusCode == http.StatusBadGateway
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Retryable: retryable}
	}
	return data, nil
}
