package api

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/AgendaBarber/AgendaFlow/internal/calendar"
	"github.com/AgendaBarber/AgendaFlow/internal/flow"
	"github.com/AgendaBarber/AgendaFlow/internal/flowcrypto"
	"github.com/AgendaBarber/AgendaFlow/internal/messaging"
	"github.com/AgendaBarber/AgendaFlow/internal/store"
)

const (
	// DefaultAddr is the default listen address for the HTTP server.
	DefaultAddr = ":8080"

	// DefaultRateLimit is the per-client request ceiling per minute on the
	// admin API. The webhook route is never rate limited so Meta retries
	// are not dropped.
	DefaultRateLimit = 120

	shutdownTimeout = 10 * time.Second
)

// Opts holds configuration for the API server.
type Opts struct {
	Addr                  string
	VerifyToken           string
	AppSecret             string
	AllowInvalidSignature bool
	PrivateKeyPEM         []byte
	Passphrase            string
	TestPhoneNumber       string
	AllowedOrigins        []string
	RateLimit             int
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the token expected on the webhook GET handshake.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// WithAppSecret sets the Meta app secret used to verify payload signatures.
func WithAppSecret(secret string) Option {
	return func(o *Opts) { o.AppSecret = secret }
}

// WithAllowInvalidSignature downgrades signature failures from a 401
// rejection to a warning. Meant for local testing only.
func WithAllowInvalidSignature(allow bool) Option {
	return func(o *Opts) { o.AllowInvalidSignature = allow }
}

// WithPrivateKeyPEM sets the RSA private key used to unwrap Flow payloads.
// An empty passphrase means the key is not encrypted.
func WithPrivateKeyPEM(pemData []byte, passphrase string) Option {
	return func(o *Opts) {
		o.PrivateKeyPEM = pemData
		o.Passphrase = passphrase
	}
}

// WithTestPhoneNumber sets the sender number that triggers a Flow launch
// when it texts the business.
func WithTestPhoneNumber(number string) Option {
	return func(o *Opts) { o.TestPhoneNumber = number }
}

// WithAllowedOrigins sets the CORS allow-list for the admin API.
func WithAllowedOrigins(origins []string) Option {
	return func(o *Opts) { o.AllowedOrigins = origins }
}

// WithRateLimit sets the admin API per-client requests-per-minute ceiling.
func WithRateLimit(n int) Option {
	return func(o *Opts) { o.RateLimit = n }
}

// Server is the HTTP surface of AgendaFlow: the encrypted Flow webhook,
// the WhatsApp business webhook and a small read-only admin API.
type Server struct {
	addr            string
	verifyToken     string
	appSecret       string
	allowInvalidSig bool
	privateKey      *rsa.PrivateKey
	testNumber      string

	router    *flow.Router
	st        store.Store
	messenger messaging.Service
	handler   http.Handler
}

// NewServer assembles the HTTP server around the flow router and its
// collaborators. Store and messenger may be nil; the affected routes
// degrade instead of failing.
func NewServer(flowRouter *flow.Router, st store.Store, messenger messaging.Service, opts ...Option) (*Server, error) {
	if flowRouter == nil {
		return nil, errors.New("api.NewServer: flow router is required")
	}
	cfg := Opts{Addr: DefaultAddr, RateLimit: DefaultRateLimit}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		addr:            cfg.Addr,
		verifyToken:     cfg.VerifyToken,
		appSecret:       cfg.AppSecret,
		allowInvalidSig: cfg.AllowInvalidSignature,
		testNumber:      cfg.TestPhoneNumber,
		router:          flowRouter,
		st:              st,
		messenger:       messenger,
	}

	if len(cfg.PrivateKeyPEM) > 0 {
		key, err := flowcrypto.LoadPrivateKey(cfg.PrivateKeyPEM, cfg.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("api.NewServer: failed to load private key: %w", err)
		}
		s.privateKey = key
	} else {
		slog.Warn("api.NewServer: no private key configured, encrypted Flow payloads will be rejected")
	}

	s.handler = s.routes(cfg)
	return s, nil
}

// Handler exposes the assembled HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes(cfg Opts) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.healthHandler)
	r.Get("/webhook/whatsapp-flow", s.verifyHandler)
	// Meta retries on non-200, so the webhook rate is observed but never
	// throttled. A separate limiter keeps admin traffic out of its window.
	webhookRL := newRateLimiter(cfg.RateLimit, time.Minute)
	r.With(webhookRL.observe).Post("/webhook/whatsapp-flow", s.flowWebhookHandler)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	rl := newRateLimiter(cfg.RateLimit, time.Minute)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		r.Use(rl.middleware)
		r.Get("/appointments", s.listAppointmentsHandler)
		r.Get("/customers/{cpf}", s.getCustomerHandler)
		r.Get("/stats", s.statsHandler)
	})

	return r
}

// Start runs the HTTP server until the context is cancelled or the
// listener fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Start: listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api.Server.Start: listener failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Server.Start: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api.Server.Start: shutdown failed: %w", err)
	}
	return nil
}

// Run wires the store, calendar client, messaging service and flow router
// together and serves HTTP until SIGINT or SIGTERM.
func Run(storeOpts []store.Option, calOpts []calendar.Option, flowOpts []flow.Option, messenger messaging.Service, apiOpts []Option) error {
	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("api.Run: failed to initialize store: %w", err)
	}
	if st != nil {
		defer func() {
			if cerr := st.Close(); cerr != nil {
				slog.Error("api.Run: failed to close store", "error", cerr)
			}
		}()
	}

	var cal calendar.Service
	if client, calErr := buildCalendar(calOpts); calErr != nil {
		return fmt.Errorf("api.Run: failed to initialize calendar client: %w", calErr)
	} else if client != nil {
		cal = client
	}

	routerOpts := append([]flow.Option{
		flow.WithCalendar(cal),
		flow.WithStore(st),
		flow.WithClubFlow(st != nil),
	}, flowOpts...)
	flowRouter := flow.NewRouter(routerOpts...)

	server, err := NewServer(flowRouter, st, messenger, apiOpts...)
	if err != nil {
		return fmt.Errorf("api.Run: failed to initialize server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.Start(ctx)
}

func buildStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("api.buildStore: no DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		return store.NewPostgresStore(opts...)
	}
	return store.NewSQLiteStore(opts...)
}

func buildCalendar(opts []calendar.Option) (*calendar.Client, error) {
	var cfg calendar.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		slog.Warn("api.buildCalendar: no calendar URL configured, availability falls back to the default grid")
		return nil, nil
	}
	return calendar.NewClient(opts...)
}
