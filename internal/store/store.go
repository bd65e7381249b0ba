// Package store provides storage backends for AgendaFlow.
//
// Customers, subscriptions and confirmed appointments live behind one
// interface with in-memory, SQLite, and PostgreSQL (Supabase) backends,
// selected by DSN detection at startup.
package store

import (
	"context"
	"strings"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
)

// Store is the persistence interface consumed by the flow and the admin
// API. Lookup methods return (nil, nil) when the row is absent.
type Store interface {
	GetCustomerByCPF(ctx context.Context, cpf string) (*models.Customer, error)
	GetActiveSubscriptionByCPF(ctx context.Context, cpf string) (*models.Subscription, error)
	SaveAppointment(ctx context.Context, appt models.Appointment) error
	ListAppointments(ctx context.Context, from, to string) ([]models.Appointment, error)
	CountAppointments(ctx context.Context) (int, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType determines the database type from a DSN string. Returns
// "postgres" for PostgreSQL URLs or key=value DSNs, "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
