// Package store provides storage backends for AgendaFlow.
//
// This file implements the PostgreSQL-backed store, pointed in production
// at the Supabase database holding customers, subscriptions and plans.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the maximum number of open connections.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the maximum number of idle connections.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the maximum time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetCustomerByCPF(ctx context.Context, cpf string) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, phone, COALESCE(email, ''), cpf FROM customers WHERE cpf = $1`, cpf)
	var c models.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CPF); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Error("PostgresStore GetCustomerByCPF failed", "error", err)
		return nil, fmt.Errorf("failed to query customer: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) GetActiveSubscriptionByCPF(ctx context.Context, cpf string) (*models.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT has_plan, is_club_member, COALESCE(plan_name, '') FROM subscriptions WHERE cpf = $1 AND active = TRUE`, cpf)
	var sub models.Subscription
	if err := row.Scan(&sub.HasPlan, &sub.IsClubMember, &sub.PlanName); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Error("PostgresStore GetActiveSubscriptionByCPF failed", "error", err)
		return nil, fmt.Errorf("failed to query subscription: %w", err)
	}
	return &sub, nil
}

func (s *PostgresStore) SaveAppointment(ctx context.Context, a models.Appointment) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO appointments
		(id, booking_id, service_id, service_name, branch_id, barber_id, date, time, client_name, client_phone, client_email, notes, cpf, price, event_id, event_link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		a.ID, a.BookingID, a.ServiceID, a.ServiceName, nilIfEmpty(a.BranchID), a.BarberID, a.Date, a.Time,
		a.ClientName, a.ClientPhone, nilIfEmpty(a.ClientEmail), nilIfEmpty(a.Notes), nilIfEmpty(a.CPF),
		nilIfEmpty(a.Price), nilIfEmpty(a.EventID), nilIfEmpty(a.EventLink), a.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveAppointment failed", "error", err, "booking_id", a.BookingID)
		return fmt.Errorf("failed to insert appointment %s: %w", a.BookingID, err)
	}
	slog.Debug("PostgresStore SaveAppointment succeeded", "booking_id", a.BookingID)
	return nil
}

func (s *PostgresStore) ListAppointments(ctx context.Context, from, to string) ([]models.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, booking_id, service_id, COALESCE(service_name, ''), COALESCE(branch_id, ''), barber_id, date, time,
		client_name, client_phone, COALESCE(client_email, ''), COALESCE(notes, ''), COALESCE(cpf, ''), COALESCE(price, ''),
		COALESCE(event_id, ''), COALESCE(event_link, ''), created_at
		FROM appointments WHERE ($1 = '' OR date >= $1) AND ($2 = '' OR date <= $2) ORDER BY date, time`,
		from, to)
	if err != nil {
		slog.Error("PostgresStore ListAppointments query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (s *PostgresStore) CountAppointments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", err)
	}
	return n, nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
