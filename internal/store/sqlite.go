// Package store provides storage backends for AgendaFlow.
//
// This file implements the SQLite-backed store, used for local development
// and single-host deployments.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. The DSN is a file path; its
// directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetCustomerByCPF(ctx context.Context, cpf string) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, phone, COALESCE(email, ''), cpf FROM customers WHERE cpf = ?`, cpf)
	var c models.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.CPF); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Error("SQLiteStore GetCustomerByCPF failed", "error", err)
		return nil, fmt.Errorf("failed to query customer: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) GetActiveSubscriptionByCPF(ctx context.Context, cpf string) (*models.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT has_plan, is_club_member, COALESCE(plan_name, '') FROM subscriptions WHERE cpf = ? AND active = 1`, cpf)
	var sub models.Subscription
	if err := row.Scan(&sub.HasPlan, &sub.IsClubMember, &sub.PlanName); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Error("SQLiteStore GetActiveSubscriptionByCPF failed", "error", err)
		return nil, fmt.Errorf("failed to query subscription: %w", err)
	}
	return &sub, nil
}

func (s *SQLiteStore) SaveAppointment(ctx context.Context, a models.Appointment) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO appointments
		(id, booking_id, service_id, service_name, branch_id, barber_id, date, time, client_name, client_phone, client_email, notes, cpf, price, event_id, event_link, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.BookingID, a.ServiceID, a.ServiceName, nilIfEmpty(a.BranchID), a.BarberID, a.Date, a.Time,
		a.ClientName, a.ClientPhone, nilIfEmpty(a.ClientEmail), nilIfEmpty(a.Notes), nilIfEmpty(a.CPF),
		nilIfEmpty(a.Price), nilIfEmpty(a.EventID), nilIfEmpty(a.EventLink), a.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveAppointment failed", "error", err, "booking_id", a.BookingID)
		return fmt.Errorf("failed to insert appointment %s: %w", a.BookingID, err)
	}
	slog.Debug("SQLiteStore SaveAppointment succeeded", "booking_id", a.BookingID)
	return nil
}

func (s *SQLiteStore) ListAppointments(ctx context.Context, from, to string) ([]models.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, booking_id, service_id, COALESCE(service_name, ''), COALESCE(branch_id, ''), barber_id, date, time,
		client_name, client_phone, COALESCE(client_email, ''), COALESCE(notes, ''), COALESCE(cpf, ''), COALESCE(price, ''),
		COALESCE(event_id, ''), COALESCE(event_link, ''), created_at
		FROM appointments WHERE (? = '' OR date >= ?) AND (? = '' OR date <= ?) ORDER BY date, time`,
		from, from, to, to)
	if err != nil {
		slog.Error("SQLiteStore ListAppointments query failed", "error", err)
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (s *SQLiteStore) CountAppointments(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", err)
	}
	return n, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
