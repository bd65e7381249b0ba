package store

import (
	"database/sql"
	"fmt"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanAppointments scans all appointment rows from a result set.
func scanAppointments(rows *sql.Rows) ([]models.Appointment, error) {
	var out []models.Appointment
	for rows.Next() {
		var a models.Appointment
		err := rows.Scan(
			&a.ID, &a.BookingID, &a.ServiceID, &a.ServiceName, &a.BranchID, &a.BarberID,
			&a.Date, &a.Time, &a.ClientName, &a.ClientPhone, &a.ClientEmail, &a.Notes,
			&a.CPF, &a.Price, &a.EventID, &a.EventLink, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan appointment failed: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
