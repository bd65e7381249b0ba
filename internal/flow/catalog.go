// Package flow implements the screen-routing state machine that drives the
// booking wizard from payload to payload without server-side sessions.
//
// This file holds the barbershop catalog and the display formatting shared
// by the screen handlers. Price and date strings are computed once, stored
// in the flow context, and reused verbatim on later screens so the
// confirmation never disagrees with what the user was shown earlier.
package flow

import (
	"fmt"
	"strings"
	"time"
)

// BusinessTimezone is the fixed timezone all dates are interpreted in.
const BusinessTimezone = "America/Sao_Paulo"

// DefaultHorizonDays bounds the date picker: today through today+N.
const DefaultHorizonDays = 30

// ClubDiscount is the fractional discount applied for club members and
// plan holders.
const ClubDiscount = 0.20

// Service is one bookable service in the catalog.
type Service struct {
	ID       string
	Title    string
	Price    float64
	Duration int // minutes
}

// Branch is one barbershop location.
type Branch struct {
	ID      string
	Name    string
	Address string
}

// Barber is one professional, attached to a branch.
type Barber struct {
	ID       string
	Name     string
	BranchID string
}

// Services is the fixed service catalog offered on SERVICE_SELECTION.
var Services = []Service{
	{ID: "corte_masculino", Title: "Corte Masculino", Price: 45, Duration: 30},
	{ID: "barba", Title: "Barba", Price: 35, Duration: 30},
	{ID: "corte_e_barba", Title: "Corte + Barba", Price: 70, Duration: 60},
	{ID: "sobrancelha", Title: "Sobrancelha", Price: 15, Duration: 15},
	{ID: "corte_infantil", Title: "Corte Infantil", Price: 35, Duration: 30},
}

// Branches lists the barbershop locations.
var Branches = []Branch{
	{ID: "centro", Name: "Unidade Centro", Address: "Rua XV de Novembro, 123 - Centro"},
	{ID: "jardins", Name: "Unidade Jardins", Address: "Av. Paulista, 1500 - Jardins"},
}

// Barbers lists the professionals per branch.
var Barbers = []Barber{
	{ID: "joao", Name: "João", BranchID: "centro"},
	{ID: "pedro", Name: "Pedro", BranchID: "centro"},
	{ID: "carlos", Name: "Carlos", BranchID: "jardins"},
	{ID: "rafael", Name: "Rafael", BranchID: "jardins"},
}

// DefaultTimeSlots is the fallback slot list used when the calendar
// collaborator is degraded; the flow keeps moving instead of failing.
var DefaultTimeSlots = []string{
	"09:00", "10:00", "11:00", "14:00", "15:00", "16:00", "17:00", "18:00",
}

// ServiceByID returns the catalog entry for id, or false.
func ServiceByID(id string) (Service, bool) {
	for _, s := range Services {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

// BranchByID returns the branch for id, or false.
func BranchByID(id string) (Branch, bool) {
	for _, b := range Branches {
		if b.ID == id {
			return b, true
		}
	}
	return Branch{}, false
}

// BarberByID returns the barber for id, or false.
func BarberByID(id string) (Barber, bool) {
	for _, b := range Barbers {
		if b.ID == id {
			return b, true
		}
	}
	return Barber{}, false
}

// BarbersForBranch returns the barbers of a branch, or all barbers when the
// branch is unknown (single-branch variant of the flow).
func BarbersForBranch(branchID string) []Barber {
	var out []Barber
	for _, b := range Barbers {
		if b.BranchID == branchID {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return Barbers
	}
	return out
}

// FormatPrice renders a price in Brazilian currency notation, e.g.
// "R$ 45,00".
func FormatPrice(value float64) string {
	s := fmt.Sprintf("%.2f", value)
	return "R$ " + strings.Replace(s, ".", ",", 1)
}

// DiscountedPrice applies the club discount when either flag is set.
func DiscountedPrice(base float64, hasPlan, isClubMember bool) float64 {
	if hasPlan || isClubMember {
		return base * (1 - ClubDiscount)
	}
	return base
}

var weekdayNamesPT = map[time.Weekday]string{
	time.Sunday:    "domingo",
	time.Monday:    "segunda-feira",
	time.Tuesday:   "terça-feira",
	time.Wednesday: "quarta-feira",
	time.Thursday:  "quinta-feira",
	time.Friday:    "sexta-feira",
	time.Saturday:  "sábado",
}

// ParseDate parses a YYYY-MM-DD date in the business timezone.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", date, loc)
}

// FormatDateWithWeekday renders "sexta-feira, 05/09/2025" for a YYYY-MM-DD
// input. Invalid input is returned unchanged so a bad date never breaks a
// screen render.
func FormatDateWithWeekday(date string, loc *time.Location) string {
	t, err := ParseDate(date, loc)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%s, %s", weekdayNamesPT[t.Weekday()], t.Format("02/01/2006"))
}
