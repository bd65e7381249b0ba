package booking

import (
	"strings"
	"testing"
	"time"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
)

func TestNewIDShape(t *testing.T) {
	id := NewID()
	if !strings.HasPrefix(id, IDPrefix) {
		t.Errorf("id %q missing prefix %q", id, IDPrefix)
	}
	if len(id) != len(IDPrefix)+6 {
		t.Errorf("id %q must carry exactly 6 digits", id)
	}
	for _, c := range id[len(IDPrefix):] {
		if c < '0' || c > '9' {
			t.Errorf("id %q suffix contains non-digit %q", id, c)
		}
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %q after %d generations", id, i)
		}
		seen[id] = true
	}
}

func TestStorePutGet(t *testing.T) {
	s := NewStore()
	id := s.NewID()

	s.Put(id, models.BookingRecord{ServiceID: "barba", Date: "2025-09-05", Time: "10:00"})

	rec, ok := s.Get(id)
	if !ok {
		t.Fatal("stored record not found")
	}
	if rec.BookingID != id {
		t.Errorf("Put must stamp the id onto the record, got %q", rec.BookingID)
	}
	if rec.ServiceID != "barba" || rec.Time != "10:00" {
		t.Errorf("record fields lost: %+v", rec)
	}
	if rec.Timestamp.IsZero() {
		t.Error("Put must stamp the insertion time")
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("AGD-000000"); ok {
		t.Error("absent id must report not found")
	}
}

func TestStoreDelete(t *testing.T) {
	s := NewStore()
	id := s.NewID()
	s.Put(id, models.BookingRecord{ServiceID: "barba"})
	s.Delete(id)
	if _, ok := s.Get(id); ok {
		t.Error("deleted record still visible")
	}
}

func TestStoreExpiry(t *testing.T) {
	s := NewStore(WithTTL(20*time.Millisecond), WithSweepInterval(time.Hour))
	id := s.NewID()
	s.Put(id, models.BookingRecord{ServiceID: "barba"})

	if _, ok := s.Get(id); !ok {
		t.Fatal("fresh record must be visible")
	}

	time.Sleep(40 * time.Millisecond)

	// Expired entries are invisible to Get even before the sweep runs.
	if _, ok := s.Get(id); ok {
		t.Error("expired record still visible to Get")
	}

	s.Cleanup()
	if s.Len() != 0 {
		t.Errorf("Cleanup must remove expired records, %d left", s.Len())
	}
}

func TestStoreLen(t *testing.T) {
	s := NewStore()
	if s.Len() != 0 {
		t.Errorf("new store must be empty, got %d", s.Len())
	}
	s.Put(s.NewID(), models.BookingRecord{})
	s.Put(s.NewID(), models.BookingRecord{})
	if s.Len() != 2 {
		t.Errorf("expected 2 live records, got %d", s.Len())
	}
}
