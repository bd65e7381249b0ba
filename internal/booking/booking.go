// Package booking provides the booking correlation store: a TTL-expiring
// map from generated booking IDs to the full accumulated booking payload.
//
// It bridges the synchronous Flow data-exchange cycle and the asynchronous
// nfm_reply webhook that actually triggers calendar-event creation. Records
// that never get confirmed are swept after the TTL.
package booking

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
	gocache "github.com/patrickmn/go-cache"
)

// IDPrefix is the fixed textual prefix of booking identifiers. Downstream
// systems match on this shape, so it is kept stable.
const IDPrefix = "AGD-"

// Default expiration policy for unconfirmed bookings.
const (
	DefaultTTL           = 1 * time.Hour
	DefaultSweepInterval = 10 * time.Minute
)

// idCounter feeds the numeric suffix of booking IDs. Seeding from the clock
// keeps IDs loosely time-ordered; the atomic increment makes collisions
// impossible within a process, unlike a raw timestamp suffix.
var idCounter uint64

func init() {
	atomic.StoreUint64(&idCounter, uint64(time.Now().Unix()))
}

// NewID generates a booking identifier of the shape AGD-NNNNNN.
func NewID() string {
	n := atomic.AddUint64(&idCounter, 1)
	return fmt.Sprintf("%s%06d", IDPrefix, n%1000000)
}

// Opts holds configuration for the correlation store.
type Opts struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// Option defines a configuration option for the correlation store.
type Option func(*Opts)

// WithTTL sets how long an unconfirmed booking record is retained.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.TTL = ttl }
}

// WithSweepInterval sets how often expired records are swept.
func WithSweepInterval(interval time.Duration) Option {
	return func(o *Opts) { o.SweepInterval = interval }
}

// Store is a concurrency-safe TTL map of booking records. Expired entries
// are invisible to Get immediately and deleted by the periodic sweep, so
// readers never race the janitor.
type Store struct {
	cache *gocache.Cache
}

// NewStore creates a correlation store with the given options.
func NewStore(opts ...Option) *Store {
	cfg := Opts{TTL: DefaultTTL, SweepInterval: DefaultSweepInterval}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("booking.NewStore: creating correlation store", "ttl", cfg.TTL, "sweep_interval", cfg.SweepInterval)
	return &Store{cache: gocache.New(cfg.TTL, cfg.SweepInterval)}
}

// NewID generates a booking identifier. Method form of the package
// function, for call sites that already hold a store.
func (s *Store) NewID() string { return NewID() }

// Put stores a booking record under its ID, stamping the insertion time.
func (s *Store) Put(id string, rec models.BookingRecord) {
	rec.BookingID = id
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	s.cache.SetDefault(id, rec)
	slog.Debug("booking.Store.Put: record stored", "booking_id", id, "service", rec.ServiceID, "date", rec.Date)
}

// Get returns the record for id, or false if it is absent or expired.
func (s *Store) Get(id string) (models.BookingRecord, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return models.BookingRecord{}, false
	}
	rec, ok := v.(models.BookingRecord)
	return rec, ok
}

// Delete removes the record for id, if any.
func (s *Store) Delete(id string) {
	s.cache.Delete(id)
	slog.Debug("booking.Store.Delete: record removed", "booking_id", id)
}

// Cleanup removes expired records immediately. The janitor does this on its
// own schedule; Cleanup exists for deterministic tests and shutdown paths.
func (s *Store) Cleanup() {
	s.cache.DeleteExpired()
}

// Len reports the number of live (unexpired) records.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}
