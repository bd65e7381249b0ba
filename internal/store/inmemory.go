package store

import (
	"context"
	"sync"

	"github.com/AgendaBarber/AgendaFlow/internal/models"
)

// InMemoryStore is a mutex-guarded in-memory Store used for tests and for
// running without a database DSN.
type InMemoryStore struct {
	mu            sync.RWMutex
	customers     map[string]models.Customer     // keyed by CPF
	subscriptions map[string]models.Subscription // keyed by CPF
	appointments  []models.Appointment
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		customers:     make(map[string]models.Customer),
		subscriptions: make(map[string]models.Subscription),
	}
}

// AddCustomer seeds a customer row (test helper and bootstrap path).
func (s *InMemoryStore) AddCustomer(c models.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.CPF] = c
}

// AddSubscription seeds a subscription row for a CPF.
func (s *InMemoryStore) AddSubscription(cpf string, sub models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[cpf] = sub
}

func (s *InMemoryStore) GetCustomerByCPF(ctx context.Context, cpf string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[cpf]
	if !ok {
		return nil, nil
	}
	out := c
	return &out, nil
}

func (s *InMemoryStore) GetActiveSubscriptionByCPF(ctx context.Context, cpf string) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[cpf]
	if !ok {
		return nil, nil
	}
	out := sub
	return &out, nil
}

func (s *InMemoryStore) SaveAppointment(ctx context.Context, appt models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = append(s.appointments, appt)
	return nil
}

func (s *InMemoryStore) ListAppointments(ctx context.Context, from, to string) ([]models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Appointment
	for _, a := range s.appointments {
		if from != "" && a.Date < from {
			continue
		}
		if to != "" && a.Date > to {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *InMemoryStore) CountAppointments(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.appointments), nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
