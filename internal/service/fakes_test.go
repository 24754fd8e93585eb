package service

import (
	"context"
	"errors"
	"summit-webhook/internal/model"
	"summit-webhook/internal/repository"
	"sync"

	"github.com/google/uuid"
)

// memoryStore mimics a backend with a unique index on provider transaction id.
type memoryStore struct {
	mu           sync.Mutex
	accounts     map[string]*model.Account // by email
	transactions map[string]*model.AccountTransaction
	planUpdates  int

	findErr   error
	insertErr error
	updateErr error
	// block, when set, is waited on before lookups return
	block chan struct{}
}

func newMemoryStore(accounts ...*model.Account) *memoryStore {
	s := &memoryStore{
		accounts:     map[string]*model.Account{},
		transactions: map[string]*model.AccountTransaction{},
	}
	for _, a := range accounts {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		s.accounts[a.Email] = a
	}
	return s
}

func (s *memoryStore) FindAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findErr != nil {
		return nil, s.findErr
	}
	a, ok := s.accounts[email]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memoryStore) UpdateAccountPlan(ctx context.Context, accountID, plan string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return s.updateErr
	}
	for _, a := range s.accounts {
		if a.ID == accountID {
			a.Plan = plan
			s.planUpdates++
			return nil
		}
	}
	return repository.ErrAccountNotFound
}

func (s *memoryStore) InsertTransactionIfAbsent(ctx context.Context, txn *model.AccountTransaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return false, s.insertErr
	}
	if _, exists := s.transactions[txn.ProviderTransactionID]; exists {
		return false, nil
	}
	cp := *txn
	s.transactions[txn.ProviderTransactionID] = &cp
	return true, nil
}

func (s *memoryStore) RunInTx(ctx context.Context, fn func(store repository.AccountStore) error) error {
	return fn(s)
}

func (s *memoryStore) plan(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[email].Plan
}

func (s *memoryStore) transactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

func (s *memoryStore) updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planUpdates
}

type memoryEventRepo struct {
	mu        sync.Mutex
	events    map[string]*model.WebhookEvent
	createErr error
	// block, when set, is waited on before Create stores the event
	block chan struct{}
}

func newMemoryEventRepo() *memoryEventRepo {
	return &memoryEventRepo{events: map[string]*model.WebhookEvent{}}
}

func (r *memoryEventRepo) Create(ctx context.Context, event *model.WebhookEvent) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	cp := *event
	r.events[event.ID] = &cp
	return nil
}

func (r *memoryEventRepo) MarkProcessed(ctx context.Context, eventID, outcome, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[eventID]
	if !ok {
		return errors.New("not found")
	}
	e.Outcome = outcome
	e.ProcessingError = processingError
	return nil
}

func (r *memoryEventRepo) ListByTransactionID(ctx context.Context, providerTransactionID string) ([]*model.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.WebhookEvent
	for _, e := range r.events {
		if e.ProviderTransactionID == providerTransactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryEventRepo) all() []*model.WebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*model.WebhookEvent, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e)
	}
	return out
}

type recordingSink struct {
	mu       sync.Mutex
	failures []*model.FulfillmentFailure
	err      error
}

func (s *recordingSink) Escalate(ctx context.Context, failure *model.FulfillmentFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failures)
}
