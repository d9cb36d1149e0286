package store

import (
	"context"
	"sync"

	"lms/internal/application/models"
	id "lms/pkg/domain"
	"lms/pkg/platform/sentinel"
)

// InMemory keeps aggregates in a map. Callers only ever see clones.
type InMemory struct {
	mu   sync.RWMutex
	apps map[id.ApplicationID]*models.LoanApplication
}

func NewInMemory() *InMemory {
	return &InMemory{apps: make(map[id.ApplicationID]*models.LoanApplication)}
}

func (s *InMemory) Create(_ context.Context, app *models.LoanApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[app.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	stored := app.Clone()
	stored.Version = 1
	app.Version = 1
	s.apps[app.ID] = stored
	return nil
}

func (s *InMemory) FindByID(_ context.Context, appID id.ApplicationID) (*models.LoanApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

// Update holds the write lock across fn so no other write interleaves.
func (s *InMemory) Update(ctx context.Context, appID id.ApplicationID, fn Mutator) (*models.LoanApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.Version = current.Version + 1
	s.apps[appID] = working
	return working.Clone(), nil
}
