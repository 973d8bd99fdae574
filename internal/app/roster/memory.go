package roster

import (
	"context"
	"sync"
)

// MemoryRepository keeps subscriptions in memory. Used in tests and when
// the bridge runs without a database; state is lost on restart.
type MemoryRepository struct {
	mu   sync.Mutex
	subs map[string]Subscription
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subs: map[string]Subscription{}}
}

func (r *MemoryRepository) EnsureSchema(context.Context) error {
	return nil
}

func (r *MemoryRepository) Upsert(_ context.Context, sub Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.PersonID] = sub
	return nil
}

func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		if sub.Email == email {
			return sub, nil
		}
	}
	return Subscription{}, ErrNotFound
}

func (r *MemoryRepository) FindByPersonID(_ context.Context, personID string) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[personID]
	if !ok {
		return Subscription{}, ErrNotFound
	}
	return sub, nil
}

func (r *MemoryRepository) SetEnabled(_ context.Context, personID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[personID]
	if !ok {
		return ErrNotFound
	}
	sub.Enabled = enabled
	r.subs[personID] = sub
	return nil
}
