package audit

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory append-only repository.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRepo) List(_ context.Context, f Filter) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, 0)
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.ActorID != "" && e.ActorID != f.ActorID {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
