package notify

import (
	"context"
	"sync"
)

// History keeps the most recent customer-facing events per customer and
// forwards every event to the wrapped Notifier. Events are recorded before
// forwarding, so a broker failure does not hide an outcome from the customer.
type History struct {
	next Notifier
	keep int

	mu         sync.RWMutex
	byCustomer map[string][]Event
}

func NewHistory(next Notifier, perCustomer int) *History {
	if perCustomer <= 0 {
		perCustomer = 50
	}
	return &History{next: next, keep: perCustomer, byCustomer: map[string][]Event{}}
}

func (h *History) Notify(ctx context.Context, e Event) error {
	if e.CustomerID != "" && e.Type != EventTaskOverdue {
		h.mu.Lock()
		list := append(h.byCustomer[e.CustomerID], e)
		if len(list) > h.keep {
			list = append([]Event(nil), list[len(list)-h.keep:]...)
		}
		h.byCustomer[e.CustomerID] = list
		h.mu.Unlock()
	}
	if h.next == nil {
		return nil
	}
	return h.next.Notify(ctx, e)
}

// ForCustomer returns up to limit events for the customer, newest first.
// A limit of zero or less returns everything retained.
func (h *History) ForCustomer(customerID string, limit int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.byCustomer[customerID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]Event, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out
}
