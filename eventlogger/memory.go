package eventlogger

import (
	"context"
	"sync"
)

// MemoryJournal keeps events in process. Used when no database is configured.
type MemoryJournal struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Save(_ context.Context, e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.events = append(j.events, e)
	return nil
}

func (j *MemoryJournal) List(_ context.Context, filter Filter) ([]Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	events := make([]Event, 0)
	for i := len(j.events) - 1; i >= 0 && len(events) < limit; i-- {
		if filter.matches(j.events[i]) {
			events = append(events, j.events[i])
		}
	}
	return events, nil
}
