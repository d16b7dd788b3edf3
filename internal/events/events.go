// internal/events/events.go
//
// Append-only log of game notifications.
// Responsibilities:
//   - Number committed game.Events with a monotonically increasing Seq.
//   - Page through them by Seq for GET /events.
//
// Two implementations: an in-memory log for STORE=memory and tests, and the
// SQL log in sql.go.

package events

import (
	"context"
	"sync"

	"github.com/chandiniv1/secret-number-game/internal/game"
)

// DefaultLimit caps List when limit <= 0.
const DefaultLimit = 100

// MaxLimit is the largest page List returns.
const MaxLimit = 1000

// Event is a game.Event with its position in the log.
type Event struct {
	Seq int64 `json:"seq"`
	game.Event
}

// Log stores events in commit order.
type Log interface {
	// Append assigns the next Seq and stores e.
	Append(ctx context.Context, e game.Event) (Event, error)
	// List returns up to limit events with Seq > since, oldest first.
	List(ctx context.Context, since int64, limit int) ([]Event, error)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

type memoryLog struct {
	mu  sync.Mutex
	all []Event
}

// NewMemoryLog returns an empty in-process log.
func NewMemoryLog() Log { return &memoryLog{} }

func (l *memoryLog) Append(ctx context.Context, e game.Event) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev := Event{Seq: int64(len(l.all)) + 1, Event: e}
	l.all = append(l.all, ev)
	return ev, nil
}

func (l *memoryLog) List(ctx context.Context, since int64, limit int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	limit = clampLimit(limit)
	if since < 0 {
		since = 0
	}
	out := []Event{}
	// Seq n lives at index n-1.
	for i := int(min(since, int64(len(l.all)))); i < len(l.all) && len(out) < limit; i++ {
		out = append(out, l.all[i])
	}
	return out, nil
}
