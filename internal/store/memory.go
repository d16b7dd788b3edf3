// internal/store/memory.go
//
// In-memory implementation of the game.Store interface.
// Used for tests and for STORE=memory, when durability is not required.
//
// Characteristics:
//   - Meta, players and requests live in maps guarded by an RWMutex.
//   - Update stages writes in an overlay and copies them into the maps only
//     when fn returns nil, so a failed mutation leaves no trace.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/chandiniv1/secret-number-game/internal/game"
)

// memory is an in-memory map-based game.Store.
type memory struct {
	mu       sync.RWMutex
	meta     *game.Meta
	players  map[string]game.PlayerRecord
	requests map[game.RequestID]game.PendingRequest
	seq      map[game.RequestID]uint64 // insertion order, for newest-first listing
	next     uint64
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() game.Store {
	return &memory{
		players:  make(map[string]game.PlayerRecord),
		requests: make(map[game.RequestID]game.PendingRequest),
		seq:      make(map[game.RequestID]uint64),
	}
}

func (m *memory) View(ctx context.Context, fn func(game.Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{base: m})
}

func (m *memory) Update(ctx context.Context, fn func(game.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{
		base:     m,
		players:  make(map[string]game.PlayerRecord),
		requests: make(map[game.RequestID]game.PendingRequest),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.meta != nil {
		meta := *tx.meta
		m.meta = &meta
	}
	for k, v := range tx.players {
		m.players[k] = v
	}
	for _, id := range tx.order {
		if _, ok := m.seq[id]; !ok {
			m.next++
			m.seq[id] = m.next
		}
		m.requests[id] = tx.requests[id]
	}
	return nil
}

func (m *memory) Close() error { return nil }

// memTx reads through its overlay to the base maps. A View tx has nil
// overlay maps and must not write.
type memTx struct {
	base     *memory
	meta     *game.Meta
	players  map[string]game.PlayerRecord
	requests map[game.RequestID]game.PendingRequest
	order    []game.RequestID
}

func (t *memTx) Meta() (game.Meta, bool, error) {
	if t.meta != nil {
		return *t.meta, true, nil
	}
	if t.base.meta != nil {
		return *t.base.meta, true, nil
	}
	return game.Meta{}, false, nil
}

func (t *memTx) PutMeta(m game.Meta) error {
	if t.players == nil {
		return errReadOnly
	}
	t.meta = &m
	return nil
}

func (t *memTx) Player(player string) (game.PlayerRecord, error) {
	if r, ok := t.players[player]; ok {
		return r, nil
	}
	if r, ok := t.base.players[player]; ok {
		return r, nil
	}
	return game.PlayerRecord{Player: player}, nil
}

func (t *memTx) PutPlayer(r game.PlayerRecord) error {
	if t.players == nil {
		return errReadOnly
	}
	t.players[r.Player] = r
	return nil
}

func (t *memTx) Request(id game.RequestID) (game.PendingRequest, bool, error) {
	if r, ok := t.requests[id]; ok {
		return r, true, nil
	}
	r, ok := t.base.requests[id]
	return r, ok, nil
}

func (t *memTx) PutRequest(r game.PendingRequest) error {
	if t.requests == nil {
		return errReadOnly
	}
	if _, ok := t.requests[r.ID]; !ok {
		t.order = append(t.order, r.ID)
	}
	t.requests[r.ID] = r
	return nil
}

func (t *memTx) RequestsByPlayer(player string, limit int) ([]game.PendingRequest, error) {
	return t.requestsWhere(func(r game.PendingRequest) bool { return r.Player == player }, true, limit), nil
}

func (t *memTx) UnprocessedRequests() ([]game.PendingRequest, error) {
	return t.requestsWhere(func(r game.PendingRequest) bool { return !r.Processed }, false, 0), nil
}

// requestsWhere lists matching requests in insertion order, or newest first
// with desc. Overlay inserts sort after every committed request.
func (t *memTx) requestsWhere(match func(game.PendingRequest) bool, desc bool, limit int) []game.PendingRequest {
	type entry struct {
		req game.PendingRequest
		seq uint64
	}
	var all []entry
	seen := make(map[game.RequestID]bool)
	pending := t.base.next
	for _, id := range t.order {
		r := t.requests[id]
		seen[id] = true
		s, ok := t.base.seq[id]
		if !ok {
			pending++
			s = pending
		}
		if match(r) {
			all = append(all, entry{r, s})
		}
	}
	for id, r := range t.base.requests {
		if seen[id] || !match(r) {
			continue
		}
		all = append(all, entry{r, t.base.seq[id]})
	}
	sort.Slice(all, func(i, j int) bool {
		if desc {
			return all[i].seq > all[j].seq
		}
		return all[i].seq < all[j].seq
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]game.PendingRequest, len(all))
	for i, e := range all {
		out[i] = e.req
	}
	return out
}
