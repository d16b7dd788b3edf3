package fhe

import (
	"context"
	"sync"
)

// Record is a registered ciphertext.
type Record struct {
	Kind       Kind
	Ciphertext []byte
}

// Store persists ciphertexts and their ACL.
// Implementations may be backed by memory (this package) or SQL (internal/store).
type Store interface {
	// Put registers rec under h. Re-registering an existing handle is a no-op.
	Put(ctx context.Context, h Handle, rec Record) error
	// Get returns ErrUnknownHandle if h was never registered.
	Get(ctx context.Context, h Handle) (Record, error)
	// Grant lets grantee use h. Granting twice is a no-op.
	Grant(ctx context.Context, h Handle, grantee string) error
	// Allowed reports whether grantee may use h.
	Allowed(ctx context.Context, h Handle, grantee string) (bool, error)
}

type memStore struct {
	mu   sync.RWMutex
	recs map[Handle]Record
	acl  map[Handle]map[string]struct{}
}

// NewMemoryStore returns a Store that lives as long as the process.
func NewMemoryStore() Store {
	return &memStore{
		recs: make(map[Handle]Record),
		acl:  make(map[Handle]map[string]struct{}),
	}
}

func (m *memStore) Put(ctx context.Context, h Handle, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[h]; !ok {
		m.recs[h] = Record{Kind: rec.Kind, Ciphertext: append([]byte(nil), rec.Ciphertext...)}
	}
	return nil
}

func (m *memStore) Get(ctx context.Context, h Handle) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[h]
	if !ok {
		return Record{}, ErrUnknownHandle
	}
	return rec, nil
}

func (m *memStore) Grant(ctx context.Context, h Handle, grantee string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[h]; !ok {
		return ErrUnknownHandle
	}
	set, ok := m.acl[h]
	if !ok {
		set = make(map[string]struct{})
		m.acl[h] = set
	}
	set[grantee] = struct{}{}
	return nil
}

func (m *memStore) Allowed(ctx context.Context, h Handle, grantee string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.acl[h][grantee]
	return ok, nil
}
