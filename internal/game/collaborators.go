// internal/game/collaborators.go
//
// Interfaces the Machine depends on. Implementations live elsewhere:
//   - Gateway, Comparator: fhe.Coprocessor
//   - DecryptionChannel: oracle.Service
//   - Store: internal/store (memory and SQLite)
//   - EventSink: internal/events

package game

import (
	"context"

	"github.com/chandiniv1/secret-number-game/internal/fhe"
)

// Gateway admits external ciphertexts and manages their grants.
type Gateway interface {
	// Wrap verifies proof for ct submitted by caller and returns its handle.
	Wrap(ctx context.Context, ct []byte, proof, caller string) (fhe.Handle, error)
	// Allow lets grantee operate on h.
	Allow(ctx context.Context, h fhe.Handle, grantee string) error
}

// Comparator computes encrypted equality without decrypting.
type Comparator interface {
	Eq(ctx context.Context, a, b fhe.Handle, caller string) (fhe.Handle, error)
}

// DecryptionChannel is the asynchronous request/callback decryption service.
type DecryptionChannel interface {
	// RequestDecryption returns a fresh id synchronously. The result is
	// delivered later to the named callback.
	RequestDecryption(ctx context.Context, handles []fhe.Handle, callback string) (RequestID, error)
	// VerifyDecryptionProof must pass before a delivered cleartext is trusted.
	VerifyDecryptionProof(id RequestID, cleartext []byte, proof string) bool
}

// Tx is a view of the persisted state inside one Store transaction.
type Tx interface {
	// Meta reports ok=false if the instance was never created.
	Meta() (m Meta, ok bool, err error)
	PutMeta(m Meta) error
	// Player returns a zero record (with Player set) for unknown players.
	Player(player string) (PlayerRecord, error)
	PutPlayer(r PlayerRecord) error
	// Request reports ok=false for unknown ids.
	Request(id RequestID) (r PendingRequest, ok bool, err error)
	PutRequest(r PendingRequest) error
	// RequestsByPlayer returns the newest requests first. limit <= 0 means all.
	RequestsByPlayer(player string, limit int) ([]PendingRequest, error)
	// UnprocessedRequests returns every unresolved request, oldest first.
	UnprocessedRequests() ([]PendingRequest, error)
}

// Store persists the game. Update commits every write of fn or none of them.
type Store interface {
	View(ctx context.Context, fn func(Tx) error) error
	Update(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// EventSink receives notifications after they are committed.
type EventSink interface {
	Emit(ctx context.Context, e Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, e Event)

func (f EventSinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }
