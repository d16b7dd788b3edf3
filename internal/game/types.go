// internal/game/types.go
//
// Core types for the confidential guessing game.
// Defines:
//   - Meta: the single game instance row (admin, active flag, secret handle).
//   - PlayerRecord: per-player statistics, created lazily.
//   - PendingRequest: one issued decryption request and its processed flag.
//   - Event: notifications emitted after each committed mutation.

package game

import (
	"time"

	"github.com/chandiniv1/secret-number-game/internal/fhe"
)

// RequestID is the opaque identifier handed out by the decryption channel.
type RequestID string

// Meta is the instance-wide state.
type Meta struct {
	Admin     string
	Active    bool
	Secret    fhe.Handle // zero until the first SetSecret
	Round     uint64     // incremented by every SetSecret
	UpdatedAt time.Time
}

// PlayerRecord holds one player's statistics. The zero value is what a
// player who never guessed reads as.
type PlayerRecord struct {
	Player           string
	TotalGuesses     uint64
	LastGuessCorrect bool
	HasWon           bool
	UpdatedAt        time.Time
}

// PendingRequest tracks one decryption request. It is never deleted.
type PendingRequest struct {
	ID         RequestID  `json:"requestId"`
	Player     string     `json:"player"`
	Round      uint64     `json:"round"`
	Handle     fhe.Handle `json:"handle"` // the encrypted comparison being decrypted
	Processed  bool       `json:"processed"`
	Correct    bool       `json:"correct"` // meaningful once Processed
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Stats is the caller-facing view of a PlayerRecord.
type Stats struct {
	LastGuessCorrect bool   `json:"lastGuessCorrect"`
	TotalGuesses     uint64 `json:"totalGuesses"`
	HasWon           bool   `json:"hasWon"`
}

// Status is the public game status.
type Status struct {
	Active bool   `json:"active"`
	Round  uint64 `json:"round"`
}

// EventKind names a notification.
type EventKind string

const (
	EventGameStarted    EventKind = "game_started"
	EventGuessSubmitted EventKind = "guess_submitted"
	EventGuessResolved  EventKind = "guess_resolved"
	EventGameReset      EventKind = "game_reset"
)

// Event is emitted after a mutation commits. Fields that do not apply to a
// kind are left zero.
type Event struct {
	Kind         EventKind `json:"kind"`
	Round        uint64    `json:"round"`
	Player       string    `json:"player,omitempty"`
	RequestID    RequestID `json:"requestId,omitempty"`
	TotalGuesses uint64    `json:"totalGuesses,omitempty"`
	Correct      bool      `json:"correct,omitempty"`
	At           time.Time `json:"at"`
}
