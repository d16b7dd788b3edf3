// internal/game/machine.go
//
// The encrypted-comparison request/callback state machine.
// Responsibilities:
//   - Admission: only the admin sets the secret or resets the game.
//   - Guess submission: wrap, compare under encryption, request decryption,
//     record the pending request.
//   - Callback application: verify the decryption proof and apply the result
//     exactly once per request id.
//   - Queries over player stats and request state.
//
// Notes:
//   - Mutations are serialized by mu and committed through Store.Update, so a
//     failing precondition leaves no partial write.
//   - Callbacks may resolve out of submission order. LastGuessCorrect follows
//     resolution order; TotalGuesses follows submission order.
//   - Reset only flips Active. Player records and requests survive it.

package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chandiniv1/secret-number-game/internal/fhe"
)

// CallbackGuessResult is the callback name registered with the channel.
const CallbackGuessResult = "CallbackGuessResult"

// DefaultSelf is the identity under which the machine holds grants.
const DefaultSelf = "game"

// Machine is one game instance.
type Machine struct {
	mu sync.Mutex

	admin string
	self  string
	store Store
	gw    Gateway
	cmp   Comparator
	ch    DecryptionChannel
	sink  EventSink
	now   func() time.Time
	log   zerolog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithEventSink sets where notifications go. The default drops them.
func WithEventSink(s EventSink) Option { return func(m *Machine) { m.sink = s } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }

// WithSelf sets the grantee identity used for comparator grants.
func WithSelf(self string) Option { return func(m *Machine) { m.self = self } }

// WithLogger overrides the global zerolog logger.
func WithLogger(l zerolog.Logger) Option { return func(m *Machine) { m.log = l } }

// New opens the instance held by st. A fresh store is claimed for admin; an
// existing one must have been created for the same admin.
func New(ctx context.Context, admin string, st Store, gw Gateway, cmp Comparator, ch DecryptionChannel, opts ...Option) (*Machine, error) {
	if admin == "" {
		return nil, errors.New("game: empty admin")
	}
	m := &Machine{
		admin: admin,
		self:  DefaultSelf,
		store: st,
		gw:    gw,
		cmp:   cmp,
		ch:    ch,
		sink:  EventSinkFunc(func(context.Context, Event) {}),
		now:   time.Now,
		log:   log.Logger,
	}
	for _, o := range opts {
		o(m)
	}
	err := st.Update(ctx, func(tx Tx) error {
		meta, ok, err := tx.Meta()
		if err != nil {
			return err
		}
		if !ok {
			return tx.PutMeta(Meta{Admin: admin, UpdatedAt: m.now()})
		}
		if meta.Admin != admin {
			return fmt.Errorf("%w: store belongs to %q", ErrAdminMismatch, meta.Admin)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Admin returns the fixed admin identity.
func (m *Machine) Admin() string { return m.admin }

// SetSecret replaces the secret with a freshly wrapped ciphertext and
// activates the game.
func (m *Machine) SetSecret(ctx context.Context, caller string, ct []byte, proof string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.admin {
		m.log.Debug().Str("caller", caller).Msg("set secret rejected: not admin")
		return ErrUnauthorized
	}
	h, err := m.gw.Wrap(ctx, ct, proof, caller)
	if err != nil {
		if errors.Is(err, fhe.ErrInvalidProof) {
			m.log.Debug().Err(err).Msg("set secret rejected: wrap")
			return fmt.Errorf("%w: %v", ErrInvalidProof, err)
		}
		return fmt.Errorf("wrap secret: %w", err)
	}
	if err := m.gw.Allow(ctx, h, m.self); err != nil {
		return fmt.Errorf("allow secret: %w", err)
	}

	var ev Event
	err = m.store.Update(ctx, func(tx Tx) error {
		meta, _, err := tx.Meta()
		if err != nil {
			return err
		}
		meta.Secret = h
		meta.Active = true
		meta.Round++
		meta.UpdatedAt = m.now()
		ev = Event{Kind: EventGameStarted, Round: meta.Round, At: meta.UpdatedAt}
		return tx.PutMeta(meta)
	})
	if err != nil {
		return fmt.Errorf("set secret: %w", err)
	}
	m.emit(ctx, ev)
	return nil
}

// MakeGuess submits an encrypted guess and returns the id of the decryption
// request that will carry its result.
func (m *Machine) MakeGuess(ctx context.Context, caller string, ct []byte, proof string) (RequestID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		meta Meta
		rec  PlayerRecord
	)
	err := m.store.View(ctx, func(tx Tx) error {
		var err error
		if meta, _, err = tx.Meta(); err != nil {
			return err
		}
		rec, err = tx.Player(caller)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("make guess: %w", err)
	}
	if !meta.Active {
		return "", ErrGameNotActive
	}
	if rec.HasWon {
		m.log.Debug().Str("player", caller).Msg("guess rejected: already won")
		return "", ErrAlreadyWon
	}

	guess, err := m.gw.Wrap(ctx, ct, proof, caller)
	if err != nil {
		if errors.Is(err, fhe.ErrInvalidProof) {
			m.log.Debug().Err(err).Str("player", caller).Msg("guess rejected: wrap")
			return "", fmt.Errorf("%w: %v", ErrInvalidProof, err)
		}
		return "", fmt.Errorf("wrap guess: %w", err)
	}
	if err := m.gw.Allow(ctx, guess, m.self); err != nil {
		return "", fmt.Errorf("allow guess: %w", err)
	}
	eq, err := m.cmp.Eq(ctx, guess, meta.Secret, m.self)
	if err != nil {
		return "", fmt.Errorf("compare: %w", err)
	}
	if err := m.gw.Allow(ctx, eq, fhe.DecryptionAuthority); err != nil {
		return "", fmt.Errorf("allow decryption: %w", err)
	}

	id, err := m.ch.RequestDecryption(ctx, []fhe.Handle{eq}, CallbackGuessResult)
	if err != nil {
		return "", fmt.Errorf("request decryption: %w", err)
	}

	// A delivery racing this commit blocks on mu until the request is recorded.
	var ev Event
	err = m.store.Update(ctx, func(tx Tx) error {
		rec, err := tx.Player(caller)
		if err != nil {
			return err
		}
		now := m.now()
		rec.TotalGuesses++
		rec.UpdatedAt = now
		if err := tx.PutPlayer(rec); err != nil {
			return err
		}
		if err := tx.PutRequest(PendingRequest{ID: id, Player: caller, Round: meta.Round, Handle: eq, CreatedAt: now}); err != nil {
			return err
		}
		ev = Event{
			Kind:         EventGuessSubmitted,
			Round:        meta.Round,
			Player:       caller,
			RequestID:    id,
			TotalGuesses: rec.TotalGuesses,
			At:           now,
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("make guess: %w", err)
	}
	m.emit(ctx, ev)
	return id, nil
}

// CallbackGuessResult applies a delivered decryption result. Anyone may call
// it; the proof is what is trusted. A request is applied at most once.
func (m *Machine) CallbackGuessResult(ctx context.Context, id RequestID, cleartext []byte, proof string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ev Event
	err := m.store.Update(ctx, func(tx Tx) error {
		req, _, err := tx.Request(id)
		if err != nil {
			return err
		}
		if req.Processed {
			return ErrAlreadyProcessed
		}
		if req.Player == "" {
			return ErrInvalidRequest
		}
		if !m.ch.VerifyDecryptionProof(id, cleartext, proof) {
			return ErrUnauthorizedDecryption
		}
		correct, err := DecodeBool(cleartext)
		if err != nil {
			return err
		}

		rec, err := tx.Player(req.Player)
		if err != nil {
			return err
		}
		now := m.now()
		rec.LastGuessCorrect = correct
		if correct {
			rec.HasWon = true
		}
		rec.UpdatedAt = now
		if err := tx.PutPlayer(rec); err != nil {
			return err
		}

		req.Processed = true
		req.Correct = correct
		req.ResolvedAt = &now
		if err := tx.PutRequest(req); err != nil {
			return err
		}
		ev = Event{
			Kind:         EventGuessResolved,
			Round:        req.Round,
			Player:       req.Player,
			RequestID:    id,
			TotalGuesses: rec.TotalGuesses,
			Correct:      correct,
			At:           now,
		}
		return nil
	})
	if err != nil {
		m.log.Debug().Err(err).Str("requestId", string(id)).Msg("callback rejected")
		return err
	}
	m.emit(ctx, ev)
	return nil
}

// ResetGame deactivates the game. Nothing else is cleared.
func (m *Machine) ResetGame(ctx context.Context, caller string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if caller != m.admin {
		m.log.Debug().Str("caller", caller).Msg("reset rejected: not admin")
		return ErrUnauthorized
	}
	var ev Event
	err := m.store.Update(ctx, func(tx Tx) error {
		meta, _, err := tx.Meta()
		if err != nil {
			return err
		}
		meta.Active = false
		meta.UpdatedAt = m.now()
		ev = Event{Kind: EventGameReset, Round: meta.Round, At: meta.UpdatedAt}
		return tx.PutMeta(meta)
	})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	m.emit(ctx, ev)
	return nil
}

// MyStats returns caller's statistics, zero if caller never guessed.
func (m *Machine) MyStats(ctx context.Context, caller string) (Stats, error) {
	var rec PlayerRecord
	err := m.store.View(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.Player(caller)
		return err
	})
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		LastGuessCorrect: rec.LastGuessCorrect,
		TotalGuesses:     rec.TotalGuesses,
		HasWon:           rec.HasWon,
	}, nil
}

// Status returns the active flag and the current round.
func (m *Machine) Status(ctx context.Context) (Status, error) {
	var meta Meta
	err := m.store.View(ctx, func(tx Tx) error {
		var err error
		meta, _, err = tx.Meta()
		return err
	})
	if err != nil {
		return Status{}, err
	}
	return Status{Active: meta.Active, Round: meta.Round}, nil
}

// Active reports whether guesses are accepted.
func (m *Machine) Active(ctx context.Context) (bool, error) {
	st, err := m.Status(ctx)
	return st.Active, err
}

// Round returns how many times a secret has been set.
func (m *Machine) Round(ctx context.Context) (uint64, error) {
	st, err := m.Status(ctx)
	return st.Round, err
}

// Request returns the pending request for id.
func (m *Machine) Request(ctx context.Context, id RequestID) (PendingRequest, bool, error) {
	var (
		req PendingRequest
		ok  bool
	)
	err := m.store.View(ctx, func(tx Tx) error {
		var err error
		req, ok, err = tx.Request(id)
		return err
	})
	return req, ok, err
}

// IsRequestProcessed is false for unknown ids.
func (m *Machine) IsRequestProcessed(ctx context.Context, id RequestID) (bool, error) {
	req, _, err := m.Request(ctx, id)
	return req.Processed, err
}

// RequestPlayer is empty for unknown ids.
func (m *Machine) RequestPlayer(ctx context.Context, id RequestID) (string, error) {
	req, _, err := m.Request(ctx, id)
	return req.Player, err
}

// PlayerRequests lists player's requests, newest first.
func (m *Machine) PlayerRequests(ctx context.Context, player string, limit int) ([]PendingRequest, error) {
	var out []PendingRequest
	err := m.store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.RequestsByPlayer(player, limit)
		return err
	})
	return out, err
}

// Unresolved lists requests whose result has not been applied yet, oldest
// first. serve hands them back to the oracle after a restart.
func (m *Machine) Unresolved(ctx context.Context) ([]PendingRequest, error) {
	var out []PendingRequest
	err := m.store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.UnprocessedRequests()
		return err
	})
	return out, err
}

func (m *Machine) emit(ctx context.Context, e Event) {
	m.sink.Emit(ctx, e)
}
