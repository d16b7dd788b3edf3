package game_test

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chandiniv1/secret-number-game/internal/fhe"
	"github.com/chandiniv1/secret-number-game/internal/game"
	"github.com/chandiniv1/secret-number-game/internal/store"
)

const (
	admin   = "admin"
	goodSig = "ok"
)

var errRejected = fmt.Errorf("%w: bad attestation", fhe.ErrInvalidProof)

// ledger plays Gateway, Comparator and DecryptionChannel. "Ciphertexts" are
// a single plaintext byte; the game never looks inside them.
type ledger struct {
	mu       sync.Mutex
	values   map[fhe.Handle]uint8
	eqs      map[fhe.Handle]bool
	allowed  map[fhe.Handle]map[string]bool
	requests map[game.RequestID]fhe.Handle
	n        int
	failNext bool
	failWrap error
}

func newLedger() *ledger {
	return &ledger{
		values:   make(map[fhe.Handle]uint8),
		eqs:      make(map[fhe.Handle]bool),
		allowed:  make(map[fhe.Handle]map[string]bool),
		requests: make(map[game.RequestID]fhe.Handle),
	}
}

func (l *ledger) Wrap(ctx context.Context, ct []byte, proof, caller string) (fhe.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failWrap; err != nil {
		l.failWrap = nil
		return fhe.Handle{}, err
	}
	if proof != goodSig || len(ct) != 1 {
		return fhe.Handle{}, errRejected
	}
	// Bind the handle to the caller so two players' identical inputs differ.
	h := fhe.InputHandle(fhe.KindUint8, append([]byte(caller+":"+fmt.Sprint(l.n)+":"), ct...))
	l.n++
	l.values[h] = ct[0]
	return h, nil
}

func (l *ledger) Allow(ctx context.Context, h fhe.Handle, grantee string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, isValue := l.values[h]
	_, isEq := l.eqs[h]
	if !isValue && !isEq {
		return fhe.ErrUnknownHandle
	}
	if l.allowed[h] == nil {
		l.allowed[h] = make(map[string]bool)
	}
	l.allowed[h][grantee] = true
	return nil
}

func (l *ledger) Eq(ctx context.Context, a, b fhe.Handle, caller string) (fhe.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.allowed[a][caller] || !l.allowed[b][caller] {
		return fhe.Handle{}, fhe.ErrNotAllowed
	}
	out := fhe.ComputedHandle(fhe.KindBool, "eq", a, b)
	l.eqs[out] = l.values[a] == l.values[b]
	return out, nil
}

func (l *ledger) RequestDecryption(ctx context.Context, hs []fhe.Handle, callback string) (game.RequestID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext {
		l.failNext = false
		return "", errors.New("channel down")
	}
	if len(hs) != 1 || callback != game.CallbackGuessResult {
		return "", errors.New("unexpected request")
	}
	if !l.allowed[hs[0]][fhe.DecryptionAuthority] {
		return "", fhe.ErrNotAllowed
	}
	id := game.RequestID(fmt.Sprintf("r%d", len(l.requests)+1))
	l.requests[id] = hs[0]
	return id, nil
}

func (l *ledger) VerifyDecryptionProof(id game.RequestID, cleartext []byte, proof string) bool {
	return proof == sign(id, cleartext)
}

func sign(id game.RequestID, cleartext []byte) string {
	return "sig:" + string(id) + ":" + hex.EncodeToString(cleartext)
}

// result is what an honest authority would deliver for id.
func (l *ledger) result(t *testing.T, id game.RequestID) ([]byte, string) {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.requests[id]
	require.True(t, ok, "unknown request %s", id)
	plain := game.EncodeBool(l.eqs[h])
	return plain, sign(id, plain)
}

// forged is a validly signed result with the given value.
func forged(id game.RequestID, v bool) ([]byte, string) {
	plain := game.EncodeBool(v)
	return plain, sign(id, plain)
}

type events struct {
	mu  sync.Mutex
	got []game.Event
}

func (e *events) Emit(ctx context.Context, ev game.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, ev)
}

func (e *events) kinds() []game.EventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]game.EventKind, len(e.got))
	for i, ev := range e.got {
		out[i] = ev.Kind
	}
	return out
}

type env struct {
	m   *game.Machine
	l   *ledger
	st  game.Store
	evs *events
}

func newEnv(t *testing.T) env {
	t.Helper()
	l := newLedger()
	st := store.NewMemoryStore()
	evs := &events{}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m, err := game.New(context.Background(), admin, st, l, l, l,
		game.WithEventSink(evs),
		game.WithClock(func() time.Time { return clock }),
	)
	require.NoError(t, err)
	return env{m: m, l: l, st: st, evs: evs}
}

func (e env) setSecret(t *testing.T, v uint8) {
	t.Helper()
	require.NoError(t, e.m.SetSecret(context.Background(), admin, []byte{v}, goodSig))
}

func (e env) guess(t *testing.T, player string, v uint8) game.RequestID {
	t.Helper()
	id, err := e.m.MakeGuess(context.Background(), player, []byte{v}, goodSig)
	require.NoError(t, err)
	return id
}

func (e env) resolve(t *testing.T, id game.RequestID) error {
	t.Helper()
	plain, sig := e.l.result(t, id)
	return e.m.CallbackGuessResult(context.Background(), id, plain, sig)
}

func (e env) stats(t *testing.T, player string) game.Stats {
	t.Helper()
	s, err := e.m.MyStats(context.Background(), player)
	require.NoError(t, err)
	return s
}

func (e env) active(t *testing.T) bool {
	t.Helper()
	a, err := e.m.Active(context.Background())
	require.NoError(t, err)
	return a
}
