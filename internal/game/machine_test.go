package game_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chandiniv1/secret-number-game/internal/game"
	"github.com/chandiniv1/secret-number-game/internal/store"
)

func TestScenarioSecret42(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// 1. Admin sets 42.
	e.setSecret(t, 42)
	assert.True(t, e.active(t))

	// 2. A guesses 50.
	r1 := e.guess(t, "A", 50)
	require.NoError(t, e.resolve(t, r1))
	assert.Equal(t, game.Stats{LastGuessCorrect: false, TotalGuesses: 1, HasWon: false}, e.stats(t, "A"))

	// 3. A guesses 42 and wins; further guesses are refused.
	r2 := e.guess(t, "A", 42)
	require.NoError(t, e.resolve(t, r2))
	assert.Equal(t, game.Stats{LastGuessCorrect: true, TotalGuesses: 2, HasWon: true}, e.stats(t, "A"))
	_, err := e.m.MakeGuess(ctx, "A", []byte{7}, goodSig)
	require.ErrorIs(t, err, game.ErrAlreadyWon)

	// 4. Redelivering r1, even with a different value, is refused.
	plain, sig := forged(r1, true)
	require.ErrorIs(t, e.m.CallbackGuessResult(ctx, r1, plain, sig), game.ErrAlreadyProcessed)
	assert.Equal(t, game.Stats{LastGuessCorrect: true, TotalGuesses: 2, HasWon: true}, e.stats(t, "A"))

	// 5. Reset.
	require.NoError(t, e.m.ResetGame(ctx, admin))
	assert.False(t, e.active(t))
	_, err = e.m.MakeGuess(ctx, "A", []byte{42}, goodSig)
	require.ErrorIs(t, err, game.ErrGameNotActive)
	assert.Equal(t, game.Stats{LastGuessCorrect: true, TotalGuesses: 2, HasWon: true}, e.stats(t, "A"))

	// 6. B never guessed.
	assert.Equal(t, game.Stats{}, e.stats(t, "B"))

	assert.Equal(t, []game.EventKind{
		game.EventGameStarted,
		game.EventGuessSubmitted, game.EventGuessResolved,
		game.EventGuessSubmitted, game.EventGuessResolved,
		game.EventGameReset,
	}, e.evs.kinds())
}

func TestAdmissionControl(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for _, who := range []string{"", "A", "Admin", "admin "} {
		require.ErrorIs(t, e.m.SetSecret(ctx, who, []byte{1}, goodSig), game.ErrUnauthorized)
		require.ErrorIs(t, e.m.ResetGame(ctx, who), game.ErrUnauthorized)
	}
	assert.False(t, e.active(t))

	e.setSecret(t, 10)
	require.ErrorIs(t, e.m.ResetGame(ctx, "A"), game.ErrUnauthorized)
	assert.True(t, e.active(t))
	assert.Equal(t, []game.EventKind{game.EventGameStarted}, e.evs.kinds())
}

func TestActivation(t *testing.T) {
	e := newEnv(t)
	assert.False(t, e.active(t))
	round, err := e.m.Round(context.Background())
	require.NoError(t, err)
	assert.Zero(t, round)

	e.setSecret(t, 5)
	assert.True(t, e.active(t))
	e.setSecret(t, 6)
	round, err = e.m.Round(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), round)
}

func TestSetSecretRejectsBadProof(t *testing.T) {
	e := newEnv(t)
	err := e.m.SetSecret(context.Background(), admin, []byte{5}, "forged")
	require.ErrorIs(t, err, game.ErrInvalidProof)
	assert.False(t, e.active(t))
	assert.Empty(t, e.evs.kinds())
}

func TestSetSecretReplacesSecret(t *testing.T) {
	e := newEnv(t)
	e.setSecret(t, 42)
	e.setSecret(t, 50)

	r := e.guess(t, "A", 42)
	require.NoError(t, e.resolve(t, r))
	assert.False(t, e.stats(t, "A").LastGuessCorrect)

	r = e.guess(t, "A", 50)
	require.NoError(t, e.resolve(t, r))
	assert.True(t, e.stats(t, "A").HasWon)
}

func TestGuessGating(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for _, p := range []string{"A", "B", admin} {
		_, err := e.m.MakeGuess(ctx, p, []byte{1}, goodSig)
		require.ErrorIs(t, err, game.ErrGameNotActive)
	}
	e.setSecret(t, 1)
	require.NoError(t, e.m.ResetGame(ctx, admin))
	_, err := e.m.MakeGuess(ctx, "A", []byte{1}, goodSig)
	require.ErrorIs(t, err, game.ErrGameNotActive)
	assert.Equal(t, game.Stats{}, e.stats(t, "A"))
}

func TestGuessRejectsBadProof(t *testing.T) {
	e := newEnv(t)
	e.setSecret(t, 42)

	_, err := e.m.MakeGuess(context.Background(), "A", []byte{42}, "forged")
	require.ErrorIs(t, err, game.ErrInvalidProof)
	assert.Equal(t, game.Stats{}, e.stats(t, "A"))
}

func TestWrapInfrastructureErrorIsNotInvalidProof(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	diskFull := errors.New("register: disk full")

	e.l.failWrap = diskFull
	err := e.m.SetSecret(ctx, admin, []byte{42}, goodSig)
	require.ErrorIs(t, err, diskFull)
	assert.NotErrorIs(t, err, game.ErrInvalidProof)
	assert.False(t, e.active(t))

	e.setSecret(t, 42)
	e.l.failWrap = diskFull
	_, err = e.m.MakeGuess(ctx, "A", []byte{42}, goodSig)
	require.ErrorIs(t, err, diskFull)
	assert.NotErrorIs(t, err, game.ErrInvalidProof)
	assert.Equal(t, game.Stats{}, e.stats(t, "A"))
}

func TestChannelFailureLeavesNoTrace(t *testing.T) {
	e := newEnv(t)
	e.setSecret(t, 42)
	e.l.failNext = true

	_, err := e.m.MakeGuess(context.Background(), "A", []byte{42}, goodSig)
	require.Error(t, err)
	assert.Equal(t, game.Stats{}, e.stats(t, "A"))

	r := e.guess(t, "A", 42)
	assert.Equal(t, uint64(1), e.stats(t, "A").TotalGuesses)
	require.NoError(t, e.resolve(t, r))
}

func TestWinLock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setSecret(t, 42)

	r := e.guess(t, "A", 42)
	require.NoError(t, e.resolve(t, r))
	before := e.stats(t, "A")
	require.True(t, before.HasWon)

	for i := 0; i < 3; i++ {
		_, err := e.m.MakeGuess(ctx, "A", []byte{uint8(i)}, goodSig)
		require.ErrorIs(t, err, game.ErrAlreadyWon)
	}
	// Even with a fresh round.
	e.setSecret(t, 7)
	_, err := e.m.MakeGuess(ctx, "A", []byte{7}, goodSig)
	require.ErrorIs(t, err, game.ErrAlreadyWon)
	assert.Equal(t, before, e.stats(t, "A"))
}

func TestCounterCountsSubmissions(t *testing.T) {
	e := newEnv(t)
	e.setSecret(t, 42)

	var ids []game.RequestID
	for i := 1; i <= 4; i++ {
		ids = append(ids, e.guess(t, "A", uint8(i)))
		assert.Equal(t, uint64(i), e.stats(t, "A").TotalGuesses)
	}
	for _, id := range ids {
		require.NoError(t, e.resolve(t, id))
	}
	assert.Equal(t, uint64(4), e.stats(t, "A").TotalGuesses)
}

func TestCallbackExactlyOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setSecret(t, 42)
	r := e.guess(t, "A", 41)

	processed, err := e.m.IsRequestProcessed(ctx, r)
	require.NoError(t, err)
	assert.False(t, processed)

	// A bad proof is rejected and changes nothing.
	plain, _ := forged(r, true)
	require.ErrorIs(t, e.m.CallbackGuessResult(ctx, r, plain, "bogus"), game.ErrUnauthorizedDecryption)
	// A proof for another id does not transfer.
	_, otherSig := forged("r99", true)
	require.ErrorIs(t, e.m.CallbackGuessResult(ctx, r, plain, otherSig), game.ErrUnauthorizedDecryption)
	processed, err = e.m.IsRequestProcessed(ctx, r)
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Equal(t, game.Stats{TotalGuesses: 1}, e.stats(t, "A"))

	require.NoError(t, e.resolve(t, r))
	processed, err = e.m.IsRequestProcessed(ctx, r)
	require.NoError(t, err)
	assert.True(t, processed)

	for _, v := range []bool{true, false} {
		plain, sig := forged(r, v)
		require.ErrorIs(t, e.m.CallbackGuessResult(ctx, r, plain, sig), game.ErrAlreadyProcessed)
	}
	assert.Equal(t, game.Stats{TotalGuesses: 1}, e.stats(t, "A"))

	req, ok, err := e.m.Request(ctx, r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, req.Correct)
	assert.NotNil(t, req.ResolvedAt)
}

func TestCallbackUnknownRequest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	plain, sig := forged("nope", true)
	require.ErrorIs(t, e.m.CallbackGuessResult(ctx, "nope", plain, sig), game.ErrInvalidRequest)

	player, err := e.m.RequestPlayer(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, player)
	processed, err := e.m.IsRequestProcessed(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestCallbackMalformedResult(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setSecret(t, 42)
	r := e.guess(t, "A", 42)

	for _, plain := range [][]byte{{1}, make([]byte, 64), append(make([]byte, 31), 2)} {
		err := e.m.CallbackGuessResult(ctx, r, plain, sign(r, plain))
		require.ErrorIs(t, err, game.ErrMalformedResult)
	}
	processed, err := e.m.IsRequestProcessed(ctx, r)
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, e.resolve(t, r))
	assert.True(t, e.stats(t, "A").HasWon)
}

func TestOutOfOrderResolution(t *testing.T) {
	e := newEnv(t)
	e.setSecret(t, 42)

	r1 := e.guess(t, "A", 42)
	r2 := e.guess(t, "A", 10)

	// r2 resolves first: wrong.
	require.NoError(t, e.resolve(t, r2))
	assert.Equal(t, game.Stats{LastGuessCorrect: false, TotalGuesses: 2}, e.stats(t, "A"))

	// r1 resolves last: correct, and that is what the player sees.
	require.NoError(t, e.resolve(t, r1))
	assert.Equal(t, game.Stats{LastGuessCorrect: true, TotalGuesses: 2, HasWon: true}, e.stats(t, "A"))
}

func TestOutOfOrderLastResolutionWins(t *testing.T) {
	e := newEnv(t)
	e.setSecret(t, 42)

	r1 := e.guess(t, "A", 10)
	r2 := e.guess(t, "A", 42)
	require.NoError(t, e.resolve(t, r2))
	require.NoError(t, e.resolve(t, r1))

	// The stale wrong guess overwrites LastGuessCorrect; HasWon stays.
	assert.Equal(t, game.Stats{LastGuessCorrect: false, TotalGuesses: 2, HasWon: true}, e.stats(t, "A"))
}

func TestResetPreservesHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setSecret(t, 42)

	ra := e.guess(t, "A", 42)
	rb := e.guess(t, "B", 3)
	require.NoError(t, e.resolve(t, ra))

	beforeA, beforeB := e.stats(t, "A"), e.stats(t, "B")
	reqA, _, err := e.m.Request(ctx, ra)
	require.NoError(t, err)
	reqB, _, err := e.m.Request(ctx, rb)
	require.NoError(t, err)

	require.NoError(t, e.m.ResetGame(ctx, admin))

	assert.Equal(t, beforeA, e.stats(t, "A"))
	assert.Equal(t, beforeB, e.stats(t, "B"))
	afterA, _, err := e.m.Request(ctx, ra)
	require.NoError(t, err)
	afterB, _, err := e.m.Request(ctx, rb)
	require.NoError(t, err)
	assert.Equal(t, reqA, afterA)
	assert.Equal(t, reqB, afterB)

	// A pending request from before the reset still resolves.
	require.NoError(t, e.resolve(t, rb))
	assert.Equal(t, uint64(1), e.stats(t, "B").TotalGuesses)
}

func TestRequestQueries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setSecret(t, 42)
	r1 := e.guess(t, "A", 1)
	r2 := e.guess(t, "A", 2)
	e.guess(t, "B", 3)

	player, err := e.m.RequestPlayer(ctx, r1)
	require.NoError(t, err)
	assert.Equal(t, "A", player)

	reqs, err := e.m.PlayerRequests(ctx, "A", 0)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, r2, reqs[0].ID)
	assert.Equal(t, uint64(1), reqs[0].Round)
}

func TestEventsCarryDetails(t *testing.T) {
	e := newEnv(t)
	e.setSecret(t, 42)
	r := e.guess(t, "A", 42)
	require.NoError(t, e.resolve(t, r))

	e.evs.mu.Lock()
	defer e.evs.mu.Unlock()
	require.Len(t, e.evs.got, 3)
	assert.Equal(t, game.Event{Kind: game.EventGameStarted, Round: 1, At: e.evs.got[0].At}, e.evs.got[0])
	assert.Equal(t, "A", e.evs.got[1].Player)
	assert.Equal(t, r, e.evs.got[1].RequestID)
	assert.Equal(t, uint64(1), e.evs.got[1].TotalGuesses)
	assert.True(t, e.evs.got[2].Correct)
	assert.Equal(t, uint64(1), e.evs.got[2].TotalGuesses)
}

func TestAdminIsFixedPerStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	l := newLedger()

	_, err := game.New(ctx, admin, st, l, l, l)
	require.NoError(t, err)
	m, err := game.New(ctx, admin, st, l, l, l)
	require.NoError(t, err)
	assert.Equal(t, admin, m.Admin())

	_, err = game.New(ctx, "mallory", st, l, l, l)
	require.ErrorIs(t, err, game.ErrAdminMismatch)

	_, err = game.New(ctx, "", st, l, l, l)
	require.Error(t, err)
}

func TestDecodeBool(t *testing.T) {
	v, err := game.DecodeBool(game.EncodeBool(true))
	require.NoError(t, err)
	assert.True(t, v)
	v, err = game.DecodeBool(game.EncodeBool(false))
	require.NoError(t, err)
	assert.False(t, v)

	dirty := game.EncodeBool(true)
	dirty[0] = 1
	_, err = game.DecodeBool(dirty)
	require.ErrorIs(t, err, game.ErrMalformedResult)
	_, err = game.DecodeBool(nil)
	require.ErrorIs(t, err, game.ErrMalformedResult)
}
