package fhe_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chandiniv1/secret-number-game/internal/fhe"
	"github.com/chandiniv1/secret-number-game/internal/fhe/mock"
	"github.com/chandiniv1/secret-number-game/internal/proof"
)

type fixture struct {
	scheme *mock.Scheme
	att    *proof.InputAttestor
	cp     *fhe.Coprocessor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	s, err := mock.NewRandom()
	require.NoError(t, err)
	key, err := proof.GenerateKey()
	require.NoError(t, err)
	att := proof.NewInputAttestor(key, "test")
	return fixture{scheme: s, att: att, cp: fhe.NewCoprocessor(s, att.Verifier(), fhe.NewMemoryStore())}
}

func (f fixture) input(t *testing.T, v uint8, caller string) ([]byte, string) {
	t.Helper()
	ct, err := f.scheme.EncryptUint8(v)
	require.NoError(t, err)
	tok, err := f.att.Attest(fhe.InputHandle(fhe.KindUint8, ct).String(), caller)
	require.NoError(t, err)
	return ct, tok
}

func TestWrapChecksAttestation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ct, tok := f.input(t, 5, "alice")
	h, err := f.cp.Wrap(ctx, ct, tok, "alice")
	require.NoError(t, err)
	assert.Equal(t, fhe.InputHandle(fhe.KindUint8, ct), h)

	// Bound to alice.
	_, err = f.cp.Wrap(ctx, ct, tok, "bob")
	require.ErrorIs(t, err, fhe.ErrInvalidProof)

	// Attestation for another ciphertext.
	other, _ := f.input(t, 5, "alice")
	_, err = f.cp.Wrap(ctx, other, tok, "alice")
	require.ErrorIs(t, err, fhe.ErrInvalidProof)
}

func TestWrapRejectsMalformedCiphertext(t *testing.T) {
	f := newFixture(t)
	bad := []byte("not a ciphertext")
	tok, err := f.att.Attest(fhe.InputHandle(fhe.KindUint8, bad).String(), "alice")
	require.NoError(t, err)

	_, err = f.cp.Wrap(context.Background(), bad, tok, "alice")
	require.ErrorIs(t, err, fhe.ErrInvalidProof)
}

func TestEqRequiresAllow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ct1, tok1 := f.input(t, 42, "admin")
	secret, err := f.cp.Wrap(ctx, ct1, tok1, "admin")
	require.NoError(t, err)
	ct2, tok2 := f.input(t, 42, "alice")
	guess, err := f.cp.Wrap(ctx, ct2, tok2, "alice")
	require.NoError(t, err)

	_, err = f.cp.Eq(ctx, guess, secret, "game")
	require.ErrorIs(t, err, fhe.ErrNotAllowed)

	require.NoError(t, f.cp.Allow(ctx, secret, "game"))
	require.NoError(t, f.cp.Allow(ctx, guess, "game"))
	eq, err := f.cp.Eq(ctx, guess, secret, "game")
	require.NoError(t, err)
	assert.Equal(t, fhe.ComputedHandle(fhe.KindBool, "eq", guess, secret), eq)

	// The authority cannot read the result until it is granted.
	_, err = f.cp.Ciphertext(ctx, eq, fhe.DecryptionAuthority)
	require.ErrorIs(t, err, fhe.ErrNotAllowed)

	require.NoError(t, f.cp.Allow(ctx, eq, fhe.DecryptionAuthority))
	rec, err := f.cp.Ciphertext(ctx, eq, fhe.DecryptionAuthority)
	require.NoError(t, err)
	assert.Equal(t, fhe.KindBool, rec.Kind)

	ok, err := f.scheme.DecryptBool(rec.Ciphertext)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowUnknownHandle(t *testing.T) {
	f := newFixture(t)
	err := f.cp.Allow(context.Background(), fhe.Handle{1}, "game")
	require.ErrorIs(t, err, fhe.ErrUnknownHandle)
}

func TestHandleText(t *testing.T) {
	h := fhe.InputHandle(fhe.KindUint8, []byte{1, 2, 3})
	b, err := h.MarshalText()
	require.NoError(t, err)

	var back fhe.Handle
	require.NoError(t, back.UnmarshalText(b))
	assert.Equal(t, h, back)
	assert.False(t, back.IsZero())

	_, err = fhe.ParseHandle("0x1234")
	require.ErrorIs(t, err, fhe.ErrBadHandle)
}
