package proof

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidAttestation is returned when an input proof does not verify.
var ErrInvalidAttestation = errors.New("invalid input attestation")

const defaultAttestationTTL = 10 * time.Minute

type inputClaims struct {
	Handle string `json:"hdl"`
	jwt.RegisteredClaims
}

// InputAttestor signs input attestations: "ciphertext with handle H was
// submitted by caller C for this game instance".
type InputAttestor struct {
	key      ed25519.PrivateKey
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewInputAttestor returns an attestor scoped to audience (the game instance).
func NewInputAttestor(key ed25519.PrivateKey, audience string) *InputAttestor {
	return &InputAttestor{key: key, audience: audience, ttl: defaultAttestationTTL, now: time.Now}
}

// Attest returns a compact EdDSA JWT binding handle to caller.
func (a *InputAttestor) Attest(handle, caller string) (string, error) {
	now := a.now()
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, inputClaims{
		Handle: handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller,
			Audience:  jwt.ClaimStrings{a.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	})
	return t.SignedString(a.key)
}

// Verifier returns the verifier matching this attestor's key and audience.
func (a *InputAttestor) Verifier() *InputVerifier {
	return NewInputVerifier(a.key.Public().(ed25519.PublicKey), a.audience)
}

// InputVerifier checks attestations produced by an InputAttestor.
type InputVerifier struct {
	pub      ed25519.PublicKey
	audience string
	now      func() time.Time
}

// NewInputVerifier returns a verifier for pub and audience.
func NewInputVerifier(pub ed25519.PublicKey, audience string) *InputVerifier {
	return &InputVerifier{pub: pub, audience: audience, now: time.Now}
}

// Verify fails with ErrInvalidAttestation unless token is a valid, unexpired
// attestation for exactly (handle, caller).
func (v *InputVerifier) Verify(token, handle, caller string) error {
	var c inputClaims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return v.pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithSubject(caller),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAttestation, err)
	}
	if c.Handle != handle {
		return fmt.Errorf("%w: handle mismatch", ErrInvalidAttestation)
	}
	return nil
}
