package proof

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type decryptionClaims struct {
	RequestID string `json:"rid"`
	Digest    string `json:"dig"` // hex sha256 of the cleartext
	jwt.RegisteredClaims
}

// DecryptionSigner is held by the decryption authority only.
type DecryptionSigner struct {
	key    ed25519.PrivateKey
	issuer string
	now    func() time.Time
}

// NewDecryptionSigner returns a signer that stamps proofs with issuer.
func NewDecryptionSigner(key ed25519.PrivateKey, issuer string) *DecryptionSigner {
	return &DecryptionSigner{key: key, issuer: issuer, now: time.Now}
}

// Sign binds cleartext to requestID. Proofs do not expire: a callback may be
// redelivered long after the decryption happened.
func (s *DecryptionSigner) Sign(requestID string, cleartext []byte) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, decryptionClaims{
		RequestID: requestID,
		Digest:    digest(cleartext),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	})
	return t.SignedString(s.key)
}

// Verifier returns the verifier matching this signer.
func (s *DecryptionSigner) Verifier() *DecryptionVerifier {
	return NewDecryptionVerifier(s.key.Public().(ed25519.PublicKey), s.issuer)
}

// DecryptionVerifier checks proofs from a DecryptionSigner.
type DecryptionVerifier struct {
	pub    ed25519.PublicKey
	issuer string
}

// NewDecryptionVerifier returns a verifier for the authority key pub.
func NewDecryptionVerifier(pub ed25519.PublicKey, issuer string) *DecryptionVerifier {
	return &DecryptionVerifier{pub: pub, issuer: issuer}
}

// Verify reports whether token proves that the authority decrypted requestID
// to exactly cleartext.
func (v *DecryptionVerifier) Verify(requestID string, cleartext []byte, token string) bool {
	if token == "" {
		return false
	}
	var c decryptionClaims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return v.pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		return false
	}
	return c.RequestID == requestID && c.Digest == digest(cleartext)
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
