// Package mock is a stand-in encryption scheme for tests and local runs.
//
// Values are sealed with XChaCha20-Poly1305, so tokens are as opaque as real
// ciphertexts to anyone without the key. Eq does not decide anything: it
// returns a deferred token that names its two operands, and equality is only
// evaluated when the decryption authority calls DecryptBool. That keeps the
// "result unknown until decrypted" property of a real FHE scheme.
//
// Token layout:
//
//	uint8: 0x01 | nonce(24) | seal(value, ad=0x01)
//	eq:    0x02 | len(a) uint16 BE | a | b
package mock

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/chandiniv1/secret-number-game/internal/fhe"
)

const (
	tagUint8 byte = 0x01
	tagEq    byte = 0x02

	uint8TokenLen = 1 + chacha20poly1305.NonceSizeX + 1 + chacha20poly1305.Overhead
)

// Scheme implements fhe.Scheme.
type Scheme struct {
	aead cipher.AEAD
	key  []byte
}

var _ fhe.Scheme = (*Scheme)(nil)

// New returns a scheme keyed by a 32-byte key.
func New(key []byte) (*Scheme, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("mock: %w", err)
	}
	return &Scheme{aead: aead, key: append([]byte(nil), key...)}, nil
}

// NewRandom returns a scheme with a fresh random key.
func NewRandom() (*Scheme, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return New(key)
}

// Load reads a hex key written by Save.
func Load(path string) (*Scheme, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("mock: decode %s: %w", path, err)
	}
	return New(key)
}

// Save writes the scheme key to path.
func (s *Scheme) Save(path string) error {
	return os.WriteFile(path, []byte(hex.EncodeToString(s.key)+"\n"), 0o600)
}

func (s *Scheme) Name() string { return "mock" }

// EncryptUint8 seals v under a fresh nonce.
func (s *Scheme) EncryptUint8(v uint8) ([]byte, error) {
	out := make([]byte, 1+chacha20poly1305.NonceSizeX, uint8TokenLen)
	out[0] = tagUint8
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, err
	}
	nonce := out[1 : 1+chacha20poly1305.NonceSizeX]
	return s.aead.Seal(out, nonce, []byte{v}, []byte{tagUint8}), nil
}

// Validate checks token structure only; it never opens the seal.
func (s *Scheme) Validate(kind fhe.Kind, ct []byte) error {
	switch kind {
	case fhe.KindUint8:
		if len(ct) != uint8TokenLen || ct[0] != tagUint8 {
			return fmt.Errorf("%w: not a mock uint8 token", fhe.ErrMalformedCiphertext)
		}
		return nil
	case fhe.KindBool:
		_, _, err := splitEq(ct)
		return err
	}
	return fmt.Errorf("%w: unsupported kind %s", fhe.ErrMalformedCiphertext, kind)
}

// Eq returns a deferred comparison token over a and b.
func (s *Scheme) Eq(a, b []byte) ([]byte, error) {
	if err := s.Validate(fhe.KindUint8, a); err != nil {
		return nil, err
	}
	if err := s.Validate(fhe.KindUint8, b); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 3+len(a)+len(b))
	out = append(out, tagEq)
	out = binary.BigEndian.AppendUint16(out, uint16(len(a)))
	out = append(out, a...)
	return append(out, b...), nil
}

// DecryptBool evaluates a deferred comparison token.
func (s *Scheme) DecryptBool(ct []byte) (bool, error) {
	a, b, err := splitEq(ct)
	if err != nil {
		return false, err
	}
	va, err := s.open(a)
	if err != nil {
		return false, err
	}
	vb, err := s.open(b)
	if err != nil {
		return false, err
	}
	return va == vb, nil
}

func (s *Scheme) open(tok []byte) (uint8, error) {
	if len(tok) != uint8TokenLen || tok[0] != tagUint8 {
		return 0, fmt.Errorf("%w: not a mock uint8 token", fhe.ErrMalformedCiphertext)
	}
	nonce := tok[1 : 1+chacha20poly1305.NonceSizeX]
	pt, err := s.aead.Open(nil, nonce, tok[1+chacha20poly1305.NonceSizeX:], []byte{tagUint8})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", fhe.ErrMalformedCiphertext, err)
	}
	return pt[0], nil
}

func splitEq(ct []byte) (a, b []byte, err error) {
	if len(ct) < 3 || ct[0] != tagEq {
		return nil, nil, fmt.Errorf("%w: not a mock eq token", fhe.ErrMalformedCiphertext)
	}
	n := int(binary.BigEndian.Uint16(ct[1:3]))
	if len(ct) < 3+n {
		return nil, nil, fmt.Errorf("%w: truncated eq token", fhe.ErrMalformedCiphertext)
	}
	return ct[3 : 3+n], ct[3+n:], nil
}
