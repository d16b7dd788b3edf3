// internal/fhe/handle.go
//
// Opaque encrypted handles.
//
// A Handle names a ciphertext registered with the Coprocessor. Holders of a
// Handle learn nothing about the plaintext; every operation on it goes through
// the Coprocessor, which checks the ACL first.
//
// Input handles are Keccak-256(kind || ciphertext). Computed handles are
// Keccak-256(kind || op || operand handles), so the same computation over the
// same inputs always yields the same handle.

package fhe

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Kind is the plaintext type behind a handle.
type Kind uint8

const (
	KindBool  Kind = 1
	KindUint8 Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "ebool"
	case KindUint8:
		return "euint8"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Handle is an opaque reference to a registered ciphertext.
type Handle [32]byte

// ErrBadHandle is returned by ParseHandle.
var ErrBadHandle = errors.New("malformed handle")

// InputHandle derives the handle of an externally supplied ciphertext.
func InputHandle(kind Kind, ct []byte) Handle {
	return keccak([]byte{byte(kind)}, ct)
}

// ComputedHandle derives the handle of op applied to operands.
func ComputedHandle(kind Kind, op string, operands ...Handle) Handle {
	parts := make([][]byte, 0, len(operands)+2)
	parts = append(parts, []byte{byte(kind)}, []byte(op))
	for i := range operands {
		parts = append(parts, operands[i][:])
	}
	return keccak(parts...)
}

func keccak(parts ...[]byte) Handle {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out Handle
	copy(out[:], h.Sum(nil))
	return out
}

// ParseHandle accepts the 0x-prefixed hex form produced by String.
func ParseHandle(s string) (Handle, error) {
	var h Handle
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(b) != len(h) {
		return h, fmt.Errorf("%w: %q", ErrBadHandle, s)
	}
	copy(h[:], b)
	return h, nil
}

func (h Handle) String() string { return "0x" + hex.EncodeToString(h[:]) }

// IsZero reports whether h is the zero handle (no ciphertext).
func (h Handle) IsZero() bool { return h == Handle{} }

func (h Handle) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Handle) UnmarshalText(b []byte) error {
	p, err := ParseHandle(string(b))
	if err != nil {
		return err
	}
	*h = p
	return nil
}
