// internal/numbers/numbers.go
//
// Plaintext domain for the guessing game.
//
// Responsibilities:
//   - Define the closed range of values a secret or a guess may take.
//   - Validate and parse user-supplied values before they are encrypted.
//   - Supply a cryptographically random secret for the admin CLI.
//
// The game never sees these values in the clear once they are encrypted;
// this package only runs on the client side (CLI, tests) and in the
// encryption schemes that need the domain size for their encodings.

package numbers

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	// Min is the smallest value a secret or guess may take.
	Min = 1
	// Max is the largest value a secret or guess may take.
	Max = 100
)

// ErrOutOfRange is returned for values outside [Min, Max].
var ErrOutOfRange = errors.New("value out of range")

// Validate reports whether v lies in [Min, Max].
func Validate(v int) error {
	if v < Min || v > Max {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrOutOfRange, v, Min, Max)
	}
	return nil
}

// Random returns a cryptographically random value in [Min, Max].
func Random() uint8 {
	nBig, err := rand.Int(rand.Reader, big.NewInt(Max-Min+1))
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(fmt.Sprintf("numbers: read random: %v", err))
	}
	return uint8(nBig.Int64() + Min)
}
