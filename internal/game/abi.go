package game

import "fmt"

// wordSize is the size of one ABI-encoded static value.
const wordSize = 32

// EncodeBool returns the ABI encoding of b: one big-endian 32-byte word.
func EncodeBool(b bool) []byte {
	out := make([]byte, wordSize)
	if b {
		out[wordSize-1] = 1
	}
	return out
}

// DecodeBool is the strict inverse of EncodeBool.
func DecodeBool(p []byte) (bool, error) {
	if len(p) != wordSize {
		return false, fmt.Errorf("%w: %d bytes", ErrMalformedResult, len(p))
	}
	for _, c := range p[:wordSize-1] {
		if c != 0 {
			return false, fmt.Errorf("%w: dirty high bytes", ErrMalformedResult)
		}
	}
	switch p[wordSize-1] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: value %d", ErrMalformedResult, p[wordSize-1])
}
