// internal/proof/keys.go
//
// Key handling for the two signing roles of the service:
//   - the input verifier, which attests that an externally supplied
//     ciphertext is well formed and bound to the submitting identity;
//   - the decryption authority, which signs every cleartext it returns.
//
// Keys are ed25519. On disk a key is the hex-encoded 32-byte seed, one per file.

package proof

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GenerateKey returns a fresh ed25519 private key.
func GenerateKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return priv, nil
}

// LoadKey reads a hex seed written by SaveKey.
func LoadKey(path string) (ed25519.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("decode %s: seed is %d bytes, want %d", path, len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// SaveKey writes priv's seed to path with owner-only permissions.
func SaveKey(path string, priv ed25519.PrivateKey) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(priv.Seed())+"\n"), 0o600)
}

// LoadOrCreateKey loads the key at path, generating and saving one if missing.
func LoadOrCreateKey(path string) (ed25519.PrivateKey, error) {
	priv, err := LoadKey(path)
	if err == nil {
		return priv, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if priv, err = GenerateKey(); err != nil {
		return nil, err
	}
	if err := SaveKey(path, priv); err != nil {
		return nil, err
	}
	return priv, nil
}

// PublicKeyHex returns the hex encoding of priv's public half.
func PublicKeyHex(priv ed25519.PrivateKey) string {
	return hex.EncodeToString(priv.Public().(ed25519.PublicKey))
}
