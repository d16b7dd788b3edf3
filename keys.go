// keys.go
//
// On-disk key material under KEYS_DIR.
//   mock.key       hex XChaCha20-Poly1305 key of the mock scheme
//   bgv_sk.bin     BGV secret key (server only)
//   bgv_pk.bin     BGV public key (enough to encrypt)
//   input.key      ed25519 seed of the input attestor
//   authority.key  ed25519 seed of the decryption authority

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/chandiniv1/secret-number-game/internal/fhe"
	"github.com/chandiniv1/secret-number-game/internal/fhe/bgv"
	"github.com/chandiniv1/secret-number-game/internal/fhe/mock"
)

const (
	mockKeyFile      = "mock.key"
	inputKeyFile     = "input.key"
	authorityKeyFile = "authority.key"
)

// loadScheme opens the backend's keys in dir. With create set, missing keys
// are generated and saved.
func loadScheme(backend, dir string, create bool) (fhe.Scheme, error) {
	switch backend {
	case "mock":
		path := filepath.Join(dir, mockKeyFile)
		s, err := mock.Load(path)
		if err == nil || !errors.Is(err, fs.ErrNotExist) || !create {
			return s, err
		}
		if s, err = mock.NewRandom(); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Msg("generated mock scheme key")
		return s, s.Save(path)
	case "bgv":
		if bgv.Exists(dir) {
			return bgv.Load(dir)
		}
		if !create {
			return nil, fmt.Errorf("no bgv keys in %s (run keygen)", dir)
		}
		log.Info().Str("dir", dir).Msg("generating bgv keys")
		s, err := bgv.Generate()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
		return s, s.Save(dir)
	}
	return nil, fmt.Errorf("unknown FHE backend %q (want mock or bgv)", backend)
}

// loadEncryptor opens only what a client needs to encrypt. The mock scheme
// is symmetric, so it still reads mock.key; bgv reads the public key alone.
func loadEncryptor(backend, dir string) (fhe.Encryptor, error) {
	switch backend {
	case "mock":
		s, err := mock.Load(filepath.Join(dir, mockKeyFile))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "bgv":
		e, err := bgv.LoadEncryptor(dir)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("unknown FHE backend %q (want mock or bgv)", backend)
}
