package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chandiniv1/secret-number-game/internal/config"
	"github.com/chandiniv1/secret-number-game/internal/fhe/bgv"
)

// clearEnv unsets keys for the duration of the test, since godotenv only
// fills variables that are absent.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		require.NoError(t, os.Unsetenv(k))
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			} else {
				os.Unsetenv(k)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestKeyFlagsReadDotEnv(t *testing.T) {
	clearEnv(t, "FHE_BACKEND", "KEYS_DIR")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("FHE_BACKEND=bgv\nKEYS_DIR=/srv/fheguess/keys\n"), 0o600))
	chdir(t, dir)

	cmd := &cobra.Command{Use: "encrypt"}
	addKeyFlags(config.FromEnv(), cmd)

	backend, err := cmd.Flags().GetString("backend")
	require.NoError(t, err)
	keys, err := cmd.Flags().GetString("dir")
	require.NoError(t, err)
	assert.Equal(t, "bgv", backend)
	assert.Equal(t, "/srv/fheguess/keys", keys)
}

func TestEncryptorNeedsNoSecretKey(t *testing.T) {
	if testing.Short() {
		t.Skip("bgv key generation is slow")
	}
	dir := t.TempDir()
	s, err := loadScheme("bgv", dir, true)
	require.NoError(t, err)

	// A client machine only has the public key.
	client := t.TempDir()
	pk, err := os.ReadFile(filepath.Join(dir, "bgv_pk.bin"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(client, "bgv_pk.bin"), pk, 0o600))
	assert.False(t, bgv.Exists(client))

	enc, err := loadEncryptor("bgv", client)
	require.NoError(t, err)
	guess, err := enc.EncryptUint8(17)
	require.NoError(t, err)
	secret, err := s.EncryptUint8(17)
	require.NoError(t, err)

	eq, err := s.Eq(guess, secret)
	require.NoError(t, err)
	ok, err := s.DecryptBool(eq)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = loadScheme("bgv", client, false)
	require.Error(t, err)
}

func TestEncryptorMockAndUnknown(t *testing.T) {
	dir := t.TempDir()
	s, err := loadScheme("mock", dir, true)
	require.NoError(t, err)
	enc, err := loadEncryptor("mock", dir)
	require.NoError(t, err)

	a, err := enc.EncryptUint8(5)
	require.NoError(t, err)
	b, err := s.EncryptUint8(5)
	require.NoError(t, err)
	eq, err := s.Eq(a, b)
	require.NoError(t, err)
	ok, err := s.DecryptBool(eq)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = loadEncryptor("paillier", dir)
	require.Error(t, err)
}
