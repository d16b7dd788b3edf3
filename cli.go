package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chandiniv1/secret-number-game/internal/config"
	"github.com/chandiniv1/secret-number-game/internal/numbers"
	"github.com/chandiniv1/secret-number-game/internal/proof"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate scheme, attestor and authority keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, _ := cmd.Flags().GetString("backend")
		dir, _ := cmd.Flags().GetString("dir")

		if _, err := loadScheme(backend, dir, true); err != nil {
			return err
		}
		for _, name := range []string{inputKeyFile, authorityKeyFile} {
			k, err := proof.LoadOrCreateKey(filepath.Join(dir, name))
			if err != nil {
				return err
			}
			fmt.Printf("%-14s %s\n", name, proof.PublicKeyHex(k))
		}
		fmt.Printf("%s keys ready in %s\n", backend, dir)
		return nil
	},
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt a value in [1,100] and print it as base64",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, _ := cmd.Flags().GetString("backend")
		dir, _ := cmd.Flags().GetString("dir")
		raw, _ := cmd.Flags().GetString("value")

		v, err := numbers.Parse(raw)
		if err != nil {
			return err
		}
		enc, err := loadEncryptor(backend, dir)
		if err != nil {
			return err
		}
		ct, err := enc.EncryptUint8(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, base64.StdEncoding.EncodeToString(ct))
		return nil
	},
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Print a random value in [1,100]",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(numbers.Random())
	},
}

func init() {
	addKeyFlags(config.FromEnv(), keygenCmd, encryptCmd)
	encryptCmd.Flags().String("value", "", "value to encrypt")
	_ = encryptCmd.MarkFlagRequired("value")
}

// addKeyFlags registers --backend and --dir with defaults taken from cfg, so
// keygen and encrypt see the same .env as serve.
func addKeyFlags(cfg config.Config, cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.Flags().String("backend", cfg.FHEBackend, "encryption scheme: mock or bgv")
		c.Flags().String("dir", cfg.KeysDir, "key directory")
	}
}
