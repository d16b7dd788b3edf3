// main.go
//
// Entry point for the confidential number-guessing service.
// Commands:
//   - serve   → run the HTTP API, the decryption oracle and the game
//   - keygen  → create scheme keys plus the attestor and authority keys
//   - encrypt → encrypt a guess or secret for submission (client role)
//   - secret  → print a random value for the admin to encrypt

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "fheguess",
	Short:         "Confidential number-guessing game over encrypted comparisons",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, keygenCmd, encryptCmd, secretCmd)
}
