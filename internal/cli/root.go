// Package cli implements the intentgate command-line interface.
package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "intentgate",
	Short: "Trust-gated intent admission gateway",
	Long: "Admits or denies communication intents based on bilateral-consent relationships,\n" +
		"trust-level policy, and appointment windows. Every decision is recorded on a\n" +
		"hash-linked continuity chain.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// defaultLedgerPath returns the default ledger database location.
func defaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "intentgate-ledger.db")
	}
	return filepath.Join(home, ".intentgate", "ledger.db")
}
