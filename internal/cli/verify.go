package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var verifyLedgerPath string

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyLedgerPath, "ledger", "", "Path to ledger database")
}

var verifyCmd = &cobra.Command{
	Use:   "verify <relationship-id>",
	Short: "Verify a relationship's continuity chain",
	Long: "Recomputes every hash in the chain from its predecessor and canonical payload.\n" +
		"Exits non-zero on any gap, broken link, or hash mismatch.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger(verifyLedgerPath)
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := store.VerifyChain(args[0])
		if err != nil {
			return err
		}

		if !result.Valid {
			fmt.Fprintf(os.Stderr, "chain INVALID at seq %d: %s\n", result.ErrorSeq, result.Error)
			os.Exit(2)
		}
		fmt.Printf("chain valid: %d entries\n", result.Entries)
		return nil
	},
}
