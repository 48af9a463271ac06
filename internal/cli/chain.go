package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var chainLedgerPath string

func init() {
	rootCmd.AddCommand(chainCmd)
	chainCmd.Flags().StringVar(&chainLedgerPath, "ledger", "", "Path to ledger database")
}

var chainCmd = &cobra.Command{
	Use:   "chain <relationship-id>",
	Short: "Export a relationship's continuity chain as JSONL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger(chainLedgerPath)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.Entries(args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return fmt.Errorf("failed to write entry %d: %w", e.Sequence, err)
			}
		}
		return nil
	},
}
