package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/humotica/intentgate/internal/confirm"
)

var (
	confirmDir      string
	confirmDuration time.Duration
)

func init() {
	rootCmd.AddCommand(confirmCmd)
	confirmCmd.PersistentFlags().StringVar(&confirmDir, "dir", "", "Path to confirmation store directory")

	confirmCmd.AddCommand(confirmGrantCmd)
	confirmGrantCmd.Flags().DurationVar(&confirmDuration, "duration", 0,
		"Validity period (e.g., 5m, 1h). Default: one-time use")

	confirmCmd.AddCommand(confirmDenyCmd)
	confirmCmd.AddCommand(confirmListCmd)
}

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Manage multi-factor confirmations for high-trust intents",
}

func openConfirmStore() (*confirm.Store, error) {
	dir := confirmDir
	if dir == "" {
		dir = confirm.DefaultDir()
	}
	return confirm.NewStore(dir)
}

var confirmGrantCmd = &cobra.Command{
	Use:   "grant <relationship-id> <intent>",
	Short: "Grant a confirmation",
	Long: "Grants the multi-factor confirmation a high-trust intent is waiting on.\n" +
		"Without --duration, the grant is one-time (consumed on first admission).\n" +
		"With --duration, it covers every admission until it expires.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openConfirmStore()
		if err != nil {
			return fmt.Errorf("failed to open confirmation store: %w", err)
		}

		key := confirm.Key(args[0], args[1])
		if err := store.Request(args[0], args[1]); err != nil {
			return err
		}
		if err := store.Grant(key, confirmDuration); err != nil {
			return err
		}

		if confirmDuration > 0 {
			fmt.Printf("Granted %q for %s\n", key, confirmDuration)
		} else {
			fmt.Printf("Granted %q (one-time use)\n", key)
		}
		return nil
	},
}

var confirmDenyCmd = &cobra.Command{
	Use:   "deny <relationship-id> <intent>",
	Short: "Deny a confirmation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openConfirmStore()
		if err != nil {
			return fmt.Errorf("failed to open confirmation store: %w", err)
		}

		key := confirm.Key(args[0], args[1])
		if err := store.Deny(key); err != nil {
			return err
		}
		fmt.Printf("Denied %q\n", key)
		return nil
	},
}

var confirmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List confirmations and their states",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openConfirmStore()
		if err != nil {
			return fmt.Errorf("failed to open confirmation store: %w", err)
		}

		confirmations, err := store.List()
		if err != nil {
			return err
		}
		if len(confirmations) == 0 {
			fmt.Println("No confirmations.")
			return nil
		}
		for _, c := range confirmations {
			fmt.Printf("%-50s %-10s created %s\n", c.Key, c.Status, c.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}
