package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/humotica/intentgate/internal/admission"
	"github.com/humotica/intentgate/internal/alert"
	"github.com/humotica/intentgate/internal/confirm"
	"github.com/humotica/intentgate/internal/model"
	"github.com/humotica/intentgate/internal/policy"
)

var (
	admitLedgerPath string
	admitConfigPath string
	admitIntent     string
	admitProtocol   string
	admitContext    string
)

func init() {
	rootCmd.AddCommand(admitCmd)
	admitCmd.Flags().StringVar(&admitLedgerPath, "ledger", "", "Path to ledger database")
	admitCmd.Flags().StringVar(&admitConfigPath, "config", "", "Path to config YAML")
	admitCmd.Flags().StringVar(&admitIntent, "intent", "", "Intent name (required)")
	admitCmd.Flags().StringVar(&admitProtocol, "protocol", "", "Declared protocol (required)")
	admitCmd.Flags().StringVar(&admitContext, "context", "", "Intent context as JSON object")
	admitCmd.MarkFlagRequired("intent")
	admitCmd.MarkFlagRequired("protocol")
}

var admitCmd = &cobra.Command{
	Use:   "admit <relationship-id>",
	Short: "Request admission of an intent",
	Long: "Runs the full admission gate for one intent: policy, rate limit, appointment\n" +
		"window, confirmation, and scoring. The decision is recorded on the relationship's\n" +
		"continuity chain either way. Exits 0 when admitted, 3 when denied.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger(admitLedgerPath)
		if err != nil {
			return err
		}
		defer store.Close()

		cfg, hash, err := policy.LoadWithHash(admitConfigPath)
		if err != nil {
			return err
		}

		confirmations, err := confirm.NewStore(confirm.DefaultDir())
		if err != nil {
			return err
		}

		var context map[string]any
		if admitContext != "" {
			if err := json.Unmarshal([]byte(admitContext), &context); err != nil {
				return fmt.Errorf("invalid --context JSON: %w", err)
			}
		}

		// Deliver oversight events inline: the process exits right after
		// the decision, which would strand an async dispatch.
		dispatcher := alert.NewDispatcher(cfg.Alerts)
		coordinator := admission.New(admission.Options{
			Store:         store,
			Config:        cfg,
			PolicyHash:    hash,
			Confirmations: confirmations,
			Notifier:      admission.NotifierFunc(dispatcher.DispatchSync),
		})

		result, err := coordinator.Admit(model.IntentRequest{
			RelationshipID: args[0],
			Intent:         admitIntent,
			Protocol:       admitProtocol,
			Context:        context,
		})
		if err != nil {
			return err
		}

		printJSON(result)
		if !result.IsAllowed() {
			os.Exit(3)
		}
		return nil
	},
}
