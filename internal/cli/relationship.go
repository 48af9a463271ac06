package cli

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/humotica/intentgate/internal/identity"
	"github.com/humotica/intentgate/internal/ledger"
)

var (
	relLedgerPath string

	proposeInitiator string
	proposeResponder string
	proposeRoles     string
	proposeLevel     int
	proposeContext   string
	proposeKey       string
	proposeBinding   string

	acceptKey     string
	acceptBinding string
)

func init() {
	rootCmd.AddCommand(relationshipCmd)
	relationshipCmd.PersistentFlags().StringVar(&relLedgerPath, "ledger", "", "Path to ledger database")

	relationshipCmd.AddCommand(proposeCmd)
	proposeCmd.Flags().StringVar(&proposeInitiator, "initiator", "", "Initiator identity (required)")
	proposeCmd.Flags().StringVar(&proposeResponder, "responder", "", "Responder identity (required)")
	proposeCmd.Flags().StringVar(&proposeRoles, "roles", "", "Comma-separated role list")
	proposeCmd.Flags().IntVar(&proposeLevel, "level", 1, "Trust level (0-5)")
	proposeCmd.Flags().StringVar(&proposeContext, "context", "", "Relationship context as JSON object")
	proposeCmd.Flags().StringVar(&proposeKey, "public-key", "", "Initiator public key (base64). Generated when omitted")
	proposeCmd.Flags().StringVar(&proposeBinding, "binding", "", "Initiator binding hash. Derived when a key is generated")
	proposeCmd.MarkFlagRequired("initiator")
	proposeCmd.MarkFlagRequired("responder")

	relationshipCmd.AddCommand(acceptCmd)
	acceptCmd.Flags().StringVar(&acceptKey, "public-key", "", "Responder public key (base64). Generated when omitted")
	acceptCmd.Flags().StringVar(&acceptBinding, "binding", "", "Responder binding hash. Derived when a key is generated")

	relationshipCmd.AddCommand(rejectCmd)
	relationshipCmd.AddCommand(expireCmd)
	relationshipCmd.AddCommand(showCmd)
}

var relationshipCmd = &cobra.Command{
	Use:   "relationship",
	Short: "Manage bilateral-consent relationships",
}

// openLedger opens the ledger at the given path, or the default path
// when empty.
func openLedger(path string) (*ledger.Store, error) {
	if path == "" {
		path = defaultLedgerPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	return ledger.Open(path, nil)
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

// resolveParty returns the party's key and binding, generating a fresh
// keypair when no key was given. The private key is printed once and
// never stored.
func resolveParty(publicKey, binding string, roles []string) (string, string, error) {
	if publicKey != "" {
		if binding == "" {
			return "", "", fmt.Errorf("--binding is required when --public-key is given")
		}
		return publicKey, binding, nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate keypair: %w", err)
	}
	fmt.Fprintf(os.Stderr, "generated keypair; private key (keep safe): %s\n",
		base64.StdEncoding.EncodeToString(priv))
	return base64.StdEncoding.EncodeToString(pub), identity.DeriveBinding(pub, roles), nil
}

func splitRoles(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose a relationship (state: pending)",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger(relLedgerPath)
		if err != nil {
			return err
		}
		defer store.Close()

		var context map[string]any
		if proposeContext != "" {
			if err := json.Unmarshal([]byte(proposeContext), &context); err != nil {
				return fmt.Errorf("invalid --context JSON: %w", err)
			}
		}

		roles := splitRoles(proposeRoles)
		key, binding, err := resolveParty(proposeKey, proposeBinding, roles)
		if err != nil {
			return err
		}

		rel, err := store.Propose(ledger.ProposeParams{
			Initiator:          proposeInitiator,
			Responder:          proposeResponder,
			Roles:              roles,
			TrustLevel:         proposeLevel,
			Context:            context,
			InitiatorPublicKey: key,
			BindingHash:        binding,
		})
		if err != nil {
			return err
		}
		printJSON(rel)
		return nil
	},
}

var acceptCmd = &cobra.Command{
	Use:   "accept <relationship-id>",
	Short: "Accept a pending relationship",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger(relLedgerPath)
		if err != nil {
			return err
		}
		defer store.Close()

		rel, err := store.Get(args[0])
		if err != nil {
			return err
		}

		key, binding, err := resolveParty(acceptKey, acceptBinding, rel.Roles)
		if err != nil {
			return err
		}

		accepted, err := store.Accept(args[0], key, binding)
		if err != nil {
			return err
		}
		printJSON(accepted)
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject <relationship-id>",
	Short: "Reject a pending relationship (terminal)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger(relLedgerPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Reject(args[0]); err != nil {
			return err
		}
		fmt.Printf("Rejected %s\n", args[0])
		return nil
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire <relationship-id>",
	Short: "Expire an accepted relationship (terminal)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger(relLedgerPath)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Expire(args[0]); err != nil {
			return err
		}
		fmt.Printf("Expired %s\n", args[0])
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <relationship-id>",
	Short: "Show a relationship record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger(relLedgerPath)
		if err != nil {
			return err
		}
		defer store.Close()

		rel, err := store.Get(args[0])
		if err != nil {
			return err
		}
		printJSON(rel)
		return nil
	},
}
