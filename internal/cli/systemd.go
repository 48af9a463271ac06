package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/humotica/intentgate/internal/systemd"
)

var (
	systemdPort   int
	systemdConfig string
)

func init() {
	rootCmd.AddCommand(systemdCmd)
	systemdCmd.Flags().IntVar(&systemdPort, "port", 8370, "HTTP listen port")
	systemdCmd.Flags().StringVar(&systemdConfig, "config", "", "Path to config YAML")
}

var systemdCmd = &cobra.Command{
	Use:   "systemd",
	Short: "Print a systemd unit for the gateway",
	Long: "Writes a hardened systemd unit for intentgate serve to stdout.\n" +
		"Redirect into /etc/systemd/system/intentgate.service and enable it.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(systemd.GatewayTemplate(systemdPort, systemdConfig))
	},
}
