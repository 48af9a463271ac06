package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/humotica/intentgate/internal/server"
)

var (
	servePort       int
	serveConfig     string
	serveLedger     string
	serveConfirmDir string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 8370, "HTTP listen port")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Path to config YAML")
	serveCmd.Flags().StringVar(&serveLedger, "ledger", "", "Path to ledger database")
	serveCmd.Flags().StringVar(&serveConfirmDir, "confirm-dir", "", "Path to confirmation store directory")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admission gateway server",
	Long: "Runs intentgate as an HTTP gateway. Relationship lifecycle, intent admission,\n" +
		"and chain inspection are served as JSON endpoints. The config file is hot-reloaded\n" +
		"on change.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ledgerPath := serveLedger
	if ledgerPath == "" {
		ledgerPath = defaultLedgerPath()
	}
	if err := os.MkdirAll(filepath.Dir(ledgerPath), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	srv, err := server.New(server.Config{
		Port:       servePort,
		ConfigPath: serveConfig,
		LedgerPath: ledgerPath,
		ConfirmDir: serveConfirmDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Start hot-reload watcher for the config file
	reloader, err := server.NewReloader(srv, serveConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if reloader != nil {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down admission gateway...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	return srv.Serve()
}
