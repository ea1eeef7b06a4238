package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/DMS/am"
	"github.com/teranos/DMS/cmd/dms/commands"
	"github.com/teranos/DMS/logger"
)

var (
	configPath string
	jsonLogs   bool
)

var rootCmd = &cobra.Command{
	Use:   "dms",
	Short: "DMS - Document management and ingestion backend",
	Long: `DMS - Document management backend with role-based access and ingestion sweeps.

Available commands:
  server  - Start the HTTP API
  am      - Inspect and change configuration
  db      - Apply migrations and show database statistics
  user    - Manage user accounts
  ingest  - Run ingestion sweeps and inspect their logs
  version - Show build information

Examples:
  dms server --port 8000          # Start the API
  dms user create --role admin    # Bootstrap an admin account
  dms ingest run                  # Sweep every document now
  dms ingest logs --limit 20      # Show recent ingestion logs`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			am.SetConfigFile(configPath)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if cmd.Name() == "server" && verbosity == 0 {
			verbosity = logger.VerbosityInfo
		}
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (overrides am.toml discovery)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON")

	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.UserCmd)
	rootCmd.AddCommand(commands.IngestCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
