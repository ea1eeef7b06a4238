package commands

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/DMS/db"
	"github.com/teranos/DMS/display"
)

// DbCmd groups database maintenance commands
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations and list applied versions",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts per table",
	RunE:  runDbStats,
}

var dbPathFlag string

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Database path (overrides database.path)")
	dbStatsCmd.Flags().Bool("json", false, "Output as JSON")
	DbCmd.AddCommand(dbMigrateCmd, dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, path, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	versions, err := db.AppliedVersions(database)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("Database %s is up to date", path)
	for _, v := range versions {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", v)
	}
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, path, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := db.CollectStats(cmd.Context(), database)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(cmd.OutOrStdout(), stats)
	}

	pterm.DefaultSection.Printfln("Database %s", path)
	data := pterm.TableData{
		{"Table", "Rows"},
		{"users", strconv.Itoa(stats.Users)},
		{"documents", strconv.Itoa(stats.Documents)},
		{"ingestion_logs", strconv.Itoa(stats.IngestionLogs)},
	}
	statuses := make([]string, 0, len(stats.LogsByStatus))
	for s := range stats.LogsByStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		data = append(data, []string{"  " + s, strconv.Itoa(stats.LogsByStatus[s])})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Info.Printfln("Schema version: %s", stats.AppliedMigration)
	return nil
}
