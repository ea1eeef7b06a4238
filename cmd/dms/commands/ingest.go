package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/DMS/display"
	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/ingestion"
	"github.com/teranos/DMS/internal/httpclient"
	"github.com/teranos/DMS/version"
)

// tokenEnv supplies the bearer token for remote ingest commands
const tokenEnv = "DMS_TOKEN"

// IngestCmd groups the ingestion commands
var IngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run ingestion sweeps and inspect their logs",
	Long: `Run ingestion sweeps and inspect ingestion logs.

Local commands work directly on the database. With --server, status and
trigger talk to a running DMS API instead; authenticate with --token
(or DMS_TOKEN), or with --email and --password.

Examples:
  dms ingest run                                   # Sweep every document now
  dms ingest logs --status failed                  # Show failed attempts
  dms ingest status --server http://localhost:8000 # Ask a running server`,
}

var ingestRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion sweep in the foreground",
	RunE:  runIngestRun,
}

var ingestLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List ingestion logs, newest first",
	RunE:  runIngestLogs,
}

var ingestStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingestion status",
	RunE:  runIngestStatus,
}

var ingestTriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Ask a running server to start a sweep",
	RunE:  runIngestTrigger,
}

var (
	ingestDBPath   string
	ingestDelay    time.Duration
	ingestLimit    int
	ingestStatus   string
	ingestServer   string
	ingestToken    string
	ingestEmail    string
	ingestPassword string
	ingestTimeout  time.Duration
)

func init() {
	IngestCmd.PersistentFlags().StringVar(&ingestDBPath, "db-path", "", "Database path (overrides database.path)")

	ingestRunCmd.Flags().DurationVar(&ingestDelay, "delay", -1, "Per-document delay (overrides ingestion.process_delay)")

	ingestLogsCmd.Flags().IntVar(&ingestLimit, "limit", 50, "Maximum logs to show (0 = all)")
	ingestLogsCmd.Flags().StringVar(&ingestStatus, "status", "", "Only show logs with this status")
	ingestLogsCmd.Flags().Bool("json", false, "Output as JSON")

	for _, c := range []*cobra.Command{ingestStatusCmd, ingestTriggerCmd} {
		c.Flags().StringVar(&ingestServer, "server", "", "Base URL of a running DMS API")
		c.Flags().StringVar(&ingestToken, "token", "", "Bearer token (or set "+tokenEnv+")")
		c.Flags().StringVar(&ingestEmail, "email", "", "Log in with this email")
		c.Flags().StringVar(&ingestPassword, "password", "", "Password for --email")
		c.Flags().DurationVar(&ingestTimeout, "timeout", 10*time.Second, "HTTP timeout")
	}
	_ = ingestTriggerCmd.MarkFlagRequired("server")

	IngestCmd.AddCommand(ingestRunCmd, ingestLogsCmd, ingestStatusCmd, ingestTriggerCmd)
}

func runIngestRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(ingestDBPath)
	if err != nil {
		return err
	}
	defer a.Close()

	if ingestDelay >= 0 {
		a.processor.SetDelay(ingestDelay)
	}

	// Ctrl+C cancels the in-flight document; its log is marked failed
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spinner, _ := pterm.DefaultSpinner.Start("Sweeping documents...")
	report, err := a.runner.Sweep(ctx)
	if spinner != nil {
		_ = spinner.Stop()
	}
	if report == nil && err == nil {
		pterm.Warning.Println("A sweep is already running")
		return nil
	}
	if report != nil {
		printSweepReport(report)
	}
	return err
}

func printSweepReport(report *ingestion.SweepReport) {
	if len(report.Results) > 0 {
		data := pterm.TableData{{"Document", "Log", "Status", "Reason", "Took"}}
		for _, res := range report.Results {
			data = append(data, []string{
				strconv.FormatInt(res.DocumentID, 10),
				strconv.FormatInt(res.LogID, 10),
				string(res.Outcome.Status),
				res.Outcome.Reason,
				res.Duration.Round(time.Millisecond).String(),
			})
		}
		_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}

	summary := fmt.Sprintf("Sweep %s: %d documents, %d completed, %d failed in %s",
		report.ID, report.Total, report.Completed, report.Failed, report.Duration().Round(time.Millisecond))
	if report.Fault != nil {
		pterm.Error.Println(summary)
		return
	}
	if report.Failed > 0 {
		pterm.Warning.Println(summary)
		return
	}
	pterm.Success.Println(summary)
}

func runIngestLogs(cmd *cobra.Command, args []string) error {
	if ingestStatus != "" && !ingestion.IsValidStatus(ingestStatus) {
		return errors.Newf("invalid status %q (want processing, completed or failed)", ingestStatus)
	}

	a, err := newApp(ingestDBPath)
	if err != nil {
		return err
	}
	defer a.Close()

	logs, err := a.runner.ListLogs(cmd.Context())
	if err != nil {
		return err
	}

	var selected []ingestion.Log
	for _, l := range logs {
		if ingestStatus != "" && string(l.Status) != ingestStatus {
			continue
		}
		if ingestLimit > 0 && len(selected) == ingestLimit {
			break
		}
		selected = append(selected, l)
	}
	if display.ShouldOutputJSON(cmd) {
		if selected == nil {
			selected = []ingestion.Log{}
		}
		return display.OutputJSON(cmd.OutOrStdout(), selected)
	}
	if len(selected) == 0 {
		pterm.Info.Println("No ingestion logs")
		return nil
	}

	data := pterm.TableData{{"ID", "Document", "Status", "Started", "Completed", "Error"}}
	for _, l := range selected {
		completed, message := "-", ""
		if l.CompletedAt != nil {
			completed = l.CompletedAt.Local().Format(time.DateTime)
		}
		if l.ErrorMessage != nil {
			message = *l.ErrorMessage
		}
		data = append(data, []string{
			strconv.FormatInt(l.ID, 10),
			strconv.FormatInt(l.DocumentID, 10),
			string(l.Status),
			l.StartedAt.Local().Format(time.DateTime),
			completed,
			message,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runIngestStatus(cmd *cobra.Command, args []string) error {
	if ingestServer != "" {
		client, err := remoteClient(cmd.Context())
		if err != nil {
			return err
		}
		var status ingestion.StatusSnapshot
		if err := client.Get(cmd.Context(), "/api/ingestion/status", &status); err != nil {
			return err
		}
		if status.IsProcessing {
			pterm.Info.Printfln("%s: a sweep is running", ingestServer)
		} else {
			pterm.Info.Printfln("%s: idle", ingestServer)
		}
		return nil
	}

	// Without a server only the logs are visible; the running flag lives in the server process
	a, err := newApp(ingestDBPath)
	if err != nil {
		return err
	}
	defer a.Close()

	logs, err := a.runner.ListLogs(cmd.Context())
	if err != nil {
		return err
	}
	counts := make(map[string]int)
	for _, l := range logs {
		counts[string(l.Status)]++
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	data := pterm.TableData{{"Status", "Logs"}}
	for _, s := range statuses {
		data = append(data, []string{s, strconv.Itoa(counts[s])})
	}
	if len(logs) > 0 {
		pterm.Info.Printfln("Last attempt started %s", logs[0].StartedAt.Local().Format(time.DateTime))
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runIngestTrigger(cmd *cobra.Command, args []string) error {
	client, err := remoteClient(cmd.Context())
	if err != nil {
		return err
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := client.Post(cmd.Context(), "/api/ingestion/trigger", &resp); err != nil {
		return err
	}
	pterm.Success.Println(resp.Message)
	return nil
}

// remoteClient builds an API client for --server, logging in when no token is given
func remoteClient(ctx context.Context) (*httpclient.Client, error) {
	token := ingestToken
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	client, err := httpclient.New(ingestServer, token, ingestTimeout)
	if err != nil {
		return nil, err
	}
	checkServerVersion(ctx, client)
	if token != "" {
		return client, nil
	}
	if ingestEmail == "" || ingestPassword == "" {
		return nil, errors.Newf("authentication required: --token, %s, or --email with --password", tokenEnv)
	}
	if _, err := client.Login(ctx, ingestEmail, ingestPassword); err != nil {
		return nil, errors.Wrap(err, "login failed")
	}
	return client, nil
}

// checkServerVersion warns when the server's API may differ from this binary's
func checkServerVersion(ctx context.Context, client *httpclient.Client) {
	var health struct {
		Version string `json:"version"`
	}
	if err := client.Get(ctx, "/health", &health); err != nil {
		pterm.Warning.Printfln("Could not read server version: %v", err)
		return
	}
	ok, err := version.Get().CompatibleWith(health.Version)
	if err != nil {
		pterm.Warning.Println(err.Error())
		return
	}
	if !ok {
		pterm.Warning.Printfln("Server runs %s, this client is %s; responses may not match", health.Version, version.Get().Version)
	}
}
