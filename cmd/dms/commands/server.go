package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/DMS/am"
	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/logger"
	"github.com/teranos/DMS/server"
)

// shutdownTimeout bounds the graceful drain, including an in-flight sweep
const shutdownTimeout = 30 * time.Second

// ServerCmd starts the HTTP API
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the DMS HTTP API",
	Long: `Open and migrate the database, then serve the DMS API.

The active config file is watched: changes to server.allowed_origins and
ingestion.process_delay apply without a restart.`,
	RunE: runServer,
}

var (
	serverPort   int
	serverDBPath string
)

func init() {
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Port to listen on (overrides server.port)")
	ServerCmd.Flags().StringVar(&serverDBPath, "db-path", "", "Database path (overrides database.path)")
}

func runServer(cmd *cobra.Command, args []string) error {
	a, err := newApp(serverDBPath)
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.GetServerPort()
	if serverPort != 0 {
		port = serverPort
	}
	if port < 1 || port > am.MaxServerPort {
		return errors.Newf("invalid port %d", port)
	}
	addr := fmt.Sprintf(":%d", port)

	log := logger.ComponentLogger("server")
	srv, err := server.New(server.Deps{
		Users:     a.users,
		Documents: a.documents,
		Runner:    a.runner,
		Gatherer:  a.registry,
		Config:    a.cfg,
		Logger:    log,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	verbosity, _ := cmd.Flags().GetCount("verbose")
	printStartupBanner(a.cfg, a.dbPath, fmt.Sprintf("localhost:%d", port), verbosity)

	if watcher := startConfigWatcher(srv, a); watcher != nil {
		defer watcher.Stop()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(addr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownDone <- srv.Stop(ctx)
	}()

	select {
	case err := <-shutdownDone:
		if err != nil {
			return errors.Wrap(err, "shutdown error")
		}
		pterm.Success.Println("Server stopped cleanly")
		return nil
	case <-sigChan:
		pterm.Warning.Println("Force shutdown - exiting immediately")
		os.Exit(1)
		return nil
	}
}

// startConfigWatcher applies reloadable settings when the active config file
// changes. Returns nil when there is no config file to watch.
func startConfigWatcher(srv *server.Server, a *app) *am.ConfigWatcher {
	path := am.ActiveConfigFile()
	if path == "" {
		return nil
	}
	log := logger.ComponentLogger("config")

	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		log.Warnw("Config watcher unavailable", logger.FieldFile, path, logger.FieldError, err)
		return nil
	}
	watcher.OnReload(func(cfg *am.Config) error {
		srv.SetAllowedOrigins(cfg.Server.AllowedOrigins)
		a.processor.SetDelay(cfg.Ingestion.ProcessDelay)
		log.Infow("Configuration reloaded",
			logger.FieldFile, path,
			"allowed_origins", cfg.Server.AllowedOrigins,
			"process_delay", cfg.Ingestion.ProcessDelay.String())
		return nil
	})
	watcher.Start()
	return watcher
}
