package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/augment/internal/bootstrap"
	"github.com/michaelbrown/augment/internal/logging"
	"github.com/michaelbrown/augment/internal/server"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Augment HTTP server",
	Long: `Start the HTTP server with REST and WebSocket endpoints under /api.
Every session created through the API gets its own agent and tool servers.

Examples:
  augment serve
  augment serve --port 9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadBackendConfig()
	if err != nil {
		return err
	}

	store := openJournalStore(cfg, log)
	defer closeStore(store)

	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(bootstrap.NewBuilder(cfg, log), store, logging.Component(log, "server"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()

	if err := srv.Start(port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
