package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/augment/internal/bootstrap"
	"github.com/michaelbrown/augment/internal/storage"
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Answer a single query and exit",
	Long: `Send one query to the agent, stream the answer to stdout and exit.
Tool calls made along the way are shown as they happen.

Examples:
  augment ask "what files are in the project root?"
  augment ask --profile research "summarize https://example.com"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadBackendConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, buildOptions(cmd), log)
	if err != nil {
		return err
	}
	defer rt.Agent.Close(context.WithoutCancel(ctx))

	store := openJournalStore(cfg, log)
	defer closeStore(store)
	journal := storage.NewJournal(store, log)

	attachPrinter(rt.Agent, os.Stdout)

	prompt := strings.Join(args, " ")
	run := journal.Begin(ctx, "", rt.Profile, rt.Model, prompt)
	res, err := rt.Agent.Run(ctx, prompt)
	journal.Finish(context.WithoutCancel(ctx), run, res, err)
	fmt.Println()

	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return nil
}
