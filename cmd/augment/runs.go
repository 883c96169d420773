package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/augment/internal/storage"
	"github.com/michaelbrown/augment/internal/storage/sqlite"
)

var (
	statusFilter  string
	sessionFilter string
	limitFlag     int
	exportFormat  string
	exportOutput  string
	forceFlag     bool
)

var runsCmd = &cobra.Command{
	Use:     "runs",
	Aliases: []string{"run", "r"},
	Short:   "Inspect the run journal",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and its tool invocations",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run as markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsExport,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd, runsExportCmd)

	runsListCmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (running, completed, failed)")
	runsListCmd.Flags().StringVar(&sessionFilter, "session", "", "Filter by server session id")
	runsListCmd.Flags().IntVar(&limitFlag, "limit", 20, "Max runs to show")

	runsExportCmd.Flags().StringVar(&exportFormat, "format", "md", "Export format: md or json")
	runsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	runsDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")
}

func openStore() (storage.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return sqlite.Open(cfg.Storage.DBPath)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runRunsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context(), storage.RunListOptions{
		Status:    storage.RunStatus(statusFilter),
		SessionID: sessionFilter,
		Limit:     limitFlag,
	})
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	fmt.Printf("%-10s %-10s %-40s %-15s %-7s %s\n", "ID", "STATUS", "PROMPT", "MODEL", "CYCLES", "STARTED")
	fmt.Println(strings.Repeat("─", 100))

	for _, r := range runs {
		prompt := strings.Join(strings.Fields(r.Prompt), " ")
		if len(prompt) > 38 {
			prompt = prompt[:38] + ".."
		}

		model := r.Model
		if len(model) > 13 {
			model = model[:13] + ".."
		}

		fmt.Printf("%-10s %-10s %-40s %-15s %-7d %s\n",
			shortID(r.ID), r.Status, prompt, model, r.Cycles, timeAgo(r.StartedAt))
	}

	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return lookupError(args[0], err)
	}

	fmt.Printf("Run:      %s\n", run.ID)
	fmt.Printf("Status:   %s\n", run.Status)
	fmt.Printf("Model:    %s\n", run.Model)
	if run.Profile != "" {
		fmt.Printf("Profile:  %s\n", run.Profile)
	}
	if run.SessionID != "" {
		fmt.Printf("Session:  %s\n", run.SessionID)
	}
	fmt.Printf("Cycles:   %d\n", run.Cycles)
	fmt.Printf("Started:  %s\n", run.StartedAt.Format(time.RFC3339))
	if !run.FinishedAt.IsZero() {
		fmt.Printf("Finished: %s (%s)\n", run.FinishedAt.Format(time.RFC3339),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}

	invocations, err := store.ListToolInvocations(ctx, run.ID)
	if err != nil {
		return err
	}

	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("\n%syou>%s %s\n", colorCyan, colorReset, truncate(run.Prompt, 200))
	for _, inv := range invocations {
		fmt.Printf("  %s⚡ %s%s", colorYellow, inv.Tool, colorReset)
		if inv.NotFound {
			fmt.Printf(" (not found)")
		} else {
			fmt.Printf(" via %s, %s", inv.Provider, inv.Duration.Round(time.Millisecond))
		}
		fmt.Println()
		fmt.Printf("  %s│ %s%s\n", colorGray, truncate(inv.Result, 100), colorReset)
	}
	if run.Error != "" {
		fmt.Printf("\n%serror: %s%s\n", colorRed, run.Error, colorReset)
	} else if run.Answer != "" {
		fmt.Printf("\n%saugment>%s %s\n", colorGreen, colorReset, truncate(run.Answer, 500))
	}

	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	run, err := store.GetRun(ctx, args[0])
	if err != nil {
		return lookupError(args[0], err)
	}

	if !forceFlag {
		fmt.Printf("Delete run %s - %q? [y/N] ", shortID(run.ID), truncate(run.Prompt, 40))
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := store.DeleteRun(ctx, run.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted run %s\n", shortID(run.ID))
	return nil
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	output, err := exportRun(cmd.Context(), store, args[0], exportFormat)
	if err != nil {
		return err
	}

	if exportOutput != "" {
		return os.WriteFile(exportOutput, []byte(output), 0o644)
	}

	fmt.Print(output)
	return nil
}

// exportRun renders run id in the given format ("md" or "json").
func exportRun(ctx context.Context, store storage.Store, id, format string) (string, error) {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return "", lookupError(id, err)
	}

	invocations, err := store.ListToolInvocations(ctx, run.ID)
	if err != nil {
		return "", err
	}

	switch format {
	case "json":
		data, err := storage.ExportJSON(run, invocations)
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	case "md", "markdown", "":
		return storage.ExportMarkdown(run, invocations), nil
	default:
		return "", fmt.Errorf("unknown export format: %s", format)
	}
}

func lookupError(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("run %s not found", id)
	}
	return err
}
