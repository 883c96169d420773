package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/augment/internal/bootstrap"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools discovered from the configured servers",
	Long: `Connect to every enabled tool server (or the servers of --profile),
list the tools they advertise and disconnect again. When two servers
advertise the same name, only the first is listed.`,
	Args: cobra.NoArgs,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	rt, err := bootstrap.Build(cmd.Context(), cfg, buildOptions(cmd), log)
	if err != nil {
		return err
	}
	defer rt.Agent.Close(context.Background())

	for _, s := range rt.Servers {
		if !s.Enabled {
			continue
		}
		fmt.Printf("%s%s%s  %s\n", colorCyan, s.Name, colorReset, s.Command)
	}
	fmt.Println()
	printToolList(os.Stdout, rt.Agent.Tools())
	return nil
}
