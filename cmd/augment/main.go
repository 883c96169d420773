package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/augment/internal/bootstrap"
	"github.com/michaelbrown/augment/internal/config"
	"github.com/michaelbrown/augment/internal/logging"
	"github.com/michaelbrown/augment/internal/storage"
	"github.com/michaelbrown/augment/internal/storage/sqlite"
)

var (
	configFlag      string
	modelFlag       string
	profileFlag     string
	systemFlag      string
	contextFileFlag string
	maxCyclesFlag   int
	logLevelFlag    string
	noJournalFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "augment",
	Short: "Augment - tool-augmented LLM agent",
	Long: `Augment connects an OpenAI-compatible model to the tools exposed by
MCP servers and runs the call/dispatch loop until the model answers.

Tool servers are configured in augment.yaml; the backend is configured with
OPENAI_API_KEY and OPENAI_BASE_URL.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", "", "Config file (default ./augment.yaml or ~/.augment/augment.yaml)")
	pf.StringVar(&modelFlag, "model", "", "Model to use (overrides config and profile)")
	pf.StringVar(&profileFlag, "profile", "", "Agent profile to use")
	pf.StringVar(&systemFlag, "system", "", "System prompt (overrides config and profile)")
	pf.StringVar(&contextFileFlag, "context-file", "", "File whose contents seed the conversation")
	pf.IntVar(&maxCyclesFlag, "max-cycles", 0, "Backend calls allowed per query (0 = unbounded)")
	pf.StringVar(&logLevelFlag, "log-level", "", "Log level: trace, debug, info, warn, error")
	pf.BoolVar(&noJournalFlag, "no-journal", false, "Do not record runs in the journal")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the logging flags.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("loading config: %w", err)
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	log := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, log, nil
}

// loadBackendConfig is loadConfig plus the checks a backend call needs.
func loadBackendConfig() (*config.Config, zerolog.Logger, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, log, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, log, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, log, nil
}

// buildOptions turns the persistent flags into agent overrides.
func buildOptions(cmd *cobra.Command) bootstrap.Options {
	opts := bootstrap.Options{
		Profile:      profileFlag,
		Model:        modelFlag,
		SystemPrompt: systemFlag,
		ContextFile:  contextFileFlag,
	}
	if cmd.Flags().Changed("max-cycles") {
		n := maxCyclesFlag
		opts.MaxCycles = &n
	}
	return opts
}

// openJournalStore opens the run journal, or returns nil when it is disabled.
func openJournalStore(cfg *config.Config, log zerolog.Logger) storage.Store {
	if noJournalFlag || !cfg.Storage.Enabled {
		return nil
	}
	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Storage.DBPath).Msg("run journal unavailable")
		return nil
	}
	return store
}

// closeStore closes a store that may be nil.
func closeStore(store storage.Store) {
	if store != nil {
		store.Close()
	}
}
