package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/augment/internal/agent"
	"github.com/michaelbrown/augment/internal/bootstrap"
	"github.com/michaelbrown/augment/internal/storage"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session with the agent",
	Long: `Start an interactive conversation. The conversation is kept across
queries until /reset or exit, and the agent can use every configured tool.

Examples:
  augment chat
  augment chat --profile coder
  augment chat --model gpt-4o --max-cycles 10`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

var errQuit = errors.New("quit")

func runChat(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadBackendConfig()
	if err != nil {
		return err
	}

	rt, err := bootstrap.Build(cmd.Context(), cfg, buildOptions(cmd), log)
	if err != nil {
		return err
	}
	a := rt.Agent
	defer a.Close(context.Background())

	store := openJournalStore(cfg, log)
	defer closeStore(store)
	journal := storage.NewJournal(store, log)

	fmt.Printf("Augment - Interactive Agent Chat\n")
	if rt.Profile != "" {
		fmt.Printf("Profile: %s\n", rt.Profile)
	}
	fmt.Printf("Model: %s | Tools: %d from %d server(s)\n", rt.Model, len(a.Tools()), len(rt.Servers))
	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	attachPrinter(a, os.Stdout)

	home, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          colorCyan + "you>" + colorReset + " ",
		HistoryFile:     filepath.Join(home, ".augment", "history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Ctrl+C cancels the query in flight, not the whole app. At the prompt
	// readline reports it as ErrInterrupt and we exit.
	var (
		mu        sync.Mutex
		reqCancel context.CancelFunc
	)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			mu.Lock()
			if reqCancel != nil {
				reqCancel()
			}
			mu.Unlock()
		}
	}()

	for {
		input, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if err := handleCommand(os.Stdout, input, a); errors.Is(err, errQuit) {
				return nil
			}
			continue
		}

		reqCtx, cancel := context.WithCancel(context.Background())
		mu.Lock()
		reqCancel = cancel
		mu.Unlock()

		fmt.Printf("\n%saugment>%s ", colorGreen, colorReset)
		run := journal.Begin(reqCtx, "", rt.Profile, rt.Model, input)
		res, err := a.Run(reqCtx, input)
		wasInterrupted := reqCtx.Err() != nil
		journal.Finish(context.Background(), run, res, err)

		mu.Lock()
		reqCancel = nil
		mu.Unlock()
		cancel()

		if err != nil {
			a.SettlePendingCalls("not executed: " + err.Error())
			if wasInterrupted {
				fmt.Println("\n(interrupted)")
				continue
			}
			fmt.Printf("\n%serror: %s%s\n\n", colorRed, err, colorReset)
			continue
		}

		fmt.Printf("\n\n")
	}
}

// handleCommand runs a slash command. It returns errQuit to end the session.
func handleCommand(w io.Writer, input string, a *agent.Agent) error {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/quit", "/exit", "/q":
		fmt.Fprintln(w, "Goodbye!")
		return errQuit
	case "/reset":
		a.Reset()
		fmt.Fprintln(w, "Conversation reset.")
	case "/history":
		fmt.Fprintln(w, a.ConversationJSON())
	case "/tools":
		printToolList(w, a.Tools())
	case "/help":
		fmt.Fprintln(w, "Commands:")
		fmt.Fprintln(w, "  /help     - Show this help")
		fmt.Fprintln(w, "  /tools    - List the tools the agent can call")
		fmt.Fprintln(w, "  /reset    - Clear conversation history")
		fmt.Fprintln(w, "  /history  - Show raw conversation history (JSON)")
		fmt.Fprintln(w, "  /quit     - Exit")
	default:
		fmt.Fprintf(w, "Unknown command: %s (try /help)\n", input)
	}
	fmt.Fprintln(w)
	return nil
}
