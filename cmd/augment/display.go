package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/michaelbrown/augment/internal/agent"
	"github.com/michaelbrown/augment/internal/llm"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

const previewLines = 8

// attachPrinter streams the agent's text and tool activity to w.
func attachPrinter(a *agent.Agent, w io.Writer) {
	a.OnTextDelta = func(delta string) {
		fmt.Fprint(w, delta)
	}
	a.OnToolCall = func(call llm.ToolCall) {
		fmt.Fprintf(w, "\n  %s⚡ Tool: %s%s\n", colorYellow,
			agent.FormatToolCall(call.Function.Name, call.Function.Arguments), colorReset)
	}
	a.OnToolResult = func(r agent.ToolResult) {
		printPreview(w, r.Content)
		fmt.Fprintln(w)
	}
}

// printPreview prints the first lines of a tool result.
func printPreview(w io.Writer, content string) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	shown := lines
	if len(shown) > previewLines {
		shown = shown[:previewLines]
	}
	for _, line := range shown {
		fmt.Fprintf(w, "  %s│ %s%s\n", colorGray, line, colorReset)
	}
	if len(lines) > previewLines {
		fmt.Fprintf(w, "  %s│ ... (%d more lines)%s\n", colorGray, len(lines)-previewLines, colorReset)
	}
}

func printToolList(w io.Writer, defs []llm.ToolDef) {
	if len(defs) == 0 {
		fmt.Fprintln(w, "No tools available.")
		return
	}
	for _, d := range defs {
		desc := firstLine(d.Description)
		if desc == "" {
			fmt.Fprintf(w, "  %s\n", d.Name)
			continue
		}
		fmt.Fprintf(w, "  %-24s %s\n", d.Name, truncate(desc, 70))
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
