package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExportMarkdown renders a run and its tool invocations as a markdown document.
func ExportMarkdown(run *Run, invocations []ToolInvocation) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Run %s\n\n", run.ID))
	b.WriteString(fmt.Sprintf("- **Model:** %s\n", run.Model))
	if run.Profile != "" {
		b.WriteString(fmt.Sprintf("- **Profile:** %s\n", run.Profile))
	}
	if run.SessionID != "" {
		b.WriteString(fmt.Sprintf("- **Session:** %s\n", run.SessionID))
	}
	b.WriteString(fmt.Sprintf("- **Started:** %s\n", run.StartedAt.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("- **Status:** %s\n", run.Status))
	b.WriteString(fmt.Sprintf("- **Cycles:** %d\n", run.Cycles))
	b.WriteString("\n---\n\n")

	b.WriteString(fmt.Sprintf("## Prompt\n\n%s\n\n", run.Prompt))

	for _, inv := range invocations {
		source := inv.Provider
		if inv.NotFound {
			source = "not found"
		}
		b.WriteString(fmt.Sprintf("**Tool Call:** `%s` (%s, %s)\n```json\n%s\n```\n\n",
			inv.Tool, source, inv.Duration.Round(time.Millisecond), inv.Arguments))
		b.WriteString(fmt.Sprintf("<details>\n<summary>Tool Result</summary>\n\n```\n%s\n```\n</details>\n\n", inv.Result))
	}

	if run.Error != "" {
		b.WriteString(fmt.Sprintf("## Error\n\n```\n%s\n```\n", run.Error))
	} else {
		b.WriteString(fmt.Sprintf("## Answer\n\n%s\n", run.Answer))
	}

	return b.String()
}

// ExportJSON renders a run and its tool invocations as formatted JSON.
func ExportJSON(run *Run, invocations []ToolInvocation) ([]byte, error) {
	export := struct {
		Run             *Run             `json:"run"`
		ToolInvocations []ToolInvocation `json:"tool_invocations"`
	}{
		Run:             run,
		ToolInvocations: invocations,
	}
	return json.MarshalIndent(export, "", "  ")
}
