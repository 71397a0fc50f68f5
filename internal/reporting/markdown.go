package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Token Analysis Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Tokens | %d |\n", r.Total))
	sb.WriteString(fmt.Sprintf("| Pre-peak | %d |\n", r.PrePeakCount))
	sb.WriteString(fmt.Sprintf("| Post-peak | %d |\n", r.PostPeakCount))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", r.FailureCount()))
	sb.WriteString("\n")

	if len(r.Failures) > 0 {
		labels := make([]string, 0, len(r.Failures))
		for label := range r.Failures {
			labels = append(labels, label)
		}
		sort.Strings(labels)

		sb.WriteString("### Failures\n\n")
		for _, label := range labels {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", label, r.Failures[label]))
		}
		sb.WriteString("\n")
	}

	// Verdicts
	sb.WriteString("## Verdicts\n\n")
	if len(r.Rows) == 0 {
		sb.WriteString("No tokens analyzed.\n")
		return sb.String()
	}
	sb.WriteString("| Mint | Verdict | Confidence | Days | Last Close | Source |\n")
	sb.WriteString("|------|---------|------------|------|------------|--------|\n")
	for _, row := range r.Rows {
		if row.Verdict == "" {
			sb.WriteString(fmt.Sprintf("| %s | %s | - | - | - | - |\n", row.Mint, row.Outcome))
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %.4f | %d | %g | %s |\n",
			row.Mint, row.Verdict, row.Confidence, row.DaysOfData, row.LastClose, row.Source))
	}
	sb.WriteString("\n")

	return sb.String()
}
