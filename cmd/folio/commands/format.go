package commands

import (
	"fmt"

	"github.com/wonny/folio/backend/internal/contracts"
)

// PrintHeader prints a formatted command header
func PrintHeader(title string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Println()
	fmt.Printf("✅ %s\n", message)
}

// printRun prints one job_runs row on a single line
func printRun(run contracts.JobRun) {
	if run.RunID == "" {
		return
	}
	icon := "✅"
	switch run.Status {
	case contracts.JobFailed:
		icon = "❌"
	case contracts.JobRunning:
		icon = "⏳"
	}
	manual := ""
	if run.Manual {
		manual = " (manual)"
	}
	fmt.Printf("   %s %s  %-7s processed=%d failed=%d %dms%s\n",
		icon, run.StartedAt.Format("2006-01-02 15:04:05"), run.Status,
		run.ItemsProcessed, run.ItemsFailed, run.DurationMs, manual)
	if run.ErrorMessage != "" {
		fmt.Printf("      error: %s\n", run.ErrorMessage)
	}
}
