// Package output renders envtrack data for the terminal: history, dependency
// and drift tables, validation failures, plus progress indicators for long
// package-manager runs.
//
// Tables use plain columns and add ANSI colour only when stdout is a terminal
// and NO_COLOR is unset.
package output

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/envtrack/internal/environment"
	"github.com/blackwell-systems/envtrack/internal/pkgs"
	"github.com/blackwell-systems/envtrack/internal/store"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// now is replaced in tests.
var now = time.Now

// RenderHistoryTable renders history entries oldest first, numbered from 1.
func RenderHistoryTable(entries []environment.Entry) string {
	if len(entries) == 0 {
		return "No history recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-4s %-16s %-8s %-6s %s\n", "#", "When", "Kind", "Eco", "Command"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for i, e := range entries {
		sb.WriteString(fmt.Sprintf("%-4d %-16s %-8s %-6s %s\n",
			i+1,
			relativeTime(e.Timestamp),
			e.Kind,
			e.Ecosystem,
			e.Log))
	}
	return sb.String()
}

// RenderDependencyTable renders the snapshot of every ecosystem in ecosystems,
// direct dependencies marked with "*".
func RenderDependencyTable(deps environment.Snapshot, ecosystems ...pkgs.Ecosystem) string {
	if len(ecosystems) == 0 {
		ecosystems = pkgs.Ecosystems
	}

	var sb strings.Builder
	total := 0
	for _, eco := range ecosystems {
		sorted := deps.Sorted(eco)
		if len(sorted) == 0 {
			continue
		}
		if total > 0 {
			sb.WriteString("\n")
		}
		total += len(sorted)

		sb.WriteString(fmt.Sprintf("%s (%d)\n", strings.ToUpper(string(eco)), len(sorted)))
		sb.WriteString(fmt.Sprintf("  %-32s %-16s %s\n", "Package", "Version", "Channel"))
		for _, d := range sorted {
			name := truncate(d.Name, 30)
			if d.Direct {
				name = "* " + name
			} else {
				name = "  " + name
			}
			sb.WriteString(fmt.Sprintf("  %-32s %-16s %s\n", name, truncate(d.Version, 16), d.Channel))
		}
	}

	if total == 0 {
		return "No dependencies recorded.\n"
	}
	return sb.String()
}

// RenderDriftTable renders out-of-band changes per ecosystem.
func RenderDriftTable(drift []environment.Drift) string {
	if len(drift) == 0 {
		return colorize(colorGreen, "✓ No drift: installed packages match the recorded snapshot.") + "\n"
	}

	var sb strings.Builder
	for i, d := range drift {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(string(d.Ecosystem))))
		for _, dep := range d.Added {
			sb.WriteString(colorize(colorGreen, fmt.Sprintf("  + %-30s %s", dep.Name, dep.Version)) + "\n")
		}
		for _, dep := range d.Removed {
			sb.WriteString(colorize(colorRed, fmt.Sprintf("  - %-30s %s", dep.Name, dep.Version)) + "\n")
		}
		for _, c := range d.Changed {
			sb.WriteString(colorize(colorYellow, fmt.Sprintf("  ~ %-30s %s -> %s", c.Name, c.From, c.To)) + "\n")
		}
	}
	return sb.String()
}

// RenderEnvironmentTable renders the environments known to the store.
func RenderEnvironmentTable(envs []*store.EnvironmentSummary) string {
	if len(envs) == 0 {
		return "No environments tracked.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-24s %-8s %-16s %s\n", "Environment", "Entries", "Updated", "ID"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")
	for _, e := range envs {
		sb.WriteString(fmt.Sprintf("%-24s %-8d %-16s %s\n",
			truncate(e.Name, 24),
			e.Entries,
			relativeTime(e.UpdatedAt),
			colorize(colorGray, e.ID)))
	}
	return sb.String()
}

// RenderError explains dependency and validation failures line by line and
// falls back to the error text for anything else.
func RenderError(err error) string {
	var depErr *environment.DependencyError
	if errors.As(err, &depErr) {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Nothing was removed: %d %s package(s) are not installed in %s:\n",
			len(depErr.Missing), depErr.Ecosystem, depErr.Env))
		for _, name := range depErr.Missing {
			sb.WriteString("  - " + name + "\n")
		}
		return sb.String()
	}

	var verr *environment.ValidationError
	if errors.As(err, &verr) {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("The %s package manager did not do what was asked in %s; history was not updated.\n",
			verr.Ecosystem, verr.Env))
		for _, name := range verr.Missing {
			sb.WriteString(colorize(colorRed, "  missing    "+name) + "\n")
		}
		for _, name := range verr.Unexpected {
			sb.WriteString(colorize(colorRed, "  still here "+name) + "\n")
		}
		for _, m := range verr.Mismatched {
			sb.WriteString(colorize(colorYellow, fmt.Sprintf("  version    %s: wanted %s, got %s", m.Name, m.Requested, m.Installed)) + "\n")
		}
		return sb.String()
	}

	return err.Error() + "\n"
}

func relativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now(), "ago", "from now")
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
