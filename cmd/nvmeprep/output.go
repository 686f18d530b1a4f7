package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/nvmeprep/internal/app"
	"github.com/felixgeelhaar/nvmeprep/internal/domain/engine"
)

// Report colors (Catppuccin Mocha inspired).
var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#40a02b", Dark: "#a6e3a1"} // Green
	colorWarning = lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"} // Yellow
	colorError   = lipgloss.AdaptiveColor{Light: "#d20f39", Dark: "#f38ba8"} // Red
	colorInfo    = lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"} // Blue
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6c6f85", Dark: "#6c7086"} // Overlay0

	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	infoStyle    = lipgloss.NewStyle().Foreground(colorInfo)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

// outcomeGlyph maps an outcome to its report marker and style.
func outcomeGlyph(outcome engine.Outcome, warning bool) string {
	switch outcome {
	case engine.OutcomeSkipped:
		if warning {
			return warningStyle.Render("~")
		}
		return successStyle.Render("✓")
	case engine.OutcomeApplied:
		if warning {
			return warningStyle.Render("~")
		}
		return successStyle.Render("+")
	case engine.OutcomeWouldApply:
		return infoStyle.Render("→")
	case engine.OutcomeRebootRequired:
		return warningStyle.Render("↻")
	case engine.OutcomeFailed:
		if warning {
			return warningStyle.Render("!")
		}
		return errorStyle.Render("✗")
	}
	return "?"
}

// renderResult formats one step's report line.
func renderResult(r engine.StepResult) string {
	line := fmt.Sprintf("  %s %s %s",
		outcomeGlyph(r.Outcome(), r.Warning()),
		r.StepID().String(),
		mutedStyle.Render(fmt.Sprintf("[%s, %s]", r.Outcome(), r.Duration().Round(time.Millisecond))))

	if r.Note() != "" {
		line += "\n      " + mutedStyle.Render(r.Note())
	}
	if r.Error() != nil {
		style := errorStyle
		if r.Warning() {
			style = warningStyle
		}
		line += "\n      " + style.Render(r.Error().Error())
	}
	return line
}

// renderVerdict formats the run's closing line.
func renderVerdict(report *engine.Report) string {
	s := report.Summary()
	counts := fmt.Sprintf("%d steps: %d skipped, %d applied, %d failed",
		s.Total, s.Skipped, s.Applied, s.Failed)
	if s.WouldApply > 0 {
		counts += fmt.Sprintf(", %d would apply", s.WouldApply)
	}

	switch report.Verdict() {
	case engine.VerdictSuccess:
		return boldStyle.Render(successStyle.Render("Host ready.")) + " " + mutedStyle.Render(counts)
	case engine.VerdictDegraded:
		return boldStyle.Render(warningStyle.Render("Host ready with warnings.")) + " " + mutedStyle.Render(counts)
	case engine.VerdictRebootRequired:
		return boldStyle.Render(warningStyle.Render("Reboot required.")) +
			" Re-run nvmeprep after rebooting to finish provisioning."
	case engine.VerdictFailed:
		return boldStyle.Render(errorStyle.Render("Provisioning failed.")) + " " + mutedStyle.Render(counts)
	}
	return counts
}

// printReport writes the full run report.
func printReport(w io.Writer, report *engine.Report) {
	fmt.Fprintf(w, "Run %s\n", mutedStyle.Render(report.RunID()))
	for _, r := range report.Results() {
		fmt.Fprintln(w, renderResult(r))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderVerdict(report))
}

// printFindings writes the doctor probe results.
func printFindings(w io.Writer, findings []app.Finding) {
	for _, f := range findings {
		glyph := errorStyle.Render("✗")
		if f.OK {
			glyph = successStyle.Render("✓")
		}
		fmt.Fprintf(w, "  %s %-16s %s\n", glyph, f.Name, mutedStyle.Render(f.Detail))
	}
}
