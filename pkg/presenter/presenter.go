// Package presenter renders CLI output: status lines, tables and execution
// results, with color support and a quiet mode.
package presenter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
)

// ColorMode selects when output is colored
type ColorMode int

const (
	// ColorAuto lets fatih/color detect a terminal
	ColorAuto ColorMode = iota
	// ColorAlways forces color
	ColorAlways
	// ColorNever disables color
	ColorNever
)

// TerminalPresenter writes to an output and an error stream
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	colorMode   ColorMode
	quiet       bool
}

// New creates a presenter on stdout and stderr
func New() *TerminalPresenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions creates a presenter with custom streams and color mode
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	}
	return &TerminalPresenter{output: output, errorOutput: errorOutput, colorMode: colorMode}
}

// detectColorMode honours NO_COLOR, then SKILLRT_COLOR
func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}
	switch os.Getenv("SKILLRT_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error writes err to the error stream. Errors are printed in quiet mode too.
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}
	c := color.New(color.FgRed, color.Bold)
	if context != "" {
		c.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
		return
	}
	c.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
}

// Success writes a success line
func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgGreen, color.Bold).Fprintf(p.output, "✓ %s\n", message)
}

// Warning writes a warning line
func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgYellow, color.Bold).Fprintf(p.output, "⚠ %s\n", message)
}

// Info writes a plain line
func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.output, message)
}

// Section writes an underlined header
func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}
	c := color.New(color.Bold)
	c.Fprintf(p.output, "%s\n", title)
	c.Fprintf(p.output, "%s\n", strings.Repeat("-", len(title)))
}

// Separator writes a horizontal rule
func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}
	color.New(color.Faint).Fprintf(p.output, "%s\n", strings.Repeat("-", 60))
}

// Table writes rows aligned under headers
func (p *TerminalPresenter) Table(headers []string, rows [][]string) {
	if p.quiet {
		return
	}
	w := tabwriter.NewWriter(p.output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// Result summarises an execution: outcome, attempts, duration, the error and
// the hook chains that ran.
func (p *TerminalPresenter) Result(r skills.SkillResult) {
	if r.Success {
		p.Success(fmt.Sprintf("%s succeeded in %s (%s)", r.SkillName, FormatDuration(r.Duration), attemptsLabel(r.Attempts)))
	} else {
		p.Error(r.Err(), fmt.Sprintf("%s failed after %s (%s)", r.SkillName, FormatDuration(r.Duration), attemptsLabel(r.Attempts)))
	}
	if p.quiet {
		return
	}
	for _, h := range r.Hooks {
		line := fmt.Sprintf("  %s hooks: ran %s", h.Trigger, joinOrNone(h.Executed()))
		if failed := h.Failed(); len(failed) > 0 {
			color.New(color.FgYellow).Fprintf(p.output, "%s, failed %s\n", line, strings.Join(failed, ", "))
			continue
		}
		fmt.Fprintln(p.output, line)
	}
	fmt.Fprintf(p.output, "  execution id: %s\n", r.ExecutionID)
}

// SetQuiet enables or disables quiet mode
func (p *TerminalPresenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// IsQuiet reports whether quiet mode is enabled
func (p *TerminalPresenter) IsQuiet() bool {
	return p.quiet
}

// FormatDuration rounds d for display
func FormatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(time.Microsecond).String()
	}
}

func attemptsLabel(n int) string {
	if n == 1 {
		return "1 attempt"
	}
	return fmt.Sprintf("%d attempts", n)
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

var defaultPresenter = New()

// Error writes err using the default presenter
func Error(err error, context string) { defaultPresenter.Error(err, context) }

// Success writes a success line using the default presenter
func Success(message string) { defaultPresenter.Success(message) }

// Warning writes a warning line using the default presenter
func Warning(message string) { defaultPresenter.Warning(message) }

// Info writes a plain line using the default presenter
func Info(message string) { defaultPresenter.Info(message) }

// Section writes a header using the default presenter
func Section(title string) { defaultPresenter.Section(title) }

// Separator writes a rule using the default presenter
func Separator() { defaultPresenter.Separator() }

// Table writes a table using the default presenter
func Table(headers []string, rows [][]string) { defaultPresenter.Table(headers, rows) }

// Result summarises an execution using the default presenter
func Result(r skills.SkillResult) { defaultPresenter.Result(r) }

// SetQuiet toggles quiet mode of the default presenter
func SetQuiet(quiet bool) { defaultPresenter.SetQuiet(quiet) }

// IsQuiet reports the quiet mode of the default presenter
func IsQuiet() bool { return defaultPresenter.IsQuiet() }
