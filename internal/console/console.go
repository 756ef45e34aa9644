// Package console renders the command-line surface: headers, per-worker
// prefixes and status summaries. Colour is used only when the output is a
// terminal and NO_COLOR is unset.
package console

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Iron-Ham/afkcode/internal/checklist"
)

const defaultWidth = 80

// Palette, one colour per worker cycling by id.
var (
	accent  = lipgloss.Color("#A78BFA")
	success = lipgloss.Color("#10B981")
	warning = lipgloss.Color("#F59E0B")
	muted   = lipgloss.Color("#9CA3AF")

	workerColors = []lipgloss.Color{
		lipgloss.Color("#60A5FA"),
		lipgloss.Color("#F472B6"),
		lipgloss.Color("#34D399"),
		lipgloss.Color("#FBBF24"),
		lipgloss.Color("#C084FC"),
		lipgloss.Color("#F87171"),
	}
)

// Console writes styled lines to an output and an error stream.
type Console struct {
	out   io.Writer
	err   io.Writer
	color bool
	width int
}

// New creates a Console. Colour and width are detected from out.
func New(out, err io.Writer) *Console {
	c := &Console{out: out, err: err, width: defaultWidth}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		c.color = os.Getenv("NO_COLOR") == ""
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			c.width = w
		}
	}
	return c
}

// Stdio is New(os.Stdout, os.Stderr).
func Stdio() *Console {
	return New(os.Stdout, os.Stderr)
}

// Out returns the output stream.
func (c *Console) Out() io.Writer { return c.out }

// Err returns the error stream.
func (c *Console) Err() io.Writer { return c.err }

// Color reports whether styling is applied.
func (c *Console) Color() bool { return c.color }

// Width is the terminal width, or 80 when unknown.
func (c *Console) Width() int { return c.width }

func (c *Console) render(style lipgloss.Style, s string) string {
	if !c.color {
		return s
	}
	return style.Render(s)
}

// Header prints a bold title followed by a rule.
func (c *Console) Header(title string) {
	rule := strings.Repeat("─", min(len(title)+4, c.width))
	_, _ = fmt.Fprintln(c.out, c.render(lipgloss.NewStyle().Bold(true).Foreground(accent), title))
	_, _ = fmt.Fprintln(c.out, c.render(lipgloss.NewStyle().Foreground(muted), rule))
}

// Info prints a plain line.
func (c *Console) Info(msg string) {
	_, _ = fmt.Fprintln(c.out, msg)
}

// Success prints a highlighted line.
func (c *Console) Success(msg string) {
	_, _ = fmt.Fprintln(c.out, c.render(lipgloss.NewStyle().Foreground(success), msg))
}

// Warn prints a highlighted line on the error stream.
func (c *Console) Warn(msg string) {
	_, _ = fmt.Fprintln(c.err, c.render(lipgloss.NewStyle().Foreground(warning), msg))
}

// Prefix returns the transcript prefix for name: "[worker N] " for a
// numeric worker id and "[name] " otherwise.
func (c *Console) Prefix(name string) string {
	label := name
	color := accent
	if id, err := strconv.Atoi(name); err == nil {
		label = "worker " + name
		color = workerColors[id%len(workerColors)]
	}
	return c.render(lipgloss.NewStyle().Bold(true).Foreground(color), "["+label+"]") + " "
}

// Scan prints a scanner result: the summary line, then each file with
// incomplete items and its count. Paths are shown relative to base when
// possible.
func (c *Console) Scan(base string, scan *checklist.ScanResult) {
	if scan.IsComplete() {
		c.Success(scan.Summary())
		return
	}
	c.Warn(scan.Summary())

	counts := scan.IncompleteByFile()
	files := scan.ComponentFiles
	if scan.RootFile != "" {
		files = append([]string{scan.RootFile}, files...)
	}

	label := lipgloss.NewStyle().Foreground(muted)
	for _, f := range files {
		n := counts[f]
		if n == 0 {
			continue
		}
		_, _ = fmt.Fprintf(c.out, "  %s %s\n",
			c.render(label, fmt.Sprintf("%4d", n)),
			relative(base, f))
	}
}

func relative(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
