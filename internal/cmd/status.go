package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/afkcode/internal/checklist"
	"github.com/Iron-Ham/afkcode/internal/config"
	"github.com/Iron-Ham/afkcode/internal/console"
	"github.com/Iron-Ham/afkcode/internal/errors"
	"github.com/Iron-Ham/afkcode/internal/watch"
)

var statusCmd = &cobra.Command{
	Use:   "status [base-path]",
	Short: "Show incomplete checklist items",
	Long: `Scan every AGENTS.md under the base path (default: checkout.base_path)
and report how many items remain incomplete in each file.

With --watch, the report is printed again whenever a checklist changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var (
	statusFormat string
	statusWatch  bool
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "text", "output format: text, json or yaml")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "re-print when a checklist changes")
}

// statusReport is the json/yaml form of a scan.
type statusReport struct {
	BasePath        string       `json:"base_path" yaml:"base_path"`
	Summary         string       `json:"summary" yaml:"summary"`
	Complete        bool         `json:"complete" yaml:"complete"`
	TotalIncomplete int          `json:"total_incomplete" yaml:"total_incomplete"`
	Files           []fileStatus `json:"files" yaml:"files"`
}

type fileStatus struct {
	Path       string `json:"path" yaml:"path"`
	Root       bool   `json:"root,omitempty" yaml:"root,omitempty"`
	Incomplete int    `json:"incomplete" yaml:"incomplete"`
}

func newStatusReport(base string, scan *checklist.ScanResult) statusReport {
	counts := scan.IncompleteByFile()
	r := statusReport{
		BasePath:        base,
		Summary:         scan.Summary(),
		Complete:        scan.IsComplete(),
		TotalIncomplete: scan.TotalIncomplete,
		Files:           make([]fileStatus, 0, scan.TotalFiles()),
	}
	if scan.RootFile != "" {
		r.Files = append(r.Files, fileStatus{Path: scan.RootFile, Root: true, Incomplete: counts[scan.RootFile]})
	}
	for _, f := range scan.ComponentFiles {
		r.Files = append(r.Files, fileStatus{Path: f, Incomplete: counts[f]})
	}
	return r
}

func runStatus(cmd *cobra.Command, args []string) error {
	switch statusFormat {
	case "text", "json", "yaml":
	default:
		return errors.NewValidationError("unknown format, want text, json or yaml").
			WithField("format").WithValue(statusFormat)
	}

	cfg := config.Get()
	base := cfg.Checkout.BasePath
	if len(args) == 1 {
		base = args[0]
	}
	policy := scanPolicy(cfg)
	con := console.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

	if err := printStatus(con, base, policy, statusFormat); err != nil {
		return err
	}
	if !statusWatch {
		return nil
	}

	w, err := watch.New(base)
	if err != nil {
		return err
	}
	changed := make(chan struct{}, 1)
	w.SetChangeCallback(func([]string) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	w.Start()
	defer w.Stop()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			_, _ = fmt.Fprintln(con.Out())
			if err := printStatus(con, base, policy, statusFormat); err != nil {
				con.Warn(fmt.Sprintf("Warning: %v", err))
			}
		}
	}
}

func printStatus(con *console.Console, base string, policy checklist.Policy, format string) error {
	scan, err := checklist.Scan(base, policy)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		return writeJSON(con.Out(), newStatusReport(base, scan))
	case "yaml":
		return writeYAML(con.Out(), newStatusReport(base, scan))
	default:
		abs, err := filepath.Abs(base)
		if err != nil {
			abs = base
		}
		con.Header("Checklists under " + abs)
		con.Scan(base, scan)
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
