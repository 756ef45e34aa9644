// Package verifier runs the audit pass that follows a worker phase. A
// single tool invocation reviews items marked done and may add new work;
// comparing scans taken before and after tells the spiral loop whether
// to restart the workers.
package verifier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/afkcode/internal/checklist"
	"github.com/Iron-Ham/afkcode/internal/logging"
	"github.com/Iron-Ham/afkcode/internal/prompt"
)

// Outcome classifies a verification run.
type Outcome int

const (
	// NoNewWork means the incomplete count did not grow.
	NoNewWork Outcome = iota
	// FoundWork means the verifier added incomplete items.
	FoundWork
)

func (o Outcome) String() string {
	if o == FoundWork {
		return "found_work"
	}
	return "no_new_work"
}

// Result describes one verification run.
type Result struct {
	Outcome Outcome
	// NewItems is the growth in the incomplete count when Outcome is FoundWork.
	NewItems int
	Before   *checklist.ScanResult
	After    *checklist.ScanResult
}

// Chain invokes the verifier prompt.
type Chain interface {
	Invoke(ctx context.Context, prompt string) (stdout, stderr string, err error)
}

// Committer records checklist edits. *git.Repo satisfies it.
type Committer interface {
	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string) error
}

// Config holds verifier settings.
type Config struct {
	// BasePath is the directory scanned for checklists.
	BasePath string
	// PromptFile replaces prompt.DefaultVerifier when set.
	PromptFile      string
	CompletionToken string
	Policy          checklist.Policy
}

// Verifier runs verification passes.
type Verifier struct {
	cfg       Config
	committer Committer
	logger    *logging.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithCommitter commits checklist edits after each run.
func WithCommitter(c Committer) Option {
	return func(v *Verifier) { v.committer = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// New creates a Verifier.
func New(cfg Config, opts ...Option) *Verifier {
	v := &Verifier{cfg: cfg, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Template returns the verifier template, read from PromptFile when set.
func (v *Verifier) Template() (string, error) {
	if v.cfg.PromptFile == "" {
		return prompt.DefaultVerifier, nil
	}
	data, err := os.ReadFile(v.cfg.PromptFile)
	if err != nil {
		return "", fmt.Errorf("read verifier prompt: %w", err)
	}
	return string(data), nil
}

// BuildPrompt renders the template against scan.
func (v *Verifier) BuildPrompt(scan *checklist.ScanResult) (string, error) {
	tmpl, err := v.Template()
	if err != nil {
		return "", err
	}
	return prompt.Verifier(tmpl, scan, v.cfg.CompletionToken), nil
}

// Run scans, invokes chain with the verifier prompt, scans again and
// compares the incomplete counts. Scanner, prompt and chain failures are
// returned; commit failures are only reported to sink.
func (v *Verifier) Run(ctx context.Context, chain Chain, sink logging.Sink) (*Result, error) {
	sink.Message("Starting verification phase...")

	before, err := checklist.Scan(v.cfg.BasePath, v.cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("scan before verification: %w", err)
	}
	sink.Message(fmt.Sprintf("Before verification: %d incomplete items across %d files",
		before.TotalIncomplete, before.TotalFiles()))

	p, err := v.BuildPrompt(before)
	if err != nil {
		return nil, err
	}

	sink.Message("Running verifier LLM...")
	stdout, stderr, err := chain.Invoke(ctx, p)
	if err != nil {
		return nil, err
	}
	sink.Output("verifier", stdout, stderr)

	after, err := checklist.Scan(v.cfg.BasePath, v.cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("scan after verification: %w", err)
	}
	sink.Message(fmt.Sprintf("After verification: %d incomplete items across %d files",
		after.TotalIncomplete, after.TotalFiles()))

	result := &Result{Outcome: NoNewWork, Before: before, After: after}
	switch {
	case after.TotalIncomplete > before.TotalIncomplete:
		result.Outcome = FoundWork
		result.NewItems = after.TotalIncomplete - before.TotalIncomplete
		sink.Message(fmt.Sprintf("Verifier found %d new work items", result.NewItems))
	case after.TotalIncomplete > 0:
		sink.Message(fmt.Sprintf("Verifier did not add new items, but %d incomplete items remain", after.TotalIncomplete))
	default:
		sink.Message("Verifier confirmed: all work is complete")
	}

	v.logger.Info("verification complete",
		"outcome", result.Outcome.String(),
		"before", before.TotalIncomplete,
		"after", after.TotalIncomplete,
	)

	if v.committer != nil {
		v.commit(ctx, result, sink)
	}
	return result, nil
}

// commit stages every checklist and commits. Failures are warnings.
func (v *Verifier) commit(ctx context.Context, result *Result, sink logging.Sink) {
	var paths []string
	if result.After.RootFile != "" {
		paths = append(paths, result.After.RootFile)
	}
	paths = append(paths, result.After.ComponentFiles...)
	if len(paths) == 0 {
		return
	}
	for i, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			paths[i] = abs
		}
	}

	if err := v.committer.Add(ctx, paths...); err != nil {
		sink.Warning(fmt.Sprintf("Warning: git add failed: %v", err))
		return
	}

	msg := "Verifier: audit checklists"
	if result.Outcome == FoundWork {
		msg = fmt.Sprintf("Verifier: add %d work items", result.NewItems)
	}
	if err := v.committer.Commit(ctx, msg); err != nil {
		sink.Warning(fmt.Sprintf("Warning: git commit failed (likely no changes to commit): %v", err))
		return
	}
	sink.Message("Committed verifier checklist changes.")
}
