// Package git is a small best-effort wrapper around the git CLI, used to
// commit checklist edits made during verification.
package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/afkcode/internal/errors"
)

// CommandContext is exec.CommandContext, swappable in tests.
var CommandContext = exec.CommandContext

// FindGitRoot finds the root of the git repository by traversing up from startDir.
// It returns the directory containing .git (either a directory or a file for worktrees).
func FindGitRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", startDir, err)
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			if info.IsDir() || info.Mode().IsRegular() {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.NewNotFoundError("git repository", startDir)
		}
		dir = parent
	}
}

// Repo runs git commands in one working tree.
type Repo struct {
	dir string
}

// Open returns a Repo for the repository containing dir.
func Open(dir string) (*Repo, error) {
	root, err := FindGitRoot(dir)
	if err != nil {
		return nil, err
	}
	return &Repo{dir: root}, nil
}

// Dir returns the repository root.
func (r *Repo) Dir() string {
	return r.dir
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("git %s: %w\n%s", strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// Add stages paths.
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := r.run(ctx, append([]string{"add", "--"}, paths...)...)
	return err
}

// HasStagedChanges reports whether the index differs from HEAD.
func (r *Repo) HasStagedChanges(ctx context.Context) (bool, error) {
	cmd := CommandContext(ctx, "git", "diff", "--cached", "--quiet")
	cmd.Dir = r.dir
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("git diff --cached: %w", err)
}

// Commit records the index with message. A commit with nothing staged
// fails like git itself does.
func (r *Repo) Commit(ctx context.Context, message string) error {
	_, err := r.run(ctx, "commit", "-m", message)
	return err
}
