// Package testutil provides testing utilities for afkcode tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// SetupTestRepo creates a temporary git repository for testing.
// Returns the path to the repository. The repository is automatically
// cleaned up when the test completes.
func SetupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	if err := runGit(dir, "init"); err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}
	if err := runGit(dir, "config", "user.email", "test@afkcode.dev"); err != nil {
		t.Fatalf("failed to configure git email: %v", err)
	}
	if err := runGit(dir, "config", "user.name", "afkcode Test"); err != nil {
		t.Fatalf("failed to configure git name: %v", err)
	}

	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte("# Test Repository\n"), 0644); err != nil {
		t.Fatalf("failed to create README: %v", err)
	}
	if err := runGit(dir, "add", "."); err != nil {
		t.Fatalf("failed to stage files: %v", err)
	}
	if err := runGit(dir, "commit", "-m", "Initial commit"); err != nil {
		t.Fatalf("failed to create initial commit: %v", err)
	}

	return dir
}

// WriteFiles writes files relative to dir, creating parent directories.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for path, content := range files {
		fullPath := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", path, err)
		}
	}
}

// SetupChecklistDir creates a temp directory holding the given checklist
// files and returns its path.
func SetupChecklistDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	WriteFiles(t, dir, files)
	return dir
}

// ReadFile returns the content of path, failing the test on error.
func ReadFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// GetCommitCount returns the number of commits in the repository.
func GetCommitCount(t *testing.T, repoDir string) int {
	t.Helper()

	cmd := exec.Command("git", "rev-list", "--count", "HEAD")
	cmd.Dir = repoDir
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("failed to count commits: %v", err)
	}

	count, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		t.Fatalf("failed to parse commit count: %v", err)
	}
	return count
}

// LastCommitMessage returns the subject of HEAD.
func LastCommitMessage(t *testing.T, repoDir string) string {
	t.Helper()

	cmd := exec.Command("git", "log", "-1", "--format=%s")
	cmd.Dir = repoDir
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("failed to read last commit: %v", err)
	}
	return strings.TrimSpace(string(output))
}

// HasUncommittedChanges returns true if the repository has uncommitted changes.
func HasUncommittedChanges(t *testing.T, repoDir string) bool {
	t.Helper()

	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = repoDir
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("failed to check git status: %v", err)
	}
	return len(output) > 0
}

// SkipIfNoGit skips the test if git is not installed.
func SkipIfNoGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping test")
	}
}

// SkipIfNoShell skips the test if /bin/sh is not available.
func SkipIfNoShell(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH, skipping test")
	}
}

// RecordingSink captures transcript traffic for assertions.
type RecordingSink struct {
	mu       sync.Mutex
	messages []string
	warnings []string
	outputs  []string
}

// Message records msg.
func (s *RecordingSink) Message(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Warning records msg.
func (s *RecordingSink) Warning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, msg)
}

// Output records the label of a tool output block.
func (s *RecordingSink) Output(label, _, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, label)
}

// Messages returns a copy of the recorded messages.
func (s *RecordingSink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

// Warnings returns a copy of the recorded warnings.
func (s *RecordingSink) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.warnings...)
}

// Outputs returns the labels of recorded output blocks in order.
func (s *RecordingSink) Outputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.outputs...)
}

// HasMessage reports whether any message or warning contains substr.
func (s *RecordingSink) HasMessage(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range slices.Concat(s.messages, s.warnings) {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// FakeClock is a manually advanced time source.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock fixed at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// runGit runs a git command in the specified directory.
func runGit(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=afkcode Test",
		"GIT_AUTHOR_EMAIL=test@afkcode.dev",
		"GIT_COMMITTER_NAME=afkcode Test",
		"GIT_COMMITTER_EMAIL=test@afkcode.dev",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &gitError{args: args, output: output, err: err}
	}
	return nil
}

type gitError struct {
	args   []string
	output []byte
	err    error
}

func (e *gitError) Error() string {
	return "git " + strings.Join(e.args, " ") + ": " + e.err.Error() + "\n" + string(e.output)
}

func (e *gitError) Unwrap() error {
	return e.err
}
