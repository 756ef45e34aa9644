// Package lease hands out checklist items to workers. A lease rewrites an
// item's marker to "[ip:<id>]" under a cross-process file lock so that no
// two workers, in this process or another, are given the same item.
package lease

import (
	"fmt"
	"math/rand/v2"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/Iron-Ham/afkcode/internal/checklist"
	"github.com/Iron-Ham/afkcode/internal/errors"
	"github.com/Iron-Ham/afkcode/internal/logging"
)

// Defaults for lock acquisition.
const (
	DefaultLockTimeout   = 30 * time.Second
	DefaultRetryInterval = 50 * time.Millisecond
)

// rewritePattern captures the "- " prefix, the marker and the rest of an
// item line. "[~]" is deliberately absent: it is never leased.
var rewritePattern = regexp.MustCompile(`^(\s*-\s*)\[([ xV]|ip(?::[a-f0-9]+)?|BLOCKED(?::[^\]]*)?)\](.*)$`)

// Result is the outcome of a checkout.
type Result struct {
	Items         []checklist.Item
	ModifiedFiles []string
}

// Manager performs checkouts and restores for one checklist directory.
type Manager struct {
	basePath      string
	lockTimeout   time.Duration
	retryInterval time.Duration
	now           func() time.Time
	rng           *rand.Rand
	logger        *logging.Logger
	writeFile     func(path, content string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) { m.lockTimeout = d }
}

// WithRetryInterval overrides DefaultRetryInterval.
func WithRetryInterval(d time.Duration) Option {
	return func(m *Manager) { m.retryInterval = d }
}

// WithClock replaces time.Now for lease id generation.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRand sets the random source used for selection.
func WithRand(rng *rand.Rand) Option {
	return func(m *Manager) { m.rng = rng }
}

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager rooted at basePath.
func NewManager(basePath string, opts ...Option) *Manager {
	m := &Manager{
		basePath:      basePath,
		lockTimeout:   DefaultLockTimeout,
		retryInterval: DefaultRetryInterval,
		now:           time.Now,
		logger:        logging.NopLogger(),
		writeFile:     WriteFileAtomic,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BasePath returns the checklist directory.
func (m *Manager) BasePath() string {
	return m.basePath
}

func (m *Manager) lock() (*FileLock, error) {
	fl := NewFileLock(m.basePath)
	if err := fl.LockTimeout(m.lockTimeout, m.retryInterval); err != nil {
		return nil, err
	}
	return fl, nil
}

// Checkout leases up to n items matching filters for workerID. Under the
// lock it re-parses every checklist, selects, validates the selection
// against disk and rewrites the chosen markers. A validation failure
// aborts the whole batch before any file is written.
func (m *Manager) Checkout(n int, filters checklist.Filters, workerID int) (result *Result, err error) {
	fl, err := m.lock()
	if err != nil {
		return nil, errors.NewLeaseError("checkout", err)
	}
	defer func() {
		if uerr := fl.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("release checklist lock: %w", uerr)
		}
	}()

	items, err := checklist.ParseAll(m.basePath)
	if err != nil {
		return nil, fmt.Errorf("parse checklists in %s: %w", m.basePath, err)
	}

	selected := checklist.Select(items, n, filters, m.rng)
	if len(selected) == 0 {
		return &Result{}, nil
	}
	return m.leaseLocked(selected, workerID)
}

// Lease validates and marks items that were selected earlier, for example
// by a caller that parsed the checklists itself. It takes the lock.
func (m *Manager) Lease(items []checklist.Item, workerID int) (result *Result, err error) {
	fl, err := m.lock()
	if err != nil {
		return nil, errors.NewLeaseError("lease", err)
	}
	defer func() {
		if uerr := fl.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("release checklist lock: %w", uerr)
		}
	}()

	return m.leaseLocked(append([]checklist.Item(nil), items...), workerID)
}

func (m *Manager) leaseLocked(items []checklist.Item, workerID int) (*Result, error) {
	if err := Validate(items); err != nil {
		return nil, err
	}

	modified, err := m.mark(items, workerID)
	if err != nil {
		return nil, err
	}

	m.logger.Info("checked out items",
		"worker", workerID,
		"count", len(items),
		"files", len(modified),
	)
	return &Result{Items: items, ModifiedFiles: modified}, nil
}

// mark assigns lease ids to items in place and rewrites their lines,
// one atomic write per file. When a write fails, files already written
// are put back to their previous content so no lease is left orphaned.
func (m *Manager) mark(items []checklist.Item, workerID int) (modified []string, err error) {
	var order []string
	byFile := make(map[string]map[int]string)
	for i := range items {
		id := NewID(m.now(), workerID)
		items[i].LeaseID = id
		items[i].Marker = checklist.InProgressMarker(id)

		f := items[i].File
		if _, ok := byFile[f]; !ok {
			order = append(order, f)
			byFile[f] = make(map[int]string)
		}
		byFile[f][items[i].Line] = id
	}

	originals := make(map[string]string, len(order))
	defer func() {
		if err != nil {
			m.rollback(modified, originals)
			modified = nil
		}
	}()

	modified = make([]string, 0, len(order))
	for _, path := range order {
		data, err := os.ReadFile(path)
		if err != nil {
			return modified, fmt.Errorf("read %s: %w", path, err)
		}

		lines := checklist.SplitLines(string(data))
		for lineNo, id := range byFile[path] {
			if lineNo > len(lines) {
				return modified, errors.NewLeaseError("line vanished before marking", errors.ErrLeaseValidation).
					WithFile(path).WithLine(lineNo)
			}
			lines[lineNo-1] = rewriteMarker(lines[lineNo-1], checklist.InProgressMarker(id))
		}

		if err := m.writeFile(path, strings.Join(lines, "\n")); err != nil {
			return modified, errors.NewLeaseError("write leased markers", err).WithFile(path)
		}
		originals[path] = string(data)
		modified = append(modified, path)
	}
	return modified, nil
}

// rollback restores files written by a failed mark. The lock is still
// held, so nothing else has touched them since.
func (m *Manager) rollback(paths []string, originals map[string]string) {
	for _, path := range paths {
		if err := m.writeFile(path, originals[path]); err != nil {
			m.logger.Error("failed to roll back leased markers", "file", path, "error", err.Error())
			continue
		}
		m.logger.Warn("rolled back leased markers", "file", path)
	}
}

// rewriteMarker replaces only the bracketed marker of an item line,
// keeping indentation, dash and trailing content.
func rewriteMarker(line, marker string) string {
	mm := rewritePattern.FindStringSubmatch(line)
	if mm == nil {
		return line
	}
	return mm[1] + marker + mm[3]
}

// Validate checks that every item's recorded line still exists and still
// contains its recorded marker. The first mismatch is returned as a
// *errors.LeaseError matching errors.ErrLeaseValidation.
func Validate(items []checklist.Item) error {
	cache := make(map[string][]string)
	for _, item := range items {
		lines, ok := cache[item.File]
		if !ok {
			data, err := os.ReadFile(item.File)
			if err != nil {
				return fmt.Errorf("read %s: %w", item.File, err)
			}
			lines = checklist.SplitLines(string(data))
			cache[item.File] = lines
		}

		if item.Line < 1 || item.Line > len(lines) {
			return errors.NewLeaseError(
				fmt.Sprintf("line no longer exists (file has %d lines)", len(lines)),
				errors.ErrLeaseValidation,
			).WithFile(item.File).WithLine(item.Line)
		}
		if line := lines[item.Line-1]; !strings.Contains(line, item.Marker) {
			return errors.NewLeaseError(
				fmt.Sprintf("expected marker %s, got %q", item.Marker, line),
				errors.ErrLeaseValidation,
			).WithFile(item.File).WithLine(item.Line)
		}
	}
	return nil
}

// Restore puts a leased item back to "[ ]" by replacing its literal
// "[ip:<id>]" in the item's file. It returns false with no error when the
// lease text is gone, for example because the item was completed.
//
// Items leased together share an id, so one Restore puts back every item
// of the batch that is still in progress in that file.
func (m *Manager) Restore(item checklist.Item) (bool, error) {
	n, err := m.restore(item)
	return n > 0, err
}

// restore returns the number of "[ip:<id>]" markers it replaced.
func (m *Manager) restore(item checklist.Item) (replaced int, err error) {
	if item.LeaseID == "" {
		return 0, errors.NewLeaseError("restore", errors.ErrNoLeaseID).
			WithFile(item.File).WithLine(item.Line)
	}

	fl, err := m.lock()
	if err != nil {
		return 0, errors.NewLeaseError("restore", err).WithLeaseID(item.LeaseID)
	}
	defer func() {
		if uerr := fl.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("release checklist lock: %w", uerr)
		}
	}()

	data, err := os.ReadFile(item.File)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", item.File, err)
	}

	pattern := checklist.InProgressMarker(item.LeaseID)
	content := string(data)
	replaced = strings.Count(content, pattern)
	if replaced == 0 {
		m.logger.Warn("lease not found, item may have been completed",
			"lease_id", item.LeaseID,
			"file", item.File,
		)
		return 0, nil
	}

	content = strings.ReplaceAll(content, pattern, checklist.MarkerIncomplete)
	if err := WriteFileAtomic(item.File, content); err != nil {
		return 0, errors.NewLeaseError("write restored marker", err).
			WithFile(item.File).WithLeaseID(item.LeaseID)
	}

	m.logger.Info("restored lease", "lease_id", item.LeaseID, "file", item.File, "count", replaced)
	return replaced, nil
}

// RestoreAll restores every item, continuing past failures, and returns
// the number of markers put back together with any errors joined. Items
// sharing a lease id are counted once each, whichever Restore rewrote them.
func (m *Manager) RestoreAll(items []checklist.Item) (int, error) {
	var errs []error
	restored := 0
	for _, item := range items {
		n, err := m.restore(item)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		restored += n
	}
	return restored, errors.Join(errs...)
}
