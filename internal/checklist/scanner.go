package checklist

import (
	"fmt"
	"path/filepath"
	"sort"
)

// Policy decides which items count as incomplete when scanning.
// "[ ]", "[~]" and in-progress markers always count.
type Policy struct {
	CountUnverified bool `json:"count_unverified" yaml:"count_unverified"`
	CountBlocked    bool `json:"count_blocked" yaml:"count_blocked"`
}

// Counts reports whether item is incomplete under p.
func (p Policy) Counts(item Item) bool {
	if item.Marker == MarkerPartial {
		return true
	}
	switch item.Type() {
	case Incomplete, InProgress:
		return true
	case Unverified:
		return p.CountUnverified
	case Blocked:
		return p.CountBlocked
	default:
		return false
	}
}

// ScanResult aggregates incompleteness across every checklist under a base
// directory.
type ScanResult struct {
	// RootFile is base/AGENTS.md when present, "" otherwise.
	RootFile string `json:"root_file,omitempty" yaml:"root_file,omitempty"`
	// ComponentFiles are the remaining checklists, sorted.
	ComponentFiles []string `json:"component_files" yaml:"component_files"`
	// TotalIncomplete is the number of incomplete items across all files.
	TotalIncomplete int `json:"total_incomplete" yaml:"total_incomplete"`
	// Incomplete lists the incomplete items of each file that has any.
	Incomplete map[string][]Item `json:"incomplete,omitempty" yaml:"incomplete,omitempty"`
}

// TotalFiles is the number of checklist files scanned.
func (r *ScanResult) TotalFiles() int {
	n := len(r.ComponentFiles)
	if r.RootFile != "" {
		n++
	}
	return n
}

// IsComplete reports whether no incomplete items remain.
func (r *ScanResult) IsComplete() bool {
	return r.TotalIncomplete == 0
}

// IncompleteByFile returns the incomplete count for each file that has any.
func (r *ScanResult) IncompleteByFile() map[string]int {
	counts := make(map[string]int, len(r.Incomplete))
	for f, items := range r.Incomplete {
		counts[f] = len(items)
	}
	return counts
}

// Summary is a one-line description suitable for logs.
func (r *ScanResult) Summary() string {
	if r.IsComplete() {
		return fmt.Sprintf("All checklists complete (%d files scanned)", r.TotalFiles())
	}
	return fmt.Sprintf("%d incomplete items across %d files (%d files scanned)",
		r.TotalIncomplete, len(r.Incomplete), r.TotalFiles())
}

// Scan discovers and parses every checklist under basePath and counts
// incomplete items under policy.
func Scan(basePath string, policy Policy) (*ScanResult, error) {
	files, err := Discover(basePath)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{
		ComponentFiles: []string{},
		Incomplete:     make(map[string][]Item),
	}

	root := filepath.Join(basePath, FileName)
	for _, f := range files {
		if f == root {
			result.RootFile = f
		} else {
			result.ComponentFiles = append(result.ComponentFiles, f)
		}
	}
	sort.Strings(result.ComponentFiles)

	for _, f := range files {
		items, err := ParseFile(f)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if policy.Counts(item) {
				result.Incomplete[f] = append(result.Incomplete[f], item)
				result.TotalIncomplete++
			}
		}
	}

	return result, nil
}

// HasIncompleteItems reports whether any checklist under basePath has an
// incomplete item.
func HasIncompleteItems(basePath string, policy Policy) (bool, error) {
	result, err := Scan(basePath, policy)
	if err != nil {
		return false, err
	}
	return !result.IsComplete(), nil
}
