package checklist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Counts(t *testing.T) {
	tests := []struct {
		marker string
		policy Policy
		want   bool
	}{
		{"[ ]", Policy{}, true},
		{"[~]", Policy{}, true},
		{"[ip]", Policy{}, true},
		{"[ip:a3f7]", Policy{}, true},
		{"[x]", Policy{}, false},
		{"[x]", Policy{CountUnverified: true}, true},
		{"[BLOCKED: api]", Policy{}, false},
		{"[BLOCKED: api]", Policy{CountBlocked: true}, true},
		{"[V]", Policy{CountUnverified: true, CountBlocked: true}, false},
	}

	for _, tt := range tests {
		got := tt.policy.Counts(Item{Marker: tt.marker})
		assert.Equal(t, tt.want, got, "marker %q policy %+v", tt.marker, tt.policy)
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	root := writeChecklist(t, dir, "AGENTS.md", "# Architecture\n- [x] Done\n")
	b := writeChecklist(t, dir, "b/AGENTS.md", "- [ ] Level task\n- [~] Partial task\n")
	a := writeChecklist(t, dir, "a/AGENTS.md", "- [ip:0001] Leased\n- [V] Verified\n")

	result, err := Scan(dir, Policy{})
	require.NoError(t, err)

	assert.Equal(t, root, result.RootFile)
	assert.Equal(t, []string{a, b}, result.ComponentFiles)
	assert.Equal(t, 3, result.TotalFiles())
	assert.Equal(t, 3, result.TotalIncomplete)
	assert.Equal(t, map[string]int{a: 1, b: 2}, result.IncompleteByFile())
	assert.Equal(t, "3 incomplete items across 2 files (3 files scanned)", result.Summary())
	assert.False(t, result.IsComplete())
}

func TestScan_AllComplete(t *testing.T) {
	dir := t.TempDir()
	writeChecklist(t, dir, "pkg/AGENTS.md", "- [x] Done\n- [V] Verified\n")

	result, err := Scan(dir, Policy{})
	require.NoError(t, err)

	assert.Empty(t, result.RootFile)
	assert.True(t, result.IsComplete())
	assert.Equal(t, "All checklists complete (1 files scanned)", result.Summary())

	has, err := HasIncompleteItems(dir, Policy{})
	require.NoError(t, err)
	assert.False(t, has)

	has, err = HasIncompleteItems(dir, Policy{CountUnverified: true})
	require.NoError(t, err)
	assert.True(t, has)
}

func TestScan_NoFiles(t *testing.T) {
	result, err := Scan(t.TempDir(), Policy{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalFiles())
	assert.Equal(t, "All checklists complete (0 files scanned)", result.Summary())
}

func TestScan_MissingBase(t *testing.T) {
	_, err := Scan(filepath.Join(t.TempDir(), "missing"), Policy{})
	assert.Error(t, err)
}
