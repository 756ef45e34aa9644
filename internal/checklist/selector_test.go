package checklist

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeItems(file string, markers ...string) []Item {
	items := make([]Item, 0, len(markers))
	for i, m := range markers {
		items = append(items, Item{File: file, Line: i + 1, Marker: m, Content: fmt.Sprintf("%s-%d", file, i+1)})
	}
	return items
}

func TestFilters_Allows(t *testing.T) {
	all := Filters{Incomplete: true, Unverified: true, Blocked: true}
	for _, never := range []MarkerType{Verified, InProgress, Unknown} {
		assert.False(t, all.Allows(never), "%s must never be selectable", never)
	}
	assert.True(t, DefaultFilters().Allows(Incomplete))
	assert.False(t, DefaultFilters().Allows(Unverified))
	assert.False(t, DefaultFilters().Allows(Blocked))
}

func TestSelect_CountLaw(t *testing.T) {
	items := append(makeItems("a", "[ ]", "[x]", "[ ]", "[V]"), makeItems("b", "[ ]", "[ip:0001]", "[BLOCKED]")...)
	rng := rand.New(rand.NewPCG(1, 2))

	tests := []struct {
		name    string
		n       int
		filters Filters
		want    int
	}{
		{"fewer than available", 2, DefaultFilters(), 2},
		{"exactly available", 3, DefaultFilters(), 3},
		{"more than available", 10, DefaultFilters(), 3},
		{"zero requested", 0, DefaultFilters(), 0},
		{"nothing eligible", 5, Filters{}, 0},
		{"all selectable types", 10, Filters{Incomplete: true, Unverified: true, Blocked: true}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(items, tt.n, tt.filters, rng)
			assert.Len(t, got, tt.want)
			for _, item := range got {
				assert.True(t, tt.filters.Allows(item.Type()))
			}
		})
	}
}

func TestSelect_ReturnsAllWhenUnderRequested(t *testing.T) {
	items := makeItems("a", "[ ]", "[ ]")
	got := Select(items, 5, DefaultFilters(), nil)
	require.Len(t, got, 2)
	assert.Equal(t, items, got)
}

func TestSelect_NoDuplicates(t *testing.T) {
	items := append(makeItems("a", "[ ]", "[ ]", "[ ]"), makeItems("b", "[ ]", "[ ]", "[ ]")...)
	rng := rand.New(rand.NewPCG(7, 7))

	for range 50 {
		got := Select(items, 4, DefaultFilters(), rng)
		seen := make(map[string]bool)
		for _, item := range got {
			key := fmt.Sprintf("%s:%d", item.File, item.Line)
			assert.False(t, seen[key], "duplicate %s", key)
			seen[key] = true
		}
	}
}

func TestSelect_PrefersSameFile(t *testing.T) {
	items := append(makeItems("a", "[ ]", "[ ]", "[ ]"), makeItems("b", "[ ]", "[ ]", "[ ]")...)
	items = append(items, makeItems("c", "[ ]", "[ ]", "[ ]")...)
	rng := rand.New(rand.NewPCG(42, 99))

	// Requested count <= smallest group: every pick must come from one file.
	for range 200 {
		got := Select(items, 2, DefaultFilters(), rng)
		require.Len(t, got, 2)
		assert.Equal(t, got[0].File, got[1].File)
	}
}

func TestSelect_SpillsToNextFile(t *testing.T) {
	items := append(makeItems("a", "[ ]", "[ ]"), makeItems("b", "[ ]", "[ ]")...)
	rng := rand.New(rand.NewPCG(3, 4))

	got := Select(items, 3, DefaultFilters(), rng)
	require.Len(t, got, 3)

	files := map[string]int{}
	for _, item := range got {
		files[item.File]++
	}
	assert.Len(t, files, 2)
	for _, n := range files {
		assert.Contains(t, []int{1, 2}, n)
	}
}

func TestSelect_DoesNotMutateInput(t *testing.T) {
	items := append(makeItems("a", "[ ]", "[ ]", "[ ]"), makeItems("b", "[ ]")...)
	orig := append([]Item(nil), items...)

	Select(items, 2, DefaultFilters(), rand.New(rand.NewPCG(5, 6)))
	assert.Equal(t, orig, items)
}
