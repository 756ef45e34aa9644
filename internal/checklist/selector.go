package checklist

import "math/rand/v2"

// Filters selects which marker types are eligible for checkout. Verified,
// in-progress and unknown items are never eligible.
type Filters struct {
	Incomplete bool `json:"incomplete" yaml:"incomplete"`
	Unverified bool `json:"unverified" yaml:"unverified"`
	Blocked    bool `json:"blocked" yaml:"blocked"`
}

// DefaultFilters selects incomplete items only.
func DefaultFilters() Filters {
	return Filters{Incomplete: true}
}

// Allows reports whether an item of type t passes the filters.
func (f Filters) Allows(t MarkerType) bool {
	switch t {
	case Incomplete:
		return f.Incomplete
	case Unverified:
		return f.Unverified
	case Blocked:
		return f.Blocked
	default:
		return false
	}
}

// Filter returns the items that pass f, in order.
func Filter(items []Item, f Filters) []Item {
	var out []Item
	for _, item := range items {
		if f.Allows(item.Type()) {
			out = append(out, item)
		}
	}
	return out
}

// Select returns min(n, len(Filter(items, f))) items. When more items are
// eligible than requested, items are grouped by file, groups and items are
// shuffled with rng, and whole groups are taken before moving to the next
// file so concurrent workers tend to edit different files.
func Select(items []Item, n int, f Filters, rng *rand.Rand) []Item {
	eligible := Filter(items, f)
	if n <= 0 || len(eligible) == 0 {
		return nil
	}
	if len(eligible) <= n {
		return eligible
	}

	var order []string
	groups := make(map[string][]Item)
	for _, item := range eligible {
		if _, ok := groups[item.File]; !ok {
			order = append(order, item.File)
		}
		groups[item.File] = append(groups[item.File], item)
	}

	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}

	shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	selected := make([]Item, 0, n)
	for _, file := range order {
		group := groups[file]
		shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })
		for _, item := range group {
			if len(selected) == n {
				return selected
			}
			selected = append(selected, item)
		}
	}
	return selected
}
