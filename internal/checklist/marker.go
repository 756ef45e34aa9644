package checklist

import "strings"

// MarkerType classifies the bracketed status token on an item line.
type MarkerType int

const (
	// Unknown is any marker the grammar accepts but the table below does not name, e.g. "[~]".
	Unknown MarkerType = iota
	// Incomplete is "[ ]".
	Incomplete
	// Unverified is "[x]": done but not yet verified.
	Unverified
	// Verified is "[V]".
	Verified
	// InProgress is "[ip]" or "[ip:<id>]".
	InProgress
	// Blocked is "[BLOCKED]" or "[BLOCKED: reason]".
	Blocked
)

// Well-known marker texts.
const (
	MarkerIncomplete = "[ ]"
	MarkerPartial    = "[~]"
	MarkerUnverified = "[x]"
	MarkerVerified   = "[V]"
)

func (m MarkerType) String() string {
	switch m {
	case Incomplete:
		return "incomplete"
	case Unverified:
		return "unverified"
	case Verified:
		return "verified"
	case InProgress:
		return "in_progress"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// ParseMarker maps marker text to its MarkerType. It is total: any text
// that is not one of the known forms is Unknown.
func ParseMarker(marker string) MarkerType {
	switch {
	case marker == MarkerIncomplete:
		return Incomplete
	case marker == MarkerUnverified:
		return Unverified
	case marker == MarkerVerified:
		return Verified
	case strings.HasPrefix(marker, "[ip"):
		return InProgress
	case strings.HasPrefix(marker, "[BLOCKED"):
		return Blocked
	default:
		return Unknown
	}
}

// InProgressMarker returns the leased marker text for id.
func InProgressMarker(id string) string {
	return "[ip:" + id + "]"
}

// LeaseIDFromMarker extracts the id from "[ip:<id>]". It returns "" for
// any other marker, including a bare "[ip]".
func LeaseIDFromMarker(marker string) string {
	rest, ok := strings.CutPrefix(marker, "[ip:")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "]")
	if !ok {
		return ""
	}
	return id
}
