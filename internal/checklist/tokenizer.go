package checklist

import (
	"regexp"
	"strings"
)

var (
	// itemPattern recognizes "- [<marker>] content" with optional indentation.
	itemPattern = regexp.MustCompile(`^(\s*)-\s*\[([ ~xV]|ip(?::[a-f0-9]+)?|BLOCKED(?::[^\]]*)?)\]\s*(.*)$`)
	// subItemPattern recognizes an indented plain "- text" line.
	subItemPattern = regexp.MustCompile(`^(\s+)-\s+(.*)$`)
)

const fence = "```"

type tokenKind int

const (
	tokenBlank tokenKind = iota
	tokenItem
	tokenSubItem
	tokenText
)

// token is one classified checklist line.
type token struct {
	kind    tokenKind
	raw     string
	indent  int
	marker  string
	content string
}

// classify recognizes a single line. Item lines take precedence over
// sub-item lines so nested checkboxes become items of their own.
func classify(line string) token {
	if strings.TrimSpace(line) == "" {
		return token{kind: tokenBlank, raw: line}
	}

	if m := itemPattern.FindStringSubmatch(line); m != nil {
		return token{
			kind:    tokenItem,
			raw:     line,
			indent:  len(m[1]),
			marker:  "[" + m[2] + "]",
			content: m[3],
		}
	}

	if m := subItemPattern.FindStringSubmatch(line); m != nil {
		return token{kind: tokenSubItem, raw: line, indent: len(m[1]), content: m[2]}
	}

	return token{kind: tokenText, raw: line, indent: leadingWhitespace(line)}
}

func leadingWhitespace(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

// togglesFence reports whether line contains a triple-backtick fence.
func togglesFence(line string) bool {
	return strings.Contains(line, fence)
}
