package checklist

import (
	"fmt"
	"os"
	"strings"
)

// Item is one checklist entry. Its identity is (File, Line) as of the parse
// that produced it.
type Item struct {
	File     string   `json:"file" yaml:"file"`
	Line     int      `json:"line" yaml:"line"`
	Marker   string   `json:"marker" yaml:"marker"`
	Content  string   `json:"content" yaml:"content"`
	SubItems []string `json:"sub_items,omitempty" yaml:"sub_items,omitempty"`
	LeaseID  string   `json:"lease_id,omitempty" yaml:"lease_id,omitempty"`
}

// Type returns the MarkerType of the item's marker.
func (i Item) Type() MarkerType {
	return ParseMarker(i.Marker)
}

// ParseFile reads and parses a single checklist file.
func ParseFile(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checklist %s: %w", path, err)
	}
	return Parse(path, string(data)), nil
}

// Parse parses checklist content attributed to path.
func Parse(path, content string) []Item {
	p := &parser{file: path}
	for i, line := range SplitLines(content) {
		p.feed(i+1, line)
	}
	p.finish()
	return p.items
}

// SplitLines splits content into lines, dropping "\r" line endings and the
// empty element after a trailing newline.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// parser is the line state machine: the open item, its indentation, and
// blank lines held back until the next line decides whether they belong
// to the item.
type parser struct {
	file    string
	items   []Item
	current *Item
	indent  int
	pending []string
}

func (p *parser) feed(lineNo int, line string) {
	if p.current != nil && p.insideFence() {
		p.appendSub(line)
		return
	}

	tok := classify(line)
	switch tok.kind {
	case tokenItem:
		p.finish()
		p.current = &Item{
			File:    p.file,
			Line:    lineNo,
			Marker:  tok.marker,
			Content: tok.content,
			LeaseID: LeaseIDFromMarker(tok.marker),
		}
		p.indent = tok.indent

	case tokenBlank:
		if p.current != nil {
			p.pending = append(p.pending, line)
		}

	default:
		if p.current == nil {
			return
		}
		switch {
		case tok.indent > p.indent:
			p.current.SubItems = append(p.current.SubItems, p.pending...)
			p.pending = nil
			p.appendSub(line)
		case tok.indent == 0:
			p.finish()
		default:
			// Indented, but not under this item.
			p.pending = nil
		}
	}
}

func (p *parser) appendSub(line string) {
	p.current.SubItems = append(p.current.SubItems, line)
}

// insideFence reports whether the open item has an unclosed code fence.
func (p *parser) insideFence() bool {
	n := 0
	for _, l := range p.current.SubItems {
		if togglesFence(l) {
			n++
		}
	}
	return n%2 == 1
}

func (p *parser) finish() {
	if p.current != nil {
		p.items = append(p.items, *p.current)
	}
	p.current = nil
	p.pending = nil
}

// ParseAll discovers and parses every checklist under basePath.
func ParseAll(basePath string) ([]Item, error) {
	files, err := Discover(basePath)
	if err != nil {
		return nil, err
	}

	var all []Item
	for _, f := range files {
		items, err := ParseFile(f)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}
