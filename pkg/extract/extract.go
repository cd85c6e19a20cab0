// Package extract pulls structured fields out of free-form model output.
//
// Every function in this package is pure: it takes response text and returns
// either the extracted value or an explicit "no match" outcome. Nothing here
// returns an error, because malformed model output is an expected input, not
// an exceptional one. Callers decide whether a missing value halts their stage.
package extract

import (
	"regexp"
	"strings"
)

const (
	// FenceOpen marks the start of a Python code block.
	FenceOpen = "```python"

	// FenceClose marks the end of a code block.
	FenceClose = "```"

	// SelectedToolLabel prefixes the selection agent's answer line.
	SelectedToolLabel = "SELECTED_TOOL:"

	// InterfaceLabel prefixes the reader agent's interface summary.
	InterfaceLabel = "TOOL:"
)

var bulletPattern = regexp.MustCompile(`^\s*-\s+([A-Za-z0-9_]+)\s*$`)

// CodeBlocks returns the bodies of all fenced Python blocks in text, in
// document order. A block opens on a line whose trimmed content starts with
// FenceOpen and closes on the next line whose trimmed content equals
// FenceClose. Unterminated blocks and blocks with an empty body are dropped.
// An opening marker seen inside a block restarts that block.
func CodeBlocks(text string) []string {
	if text == "" {
		return nil
	}

	var (
		blocks  []string
		current []string
		inBlock bool
	)

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, FenceOpen):
			inBlock = true
			current = current[:0]
		case inBlock && trimmed == FenceClose:
			inBlock = false
			if len(current) > 0 {
				blocks = append(blocks, strings.Join(current, "\n"))
			}
		case inBlock:
			current = append(current, strings.TrimSuffix(line, "\r"))
		}
	}

	return blocks
}

// FirstCodeBlock returns the first fenced block of text and whether one exists.
func FirstCodeBlock(text string) (string, bool) {
	blocks := CodeBlocks(text)
	if len(blocks) == 0 {
		return "", false
	}
	return blocks[0], true
}

// SelectedTool finds the first "SELECTED_TOOL: <name>" line. The label is
// matched case-insensitively after trimming, and decoration models like to
// add around the name (brackets, backticks, quotes, bold markers) is removed.
func SelectedTool(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		trimmed = strings.TrimLeft(trimmed, "*_ ")
		if len(trimmed) < len(SelectedToolLabel) {
			continue
		}
		if !strings.EqualFold(trimmed[:len(SelectedToolLabel)], SelectedToolLabel) {
			continue
		}

		value := cleanName(trimmed[len(SelectedToolLabel):])
		if value == "" {
			return "", false
		}
		return value, true
	}
	return "", false
}

// ToolBullets returns the names listed as "- NAME" bullets, in order and
// without duplicates. Lines that carry anything other than a single
// identifier after the bullet are ignored.
func ToolBullets(text string) []string {
	var names []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		m := bulletPattern.FindStringSubmatch(strings.TrimSuffix(line, "\r"))
		if m == nil {
			continue
		}
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}

	return names
}

// InterfaceSummary returns the paragraph that begins at the first "TOOL:"
// label, up to the first blank line.
func InterfaceSummary(text string) (string, bool) {
	idx := strings.Index(text, InterfaceLabel)
	if idx < 0 {
		return "", false
	}
	rest := text[idx:]
	if end := strings.Index(rest, "\n\n"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), true
}

func cleanName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "[]`*\"' ")
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(s, "[]`*\"'.,;:")
}
