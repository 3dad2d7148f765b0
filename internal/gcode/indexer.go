// Package gcode locates the pieces of a G-code document that a resumed job
// needs: the machine setup block, the last explicit Z move and the commands
// executed just before the cut point.
package gcode

import "strings"

const (
	// DefaultSentinel marks the end of the slicer's start-up block.
	DefaultSentinel = ";flag"
	// DefaultPositionPrefix is the explicit Z move used to restore height.
	DefaultPositionPrefix = "G1 Z"
	// DefaultTrailingLines is the number of commands replayed before the cut.
	DefaultTrailingLines = 2
)

// Options controls how Index searches a document.
type Options struct {
	Sentinel       string
	PositionPrefix string
	TrailingLines  int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Sentinel:       DefaultSentinel,
		PositionPrefix: DefaultPositionPrefix,
		TrailingLines:  DefaultTrailingLines,
	}
}

// Fragments holds everything salvaged from a document for one cut point.
type Fragments struct {
	// SettingsPrefix runs from the start of the document through the sentinel.
	SettingsPrefix string
	// PositionLine is the most recent explicit Z move before Cut.
	PositionLine string
	HasPosition  bool
	// TrailingLines are the last non-empty lines before Cut, newline separated.
	TrailingLines string
	HasTrailing   bool
	// Cut is the byte offset, always at a line start, where the remainder begins.
	Cut int
}

// Remainder returns the part of doc that still has to run.
func (f Fragments) Remainder(doc string) string {
	return doc[f.Cut:]
}

// Index extracts the resume fragments of doc for the given executed offset.
// It has no side effects and returns the same result for the same input.
func Index(doc string, offset uint64, opts Options) Fragments {
	fr := Fragments{
		SettingsPrefix: SettingsPrefix(doc, opts.Sentinel),
		Cut:            SnapToLine(doc, offset),
	}

	// Lines inside the setup block are replayed by the prefix already.
	floor := 0
	if fr.SettingsPrefix != "" {
		floor = nextLineStart(doc, len(fr.SettingsPrefix))
	}
	if floor >= fr.Cut {
		return fr
	}
	window := doc[floor:fr.Cut]

	fr.PositionLine, fr.HasPosition = lastLineWithPrefix(window, opts.PositionPrefix)
	fr.TrailingLines, fr.HasTrailing = lastLines(window, opts.TrailingLines)
	return fr
}

// SettingsPrefix returns doc up to and including the first sentinel, or ""
// when the sentinel never occurs.
func SettingsPrefix(doc, sentinel string) string {
	if sentinel == "" {
		return ""
	}
	i := strings.Index(doc, sentinel)
	if i < 0 {
		return ""
	}
	return doc[:i+len(sentinel)]
}

// SnapToLine moves offset back to the start of the line containing it.
// Offsets past the end of doc are clamped to len(doc).
func SnapToLine(doc string, offset uint64) int {
	if offset >= uint64(len(doc)) {
		return len(doc)
	}
	n := int(offset)
	if n == 0 || doc[n-1] == '\n' {
		return n
	}
	return strings.LastIndexByte(doc[:n], '\n') + 1
}

func nextLineStart(doc string, from int) int {
	i := strings.IndexByte(doc[from:], '\n')
	if i < 0 {
		return len(doc)
	}
	return from + i + 1
}

// eachLineReverse calls fn with every line of s, last line first, until fn
// returns false. A trailing newline does not produce an empty last line.
func eachLineReverse(s string, fn func(line string) bool) {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return
	}
	for {
		i := strings.LastIndexByte(s, '\n')
		if !fn(s[i+1:]) || i < 0 {
			return
		}
		s = s[:i]
	}
}

func lastLineWithPrefix(s, prefix string) (string, bool) {
	if prefix == "" {
		return "", false
	}
	var found string
	var ok bool
	eachLineReverse(s, func(line string) bool {
		if strings.HasPrefix(line, prefix) {
			found, ok = line, true
			return false
		}
		return true
	})
	return found, ok
}

func lastLines(s string, n int) (string, bool) {
	if n <= 0 {
		return "", false
	}
	lines := make([]string, 0, n)
	eachLineReverse(s, func(line string) bool {
		if strings.TrimSpace(line) == "" {
			return true
		}
		lines = append(lines, line)
		return len(lines) < n
	})
	if len(lines) == 0 {
		return "", false
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n"), true
}
