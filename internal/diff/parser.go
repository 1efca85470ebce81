// Package diff parses unified-diff patch text as delivered by the hosting
// platform's file listing API (per-file patches, no ---/+++ headers).
package diff

import (
	"regexp"
	"strconv"
	"strings"
)

var hunkHeaderRegex = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,\d+)? @@`)

// AddedLine is one line added in the new version of a file, numbered in the
// post-change file.
type AddedLine struct {
	Number  int
	Content string
}

// ParseAddedLines extracts every added line from a unified-diff patch
// together with its line number on the new side of the diff.
//
// A hunk header resets the running counter to the declared new-file start.
// Unchanged context lines advance the counter, so line numbers stay exact on
// multi-hunk, context-bearing patches; removal lines belong to the old
// version and do not. A hunk header that fails to parse leaves the counter
// untouched: the parser is intentionally permissive and never errors.
func ParseAddedLines(patch string) []AddedLine {
	if patch == "" {
		return nil
	}

	var added []AddedLine
	currentLine := 0

	for _, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, "@@") {
			matches := hunkHeaderRegex.FindStringSubmatch(line)
			if len(matches) >= 2 {
				if start, err := strconv.Atoi(matches[1]); err == nil {
					// Next emitted or context line is the declared start.
					currentLine = start - 1
				}
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "+"):
			currentLine++
			added = append(added, AddedLine{
				Number:  currentLine,
				Content: strings.TrimPrefix(line, "+"),
			})
		case strings.HasPrefix(line, "-"):
			// removal exists only in the previous version
		case strings.HasPrefix(line, " "):
			currentLine++
		}
	}

	return added
}
