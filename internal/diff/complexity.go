package diff

import (
	"regexp"
	"strings"
)

var nestingKeywordRegex = regexp.MustCompile(`\b(?:if|for|while|function|class)\b`)

// Score derives a heuristic 0-10 complexity score from a patch: one point
// per ten added lines plus the maximum bracket/keyword nesting depth reached
// on the added lines, capped at 10. It is deliberately crude; the arithmetic
// is part of the stored-data contract and must not change.
func Score(patch string) int {
	if patch == "" {
		return 0
	}

	addedLines := 0
	depth := 0
	maxDepth := 0

	for _, line := range strings.Split(patch, "\n") {
		if !strings.HasPrefix(line, "+") {
			continue
		}
		addedLines++

		content := strings.TrimPrefix(line, "+")
		depth += len(nestingKeywordRegex.FindAllString(content, -1))
		for _, r := range content {
			switch r {
			case '{', '[', '(':
				depth++
			case '}', ']', ')':
				depth--
			}
		}
		if depth < 0 {
			depth = 0
		}
		if depth > maxDepth {
			maxDepth = depth
		}
	}

	score := addedLines/10 + maxDepth
	if score > 10 {
		score = 10
	}
	return score
}
