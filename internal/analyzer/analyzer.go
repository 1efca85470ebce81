package analyzer

import (
	"github.com/codesentry/codesentry/internal/config"
	"github.com/codesentry/codesentry/internal/core"
	"github.com/codesentry/codesentry/internal/diff"
)

// Analyzer composes the scope decision, the diff parser, and the detection
// rules for single changed files. It is stateless once constructed and safe
// for concurrent use.
type Analyzer struct {
	denyFragments []string
	excludeExts   []string
	disabledRules map[string]struct{}
}

// New builds an Analyzer. A nil ruleset keeps the built-in deny lists and
// all rules enabled.
func New(ruleset *config.Ruleset) *Analyzer {
	a := &Analyzer{
		denyFragments: denyPathFragments,
		disabledRules: map[string]struct{}{},
	}
	if ruleset == nil {
		return a
	}

	for _, dir := range ruleset.ExcludeDirs {
		a.denyFragments = append(a.denyFragments, dir+"/")
	}
	for _, ext := range ruleset.ExcludeExts {
		a.excludeExts = append(a.excludeExts, config.NormalizeExt(ext))
	}
	for _, id := range ruleset.DisabledRules {
		a.disabledRules[id] = struct{}{}
	}
	return a
}

// Analyze runs the full per-file pipeline: scope decision, language
// detection, diff parsing, and rule evaluation per added line. The complexity
// score is a separate query (see Complexity) and is not embedded here.
func (a *Analyzer) Analyze(file core.PullRequestFile) core.FileAnalysis {
	analysis := core.FileAnalysis{
		Filename:     file.Filename,
		Status:       file.Status,
		Language:     DetectLanguage(file.Filename),
		Additions:    file.Additions,
		Deletions:    file.Deletions,
		Patch:        file.Patch,
		ShouldReview: a.ShouldReview(file.Filename, file.Status),
	}

	if !analysis.ShouldReview || file.Patch == "" {
		return analysis
	}

	for _, added := range diff.ParseAddedLines(file.Patch) {
		for _, issue := range a.DetectIssues(added.Content, added.Number, analysis.Language) {
			analysis.Issues = append(analysis.Issues, core.LineIssue{
				Line:  added.Number,
				Issue: issue,
			})
		}
	}
	return analysis
}

// Complexity returns the heuristic complexity score for a patch.
func (a *Analyzer) Complexity(patch string) int {
	return diff.Score(patch)
}
