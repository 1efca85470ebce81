package analyzer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/codesentry/codesentry/internal/core"
)

// Rule is a pure check over one added line. It may return any number of
// issues; rules are independent and never see each other's output.
type Rule func(line string, lineNumber int) []core.Issue

// commentMarkers are the line prefixes that mark a whole-line comment per
// language; commented-out code is skipped before any rule runs.
var commentMarkers = map[string][]string{
	"go":         {"//"},
	"javascript": {"//", "/*", "*"},
	"typescript": {"//", "/*", "*"},
	"java":       {"//", "/*", "*"},
	"kotlin":     {"//", "/*", "*"},
	"c":          {"//", "/*", "*"},
	"cpp":        {"//", "/*", "*"},
	"csharp":     {"//", "/*", "*"},
	"rust":       {"//", "/*", "*"},
	"swift":      {"//", "/*", "*"},
	"scala":      {"//", "/*", "*"},
	"php":        {"//", "#", "/*", "*"},
	"python":     {"#"},
	"ruby":       {"#"},
	"shell":      {"#"},
	"yaml":       {"#"},
	"toml":       {"#"},
	"terraform":  {"#", "//"},
	"sql":        {"--"},
	"html":       {"<!--"},
	"css":        {"/*", "*"},
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)password\s*[:=]\s*["'][^"']+["']`),
	regexp.MustCompile(`(?i)api_key\s*[:=]\s*["'][^"']+["']`),
	regexp.MustCompile(`(?i)secret\s*[:=]\s*["'][^"']+["']`),
	regexp.MustCompile(`(?i)token\s*[:=]\s*["'][^"']+["']`),
}

var (
	todoRegex          = regexp.MustCompile(`\b(TODO|FIXME|HACK)\b`)
	consoleRegex       = regexp.MustCompile(`\bconsole\.(log|debug|info|warn|error|trace)\s*\(`)
	looseEqualityRegex = regexp.MustCompile(`(^|[^=!])==([^=]|$)`)
	varDeclRegex       = regexp.MustCompile(`\bvar\s+\w`)
	evalRegex          = regexp.MustCompile(`\beval\s*\(`)
	printRegex         = regexp.MustCompile(`\bprint\s*\(`)
	bareExceptRegex    = regexp.MustCompile(`^\s*except\s*:`)
)

// commonRules apply to every language, including unregistered ones. Each
// secret pattern fires independently, so one line can yield several
// credential findings.
var commonRules = []Rule{
	func(line string, _ int) []core.Issue {
		var issues []core.Issue
		for _, pattern := range secretPatterns {
			if pattern.MatchString(line) {
				issues = append(issues, core.Issue{
					Severity:   core.SeverityCritical,
					Category:   core.CategorySecurity,
					Message:    "Possible hardcoded credential in added line",
					Suggestion: "Move the secret to environment configuration or a secret manager",
					RuleID:     "hardcoded-credential",
				})
			}
		}
		return issues
	},
	func(line string, _ int) []core.Issue {
		if !todoRegex.MatchString(line) {
			return nil
		}
		return []core.Issue{{
			Severity: core.SeverityLow,
			Category: core.CategoryQuality,
			Message:  "Unresolved TODO/FIXME/HACK marker",
			RuleID:   "todo-marker",
		}}
	},
}

// languageRules is the per-language rule registry. Adding a language means
// adding an entry here; the dispatcher never changes.
var languageRules = map[string][]Rule{
	"javascript": jsRules,
	"typescript": jsRules,
	"python":     pythonRules,
}

var jsRules = []Rule{
	singleIssueRule(consoleRegex, core.Issue{
		Severity:   core.SeverityMedium,
		Category:   core.CategoryQuality,
		Message:    "Debug console call left in code",
		Suggestion: "Remove the console call or route it through a logger",
		RuleID:     "js-console-call",
	}),
	singleIssueRule(looseEqualityRegex, core.Issue{
		Severity:   core.SeverityMedium,
		Category:   core.CategoryQuality,
		Message:    "Loose equality comparison",
		Suggestion: "Use === or !== to avoid type coercion",
		RuleID:     "js-loose-equality",
	}),
	singleIssueRule(varDeclRegex, core.Issue{
		Severity:   core.SeverityLow,
		Category:   core.CategoryQuality,
		Message:    "var declaration",
		Suggestion: "Prefer const or let over var",
		RuleID:     "js-var-declaration",
	}),
	singleIssueRule(evalRegex, core.Issue{
		Severity:   core.SeverityHigh,
		Category:   core.CategorySecurity,
		Message:    "eval() call on dynamic input",
		Suggestion: "Avoid eval; parse the input explicitly",
		RuleID:     "js-eval",
	}),
}

var pythonRules = []Rule{
	singleIssueRule(printRegex, core.Issue{
		Severity:   core.SeverityLow,
		Category:   core.CategoryQuality,
		Message:    "print() call left in code",
		Suggestion: "Use the logging module instead of print",
		RuleID:     "py-print-call",
	}),
	singleIssueRule(bareExceptRegex, core.Issue{
		Severity:   core.SeverityMedium,
		Category:   core.CategoryQuality,
		Message:    "Bare except clause swallows all exceptions",
		Suggestion: "Catch specific exception types",
		RuleID:     "py-bare-except",
	}),
}

// singleIssueRule builds a Rule that reports a fixed issue when pattern
// matches the line.
func singleIssueRule(pattern *regexp.Regexp, issue core.Issue) Rule {
	return func(line string, _ int) []core.Issue {
		if !pattern.MatchString(line) {
			return nil
		}
		return []core.Issue{issue}
	}
}

// isSkippable reports whether a line is blank or entirely a comment for the
// given language and therefore exempt from rule evaluation.
func isSkippable(line, language string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	for _, marker := range commentMarkers[language] {
		if strings.HasPrefix(trimmed, marker) {
			return true
		}
	}
	return false
}

// DetectIssues evaluates the common rules and the language's registered
// rules against one added line. Blank and whole-line-comment lines yield
// nothing. Unregistered languages receive only the common rules.
func (a *Analyzer) DetectIssues(line string, lineNumber int, language string) []core.Issue {
	if isSkippable(line, language) {
		return nil
	}

	var issues []core.Issue
	for _, rule := range commonRules {
		issues = append(issues, a.enabled(rule(line, lineNumber))...)
	}
	for _, rule := range languageRules[language] {
		issues = append(issues, a.enabled(rule(line, lineNumber))...)
	}
	return issues
}

// enabled filters out issues whose rule id has been disabled by config.
func (a *Analyzer) enabled(issues []core.Issue) []core.Issue {
	if len(a.disabledRules) == 0 {
		return issues
	}
	kept := issues[:0]
	for _, issue := range issues {
		if _, off := a.disabledRules[issue.RuleID]; !off {
			kept = append(kept, issue)
		}
	}
	return kept
}

// RegisterLanguageRules adds rules for a language tag, appending when the
// language already has an entry. It exists for downstream extension and is
// not used by the built-in rule set.
func RegisterLanguageRules(language string, rules ...Rule) error {
	if language == "" {
		return fmt.Errorf("language tag cannot be empty")
	}
	languageRules[language] = append(languageRules[language], rules...)
	return nil
}
