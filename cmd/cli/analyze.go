package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codesentry/codesentry/internal/analyzer"
	"github.com/codesentry/codesentry/internal/config"
	"github.com/codesentry/codesentry/internal/core"
)

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	infoColor  = color.New(color.FgWhite)
	dimColor   = color.New(color.FgHiBlack)
	boldColor  = color.New(color.Bold)
	okColor    = color.New(color.FgGreen)
)

var analyzeFileName string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <patch-file>",
	Short: "Analyze a unified diff patch and print any findings.",
	Long: `Runs the detection engine against a single patch file, exactly as the
service would for one changed file in a pull request. Use --name to control
language detection when the patch file's own name is not the reviewed path.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("could not read patch file: %w", err)
		}

		name := analyzeFileName
		if name == "" {
			name = strings.TrimSuffix(strings.TrimSuffix(filepath.Base(args[0]), ".patch"), ".diff")
		}

		a, err := buildAnalyzer()
		if err != nil {
			return err
		}

		analysis := a.Analyze(core.PullRequestFile{
			Filename: name,
			Status:   "modified",
			Patch:    string(patch),
		})
		printAnalysis(analysis, a.Complexity(string(patch)))
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	analyzeCmd.Flags().StringVarP(&analyzeFileName, "name", "n", "", "File path to analyze the patch as (drives language detection)")
	rootCmd.AddCommand(analyzeCmd)
}

// buildAnalyzer loads the ruleset named by --ruleset (or CS_RULESET_PATH).
// A missing file is not an error: the built-in defaults apply.
func buildAnalyzer() (*analyzer.Analyzer, error) {
	path := viper.GetString("RULESET_PATH")
	if path == "" {
		return analyzer.New(nil), nil
	}

	ruleset, err := config.LoadRuleset(path)
	if err != nil {
		if errors.Is(err, config.ErrRulesetNotFound) {
			dimColor.Printf("ruleset %s not found, using defaults\n", path)
			return analyzer.New(ruleset), nil
		}
		return nil, fmt.Errorf("could not load ruleset: %w", err)
	}
	return analyzer.New(ruleset), nil
}

func printAnalysis(analysis core.FileAnalysis, complexity int) {
	titleColor.Printf("%s", analysis.Filename)
	if analysis.Language != "" {
		dimColor.Printf("  (%s)", analysis.Language)
	}
	fmt.Println()

	if !analysis.ShouldReview {
		dimColor.Println("skipped: file is out of review scope")
		return
	}

	infoColor.Printf("complexity: %d/10\n", complexity)

	if len(analysis.Issues) == 0 {
		okColor.Println("no issues found")
		return
	}

	fmt.Println()
	for _, li := range analysis.Issues {
		printSeverityBadge(li.Issue.Severity)
		boldColor.Printf(" line %d", li.Line)
		dimColor.Printf("  [%s] %s\n", li.Issue.Category, li.Issue.RuleID)
		infoColor.Printf("   %s\n", li.Issue.Message)
		if li.Issue.Suggestion != "" {
			dimColor.Printf("   suggestion: %s\n", li.Issue.Suggestion)
		}
		fmt.Println()
	}
	infoColor.Printf("%d issue(s) found\n", len(analysis.Issues))
}

func printSeverityBadge(severity string) {
	switch severity {
	case core.SeverityCritical:
		color.New(color.BgRed, color.FgWhite, color.Bold).Printf(" %s ", severity)
	case core.SeverityHigh:
		color.New(color.BgHiRed, color.FgWhite).Printf(" %s ", severity)
	case core.SeverityMedium:
		color.New(color.BgYellow, color.FgBlack).Printf(" %s ", severity)
	case core.SeverityLow:
		color.New(color.BgGreen, color.FgWhite).Printf(" %s ", severity)
	default:
		color.New(color.BgWhite, color.FgBlack).Printf(" %s ", severity)
	}
}
