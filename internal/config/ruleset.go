package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrRulesetNotFound = errors.New("ruleset file not found")
	ErrRulesetParsing  = errors.New("ruleset parsing failed")
)

// Ruleset is the optional .codesentry.yml overlay narrowing what gets
// analyzed. All fields extend the built-in defaults; none replace them.
type Ruleset struct {
	// Exclusion of entire directories by name. Example: ["dist", "docs"]
	ExcludeDirs []string `yaml:"exclude_dirs"`

	// Exclusion of files based on their extension.
	// The leading dot is optional. Example: [".md", "lock", ".log"]
	ExcludeExts []string `yaml:"exclude_exts"`

	// Rule ids that must not fire. Example: ["todo-marker"]
	DisabledRules []string `yaml:"disabled_rules"`
}

// DefaultRuleset returns a ruleset with no overrides.
func DefaultRuleset() *Ruleset {
	return &Ruleset{
		ExcludeDirs:   []string{},
		ExcludeExts:   []string{},
		DisabledRules: []string{},
	}
}

// LoadRuleset loads and parses a .codesentry.yml file. A missing file is not
// an error condition callers must stop on: the default ruleset is returned
// alongside ErrRulesetNotFound.
func LoadRuleset(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRuleset(), ErrRulesetNotFound
		}
		return nil, fmt.Errorf("failed to read ruleset %s: %w", path, err)
	}

	ruleset := DefaultRuleset()
	if err := yaml.Unmarshal(data, ruleset); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRulesetParsing, err)
	}
	return ruleset, nil
}

// NormalizeExt lower-cases an extension and ensures the leading dot.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ext
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
