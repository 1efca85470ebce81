// Package analyzer decides which changed files are worth reviewing and runs
// line-level pattern checks over their patches.
package analyzer

import (
	"path"
	"strings"
)

// languageByExt maps source file extensions to the language tag used to
// select detection rules.
var languageByExt = map[string]string{
	".go":    "go",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".py":    "python",
	".rb":    "ruby",
	".java":  "java",
	".kt":    "kotlin",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".toml":  "toml",
	".tf":    "terraform",
	".html":  "html",
	".css":   "css",
	".scss":  "css",
	".vue":   "vue",
	".md":    "markdown",
}

// binaryExts are never reviewed.
var binaryExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".ico": {},
	".svg": {}, ".webp": {}, ".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {},
	".7z": {}, ".rar": {}, ".exe": {}, ".dll": {}, ".so": {}, ".dylib": {},
	".bin": {}, ".dat": {}, ".db": {}, ".sqlite": {}, ".woff": {},
	".woff2": {}, ".ttf": {}, ".eot": {}, ".mp3": {}, ".mp4": {}, ".avi": {},
	".mov": {}, ".jar": {}, ".class": {}, ".pyc": {}, ".wasm": {},
}

// denyPathFragments mark vendored, generated, or otherwise unreviewable
// paths; a filename containing any of them is out of scope.
var denyPathFragments = []string{
	"vendor/",
	"node_modules/",
	"dist/",
	"build/",
	"target/",
	"coverage/",
	".git/",
	"__pycache__/",
	"generated/",
	".min.js",
	".min.css",
	".bundle.js",
	"_pb2.py",
	".pb.go",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
	"Cargo.lock",
	"composer.lock",
	"Gemfile.lock",
}

// configBasenames are extensionless files still worth reviewing.
var configBasenames = map[string]struct{}{
	"Dockerfile":  {},
	"Makefile":    {},
	"Rakefile":    {},
	"Gemfile":     {},
	"Procfile":    {},
	"Jenkinsfile": {},
	"Vagrantfile": {},
	"BUILD":       {},
	"WORKSPACE":   {},
	"LICENSE":     {},
	"CODEOWNERS":  {},
}

// DetectLanguage returns the language tag for a filename, or "unknown" when
// the extension is not recognized.
func DetectLanguage(filename string) string {
	if lang, ok := languageByExt[strings.ToLower(path.Ext(filename))]; ok {
		return lang
	}
	return "unknown"
}

// ShouldReview reports whether a changed file is in scope for analysis.
// Removed files, binary files, and deny-listed paths never are. Files whose
// extension is not a known source language stay in scope only when they are
// extensionless build/config files or dotfiles.
func (a *Analyzer) ShouldReview(filename, status string) bool {
	if status == "removed" {
		return false
	}

	ext := strings.ToLower(path.Ext(filename))
	if _, ok := binaryExts[ext]; ok {
		return false
	}

	for _, fragment := range a.denyFragments {
		if strings.Contains(filename, fragment) {
			return false
		}
	}
	for _, skip := range a.excludeExts {
		if ext != "" && ext == skip {
			return false
		}
	}

	if _, ok := languageByExt[ext]; ok {
		return true
	}

	// Unknown extension: still in scope for extensionless files, recognized
	// build/config filenames, and dotfiles.
	base := path.Base(filename)
	if ext == "" || strings.HasPrefix(base, ".") {
		return true
	}
	_, ok := configBasenames[base]
	return ok
}
