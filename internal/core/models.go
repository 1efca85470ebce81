package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Review is the persistent record of one analysis run over a pull request.
// A PR has at most one Review row; re-delivery of "synchronize" events
// re-uses the row via the (PRNumber, RepoFullName) unique constraint.
type Review struct {
	ID             int64          `db:"id"`
	PRNumber       int            `db:"pr_number"`
	RepoFullName   string         `db:"repo_full_name"`
	InstallationID int64          `db:"installation_id"`
	Status         ReviewStatus   `db:"status"`
	Metadata       ReviewMetadata `db:"metadata"`
	CreatedAt      time.Time      `db:"created_at"`
	CompletedAt    *time.Time     `db:"completed_at"`
}

// ReviewMetadata is the loosely-typed progress/result blob stored with a
// review. Its schema is additive: consumers must tolerate missing keys.
type ReviewMetadata map[string]any

// Value marshals the metadata to JSON for storage in a jsonb column.
func (m ReviewMetadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan unmarshals a jsonb column into the metadata map.
func (m *ReviewMetadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = ReviewMetadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into ReviewMetadata", src)
	}
}

// Well-known metadata keys.
const (
	MetaStep          = "step"
	MetaProgress      = "progress"
	MetaTotalFiles    = "total_files"
	MetaAnalyzedFiles = "analyzed_files"
	MetaIssueCount    = "issue_count"
	MetaError         = "error"
)

// Pipeline step names recorded under MetaStep.
const (
	StepFetchingFiles  = "fetching_files"
	StepAnalyzingFiles = "analyzing_files"
	StepReady          = "ready_for_further_processing"
)

// FileChange records one changed file of a review, including the raw patch
// it was analyzed from. Rows are cascade-deleted when the review is re-queued.
type FileChange struct {
	ID           int64  `db:"id"`
	ReviewID     int64  `db:"review_id"`
	Filename     string `db:"filename"`
	Status       string `db:"status"`
	Language     string `db:"language"`
	Additions    int    `db:"additions"`
	Deletions    int    `db:"deletions"`
	Patch        string `db:"patch"`
	Analyzed     bool   `db:"analyzed"`
	ShouldReview bool   `db:"should_review"`
}

// ReviewComment is a single line-level finding attached to a review.
type ReviewComment struct {
	ID         int64  `db:"id"`
	ReviewID   int64  `db:"review_id"`
	Filename   string `db:"filename"`
	Line       int    `db:"line"`
	Severity   string `db:"severity"`
	IssueType  string `db:"issue_type"`
	Message    string `db:"message"`
	Suggestion string `db:"suggestion"`
	RuleID     string `db:"rule_id"`
}

// Installation mirrors a GitHub App installation grant.
type Installation struct {
	ID           int64  `db:"id"`
	AccountLogin string `db:"account_login"`
	AccountType  string `db:"account_type"`
}

// Repository mirrors one repository reachable through an installation.
type Repository struct {
	InstallationID int64  `db:"installation_id"`
	RepoID         int64  `db:"repo_id"`
	FullName       string `db:"full_name"`
	Private        bool   `db:"private"`
}

// PullRequestFile is one changed file as reported by the hosting platform.
type PullRequestFile struct {
	Filename  string
	Status    string
	Additions int
	Deletions int
	Patch     string
}

// Issue is a single finding produced by the detection engine for one line.
type Issue struct {
	Severity   string
	Category   string
	Message    string
	Suggestion string
	RuleID     string
}

// Issue severities, lowest to highest.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Issue categories.
const (
	CategorySecurity    = "security"
	CategoryPerformance = "performance"
	CategoryQuality     = "quality"
	CategoryBug         = "bug"
	CategoryStyle       = "style"
)

// FileAnalysis is the in-memory result of analyzing one changed file.
type FileAnalysis struct {
	Filename     string
	Status       string
	Language     string
	Additions    int
	Deletions    int
	Patch        string
	ShouldReview bool
	Issues       []LineIssue
}

// LineIssue ties an Issue to the post-change line it was found on.
type LineIssue struct {
	Line  int
	Issue Issue
}
