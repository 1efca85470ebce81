package core

import (
	"context"
	"errors"
)

// ErrReviewNotFound is returned by read operations when no review matches.
var ErrReviewNotFound = errors.New("review not found")

// ListOptions controls pagination for review listings.
type ListOptions struct {
	Page    int
	PerPage int
	Status  ReviewStatus // optional filter; empty means all
}

// Store defines the persistence operations the lifecycle and the read-side
// endpoints depend on. Every mutating operation returns an explicit error so
// the orchestration layer can decide how a failure propagates.
type Store interface {
	// QueueReview upserts a review keyed on (PRNumber, RepoFullName) to the
	// pending state and deletes all previously derived FileChange and
	// ReviewComment rows, all inside one transaction. The returned review
	// carries the durable ID.
	QueueReview(ctx context.Context, review *Review) (*Review, error)

	// TransitionReview conditionally moves a review to next, refusing to
	// leave a terminal state. It reports whether the write was applied.
	// Completed and failed targets also set completed_at; cancelled does
	// not, since a cancelled review never finished.
	TransitionReview(ctx context.Context, reviewID int64, next ReviewStatus, meta ReviewMetadata) (bool, error)

	// SetReviewProgress overwrites the metadata blob of a non-terminal
	// review. Best effort; later writes may overtake earlier ones.
	SetReviewProgress(ctx context.Context, reviewID int64, meta ReviewMetadata) error

	// CancelReviewsForPR cancels all non-terminal reviews for a PR and
	// reports how many rows changed.
	CancelReviewsForPR(ctx context.Context, repoFullName string, prNumber int) (int64, error)

	SaveFileChange(ctx context.Context, fc *FileChange) error
	SaveReviewComments(ctx context.Context, comments []ReviewComment) error

	GetReview(ctx context.Context, reviewID int64) (*Review, error)
	GetReviewComments(ctx context.Context, reviewID int64) ([]ReviewComment, error)
	GetReviewFiles(ctx context.Context, reviewID int64) ([]FileChange, error)
	ListReviews(ctx context.Context, opts ListOptions) ([]Review, int, error)
	ListReviewsForRepo(ctx context.Context, repoFullName string, opts ListOptions) ([]Review, int, error)
	CountReviewsByStatus(ctx context.Context) (map[ReviewStatus]int64, error)

	UpsertInstallation(ctx context.Context, inst *Installation, repos []Repository) error
	// DeleteInstallation cancels the installation's non-terminal reviews,
	// removes its repositories, and deletes the installation row in one
	// transaction.
	DeleteInstallation(ctx context.Context, installationID int64) error
	AddRepositories(ctx context.Context, repos []Repository) error
	RemoveRepositories(ctx context.Context, installationID int64, repoIDs []int64) error

	Ping(ctx context.Context) error
}

// FileFetcher is the minimal outbound contract against the hosting platform:
// list a PR's changed files, post a summary comment. Implementations carry
// the installation credentials they were built with.
type FileFetcher interface {
	ListChangedFiles(ctx context.Context, owner, repo string, number int) ([]PullRequestFile, error)
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
}

// ClientFactory builds a FileFetcher authenticated as a specific App
// installation. Tests substitute a fake factory.
type ClientFactory interface {
	ClientFor(ctx context.Context, installationID int64) (FileFetcher, error)
}
