// Package storage implements the Postgres-backed persistence layer.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	// import db drivers
	_ "github.com/lib/pq"

	"github.com/codesentry/codesentry/internal/core"
)

type postgresStore struct {
	db *sqlx.DB
}

// NewStore creates the Postgres implementation of core.Store.
func NewStore(db *sqlx.DB) core.Store {
	return &postgresStore{db: db}
}

// terminalStatuses is spliced into conditional updates so no write can leave
// a terminal state.
const terminalStatuses = `('completed', 'failed', 'cancelled')`

// QueueReview upserts the review to pending and clears derived rows in one
// transaction, so a concurrent reader never observes a mix of two analysis
// runs.
func (s *postgresStore) QueueReview(ctx context.Context, review *core.Review) (*core.Review, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin queue transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
		INSERT INTO reviews (pr_number, repo_full_name, installation_id, status, metadata, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL)
		ON CONFLICT ON CONSTRAINT reviews_pr_repo_unique DO UPDATE
		SET status = EXCLUDED.status,
		    installation_id = EXCLUDED.installation_id,
		    metadata = EXCLUDED.metadata,
		    completed_at = NULL
		RETURNING id, created_at`

	queued := *review
	queued.Status = core.StatusPending
	if queued.Metadata == nil {
		queued.Metadata = core.ReviewMetadata{}
	}

	row := tx.QueryRowxContext(ctx, upsert,
		queued.PRNumber, queued.RepoFullName, queued.InstallationID,
		queued.Status, queued.Metadata, time.Now().UTC())
	if err := row.Scan(&queued.ID, &queued.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to upsert review: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_changes WHERE review_id = $1`, queued.ID); err != nil {
		return nil, fmt.Errorf("failed to clear file changes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM review_comments WHERE review_id = $1`, queued.ID); err != nil {
		return nil, fmt.Errorf("failed to clear review comments: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit queue transaction: %w", err)
	}
	return &queued, nil
}

// TransitionReview performs a compare-and-swap style status update that
// refuses to overwrite a terminal state. It reports whether the row changed.
func (s *postgresStore) TransitionReview(ctx context.Context, reviewID int64, next core.ReviewStatus, meta core.ReviewMetadata) (bool, error) {
	if !next.Valid() {
		return false, fmt.Errorf("invalid review status %q", next)
	}

	// completed_at marks a finished pipeline; a cancelled review never
	// finished, so it keeps NULL.
	var completedAt *time.Time
	if next == core.StatusCompleted || next == core.StatusFailed {
		now := time.Now().UTC()
		completedAt = &now
	}

	query := `
		UPDATE reviews
		SET status = $2, completed_at = $3
		WHERE id = $1 AND status NOT IN ` + terminalStatuses
	args := []any{reviewID, next, completedAt}
	if meta != nil {
		query = `
		UPDATE reviews
		SET status = $2, completed_at = $3, metadata = $4
		WHERE id = $1 AND status NOT IN ` + terminalStatuses
		args = append(args, meta)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition review %d to %s: %w", reviewID, next, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// SetReviewProgress overwrites the metadata of a non-terminal review. Writes
// are best effort and deliberately unguarded against each other.
func (s *postgresStore) SetReviewProgress(ctx context.Context, reviewID int64, meta core.ReviewMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reviews SET metadata = $2
		WHERE id = $1 AND status NOT IN `+terminalStatuses, reviewID, meta)
	if err != nil {
		return fmt.Errorf("failed to set progress for review %d: %w", reviewID, err)
	}
	return nil
}

func (s *postgresStore) CancelReviewsForPR(ctx context.Context, repoFullName string, prNumber int) (int64, error) {
	// completed_at stays untouched: a cancelled review never finished.
	res, err := s.db.ExecContext(ctx, `
		UPDATE reviews SET status = $3
		WHERE repo_full_name = $1 AND pr_number = $2 AND status NOT IN `+terminalStatuses,
		repoFullName, prNumber, core.StatusCancelled)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel reviews for %s#%d: %w", repoFullName, prNumber, err)
	}
	return res.RowsAffected()
}

func (s *postgresStore) SaveFileChange(ctx context.Context, fc *core.FileChange) error {
	const query = `
		INSERT INTO file_changes (review_id, filename, status, language, additions, deletions, patch, analyzed, should_review)
		VALUES (:review_id, :filename, :status, :language, :additions, :deletions, :patch, :analyzed, :should_review)
		RETURNING id`

	rows, err := s.db.NamedQueryContext(ctx, query, fc)
	if err != nil {
		return fmt.Errorf("failed to save file change for %s: %w", fc.Filename, err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&fc.ID); err != nil {
			return fmt.Errorf("failed to scan file change id: %w", err)
		}
	}
	return rows.Err()
}

func (s *postgresStore) SaveReviewComments(ctx context.Context, comments []core.ReviewComment) error {
	if len(comments) == 0 {
		return nil
	}
	const query = `
		INSERT INTO review_comments (review_id, filename, line, severity, issue_type, message, suggestion, rule_id)
		VALUES (:review_id, :filename, :line, :severity, :issue_type, :message, :suggestion, :rule_id)`

	if _, err := s.db.NamedExecContext(ctx, query, comments); err != nil {
		return fmt.Errorf("failed to save %d review comments: %w", len(comments), err)
	}
	return nil
}

func (s *postgresStore) GetReview(ctx context.Context, reviewID int64) (*core.Review, error) {
	var review core.Review
	err := s.db.GetContext(ctx, &review, `
		SELECT id, pr_number, repo_full_name, installation_id, status, metadata, created_at, completed_at
		FROM reviews WHERE id = $1`, reviewID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrReviewNotFound
		}
		return nil, fmt.Errorf("failed to get review %d: %w", reviewID, err)
	}
	return &review, nil
}

func (s *postgresStore) GetReviewComments(ctx context.Context, reviewID int64) ([]core.ReviewComment, error) {
	var comments []core.ReviewComment
	err := s.db.SelectContext(ctx, &comments, `
		SELECT id, review_id, filename, line, severity, issue_type, message, suggestion, rule_id
		FROM review_comments WHERE review_id = $1 ORDER BY filename, line, id`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to get comments for review %d: %w", reviewID, err)
	}
	return comments, nil
}

func (s *postgresStore) GetReviewFiles(ctx context.Context, reviewID int64) ([]core.FileChange, error) {
	var files []core.FileChange
	err := s.db.SelectContext(ctx, &files, `
		SELECT id, review_id, filename, status, language, additions, deletions, patch, analyzed, should_review
		FROM file_changes WHERE review_id = $1 ORDER BY filename, id`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("failed to get files for review %d: %w", reviewID, err)
	}
	return files, nil
}

func (s *postgresStore) ListReviews(ctx context.Context, opts core.ListOptions) ([]core.Review, int, error) {
	return s.listReviews(ctx, "", opts)
}

func (s *postgresStore) ListReviewsForRepo(ctx context.Context, repoFullName string, opts core.ListOptions) ([]core.Review, int, error) {
	return s.listReviews(ctx, repoFullName, opts)
}

func (s *postgresStore) listReviews(ctx context.Context, repoFullName string, opts core.ListOptions) ([]core.Review, int, error) {
	page := max(opts.Page, 1)
	perPage := opts.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}

	where := `WHERE ($1 = '' OR repo_full_name = $1) AND ($2 = '' OR status = $2)`
	args := []any{repoFullName, string(opts.Status)}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT count(*) FROM reviews `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	var reviews []core.Review
	query := `
		SELECT id, pr_number, repo_full_name, installation_id, status, metadata, created_at, completed_at
		FROM reviews ` + where + `
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`
	if err := s.db.SelectContext(ctx, &reviews, query, repoFullName, string(opts.Status), perPage, (page-1)*perPage); err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, total, nil
}

func (s *postgresStore) CountReviewsByStatus(ctx context.Context) (map[core.ReviewStatus]int64, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT status, count(*) FROM reviews GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reviews by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.ReviewStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[core.ReviewStatus(status)] = count
	}
	return counts, rows.Err()
}

func (s *postgresStore) UpsertInstallation(ctx context.Context, inst *core.Installation, repos []core.Repository) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin installation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO installations (id, account_login, account_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET account_login = EXCLUDED.account_login, account_type = EXCLUDED.account_type`,
		inst.ID, inst.AccountLogin, inst.AccountType)
	if err != nil {
		return fmt.Errorf("failed to upsert installation %d: %w", inst.ID, err)
	}

	for _, repo := range repos {
		if err := upsertRepository(ctx, tx, repo); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit installation transaction: %w", err)
	}
	return nil
}

// DeleteInstallation cancels the installation's active reviews, removes its
// repositories, and deletes the installation row in one transaction.
func (s *postgresStore) DeleteInstallation(ctx context.Context, installationID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE reviews SET status = $2
		WHERE installation_id = $1 AND status NOT IN `+terminalStatuses,
		installationID, core.StatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel reviews for installation %d: %w", installationID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM repositories WHERE installation_id = $1`, installationID); err != nil {
		return fmt.Errorf("failed to delete repositories for installation %d: %w", installationID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM installations WHERE id = $1`, installationID); err != nil {
		return fmt.Errorf("failed to delete installation %d: %w", installationID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete transaction: %w", err)
	}
	return nil
}

func (s *postgresStore) AddRepositories(ctx context.Context, repos []core.Repository) error {
	if len(repos) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin repository transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, repo := range repos {
		if err := upsertRepository(ctx, tx, repo); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit repository transaction: %w", err)
	}
	return nil
}

func (s *postgresStore) RemoveRepositories(ctx context.Context, installationID int64, repoIDs []int64) error {
	if len(repoIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		`DELETE FROM repositories WHERE installation_id = ? AND repo_id IN (?)`,
		installationID, repoIDs)
	if err != nil {
		return fmt.Errorf("failed to build repository delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to remove repositories for installation %d: %w", installationID, err)
	}
	return nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func upsertRepository(ctx context.Context, tx *sqlx.Tx, repo core.Repository) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO repositories (installation_id, repo_id, full_name, private)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (installation_id, repo_id) DO UPDATE
		SET full_name = EXCLUDED.full_name, private = EXCLUDED.private`,
		repo.InstallationID, repo.RepoID, repo.FullName, repo.Private)
	if err != nil {
		return fmt.Errorf("failed to upsert repository %s: %w", repo.FullName, err)
	}
	return nil
}
