package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/codesentry/codesentry/internal/analyzer"
	"github.com/codesentry/codesentry/internal/core"
)

// fileConcurrency bounds how many changed files are analyzed and persisted
// in parallel within one review. FileChange/ReviewComment rows share no
// uniqueness constraint, so per-file writes are free to interleave.
const fileConcurrency = 4

// Lifecycle drives reviews through their states in response to webhook
// events. All durable state lives in the store; the transactional upsert on
// (pr_number, repo_full_name) is the sole concurrency-control primitive, so
// duplicate and concurrent deliveries of the same logical event converge on
// one review row.
type Lifecycle struct {
	store    core.Store
	clients  core.ClientFactory
	analyzer *analyzer.Analyzer
	logger   *slog.Logger
}

// NewLifecycle creates the lifecycle job with its injected collaborators.
func NewLifecycle(store core.Store, clients core.ClientFactory, a *analyzer.Analyzer, logger *slog.Logger) *Lifecycle {
	if store == nil {
		panic("store cannot be nil")
	}
	if clients == nil {
		panic("client factory cannot be nil")
	}
	if a == nil {
		panic("analyzer cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &Lifecycle{store: store, clients: clients, analyzer: a, logger: logger}
}

// Run executes the lifecycle reaction for one event.
func (l *Lifecycle) Run(ctx context.Context, event *core.Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	switch event.Kind {
	case core.KindPullRequest:
		return l.handlePullRequest(ctx, event.PullRequest)
	case core.KindInstallation:
		return l.handleInstallation(ctx, event.Installation)
	case core.KindInstallationRepositories:
		return l.handleInstallationRepos(ctx, event.InstallationRepos)
	default:
		return fmt.Errorf("unhandled event kind %q", event.Kind)
	}
}

func (l *Lifecycle) handlePullRequest(ctx context.Context, event *core.PullRequestEvent) error {
	if event == nil {
		return fmt.Errorf("pull request payload is missing")
	}

	switch event.Action {
	case core.ActionClosed:
		return l.cancelReviews(ctx, event)
	case core.ActionOpened, core.ActionSynchronize, core.ActionReopened:
		return l.runReview(ctx, event)
	default:
		return fmt.Errorf("unhandled pull request action %q", event.Action)
	}
}

// cancelReviews marks the PR's active reviews cancelled. Cancellation is
// advisory: an in-flight pipeline for the same PR is not interrupted, but
// its terminal write will be refused by the transition guard.
func (l *Lifecycle) cancelReviews(ctx context.Context, event *core.PullRequestEvent) error {
	n, err := l.store.CancelReviewsForPR(ctx, event.RepoFullName, event.PRNumber)
	if err != nil {
		return fmt.Errorf("failed to cancel reviews for %s#%d: %w", event.RepoFullName, event.PRNumber, err)
	}
	l.logger.Info("cancelled reviews for closed pull request",
		"repo", event.RepoFullName, "pr", event.PRNumber, "cancelled", n)
	return nil
}

// runReview executes the full fetch/analyze pipeline for one PR event.
// Fetch and analysis failures are absorbed here: the review is marked failed
// with the cause recorded in its metadata, and the error is returned so the
// dispatcher can log it.
func (l *Lifecycle) runReview(ctx context.Context, event *core.PullRequestEvent) error {
	if err := validatePullRequestEvent(event); err != nil {
		return fmt.Errorf("input validation failed: %w", err)
	}

	l.logger.Info("queuing review", "repo", event.RepoFullName, "pr", event.PRNumber, "action", event.Action)

	review, err := l.store.QueueReview(ctx, &core.Review{
		PRNumber:       event.PRNumber,
		RepoFullName:   event.RepoFullName,
		InstallationID: event.InstallationID,
		Metadata:       core.ReviewMetadata{},
	})
	if err != nil {
		return fmt.Errorf("failed to queue review for %s#%d: %w", event.RepoFullName, event.PRNumber, err)
	}

	applied, err := l.store.TransitionReview(ctx, review.ID, core.StatusInProgress, core.ReviewMetadata{
		core.MetaStep:     core.StepFetchingFiles,
		core.MetaProgress: 0,
	})
	if err != nil {
		return fmt.Errorf("failed to start review %d: %w", review.ID, err)
	}
	if !applied {
		// The review reached a terminal state between the upsert and now,
		// most likely a racing "closed" delivery.
		l.logger.Info("review superseded before start", "review_id", review.ID)
		return nil
	}

	client, err := l.clients.ClientFor(ctx, event.InstallationID)
	if err != nil {
		return l.failReview(ctx, review.ID, fmt.Errorf("failed to create installation client: %w", err))
	}

	files, err := client.ListChangedFiles(ctx, event.RepoOwner, event.RepoName, event.PRNumber)
	if err != nil {
		return l.failReview(ctx, review.ID, fmt.Errorf("failed to fetch changed files: %w", err))
	}

	issueCount, err := l.analyzeFiles(ctx, review.ID, files)
	if err != nil {
		return l.failReview(ctx, review.ID, err)
	}

	if err := l.store.SetReviewProgress(ctx, review.ID, core.ReviewMetadata{
		core.MetaStep:          core.StepReady,
		core.MetaProgress:      100,
		core.MetaTotalFiles:    len(files),
		core.MetaAnalyzedFiles: len(files),
		core.MetaIssueCount:    issueCount,
	}); err != nil {
		l.logger.Warn("failed to write final progress", "review_id", review.ID, "error", err)
	}

	applied, err = l.store.TransitionReview(ctx, review.ID, core.StatusCompleted, core.ReviewMetadata{
		core.MetaStep:       core.StepReady,
		core.MetaProgress:   100,
		core.MetaTotalFiles: len(files),
		core.MetaIssueCount: issueCount,
	})
	if err != nil {
		return fmt.Errorf("failed to complete review %d: %w", review.ID, err)
	}
	if !applied {
		l.logger.Info("review was cancelled during analysis; completion skipped", "review_id", review.ID)
		return nil
	}

	if issueCount > 0 {
		l.postSummary(ctx, client, event, len(files), issueCount)
	}

	l.logger.Info("review completed",
		"repo", event.RepoFullName, "pr", event.PRNumber,
		"files", len(files), "issues", issueCount)
	return nil
}

// analyzeFiles runs the per-file pipeline and returns the number of issues
// found. Progress writes are best effort and intentionally not serialized.
func (l *Lifecycle) analyzeFiles(ctx context.Context, reviewID int64, files []core.PullRequestFile) (int, error) {
	if err := l.store.SetReviewProgress(ctx, reviewID, core.ReviewMetadata{
		core.MetaStep:       core.StepAnalyzingFiles,
		core.MetaProgress:   0,
		core.MetaTotalFiles: len(files),
	}); err != nil {
		l.logger.Warn("failed to write progress", "review_id", reviewID, "error", err)
	}

	var analyzed, issueCount atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fileConcurrency)

	for _, file := range files {
		g.Go(func() error {
			analysis := l.analyzer.Analyze(file)

			fc := &core.FileChange{
				ReviewID:     reviewID,
				Filename:     analysis.Filename,
				Status:       analysis.Status,
				Language:     analysis.Language,
				Additions:    analysis.Additions,
				Deletions:    analysis.Deletions,
				Patch:        analysis.Patch,
				Analyzed:     analysis.ShouldReview && analysis.Patch != "",
				ShouldReview: analysis.ShouldReview,
			}
			if err := l.store.SaveFileChange(gctx, fc); err != nil {
				return fmt.Errorf("failed to persist file change %s: %w", analysis.Filename, err)
			}

			if len(analysis.Issues) > 0 {
				comments := make([]core.ReviewComment, 0, len(analysis.Issues))
				for _, li := range analysis.Issues {
					comments = append(comments, core.ReviewComment{
						ReviewID:   reviewID,
						Filename:   analysis.Filename,
						Line:       li.Line,
						Severity:   li.Issue.Severity,
						IssueType:  li.Issue.Category,
						Message:    li.Issue.Message,
						Suggestion: li.Issue.Suggestion,
						RuleID:     li.Issue.RuleID,
					})
				}
				if err := l.store.SaveReviewComments(gctx, comments); err != nil {
					return fmt.Errorf("failed to persist comments for %s: %w", analysis.Filename, err)
				}
				issueCount.Add(int64(len(comments)))
			}

			done := analyzed.Add(1)
			if err := l.store.SetReviewProgress(gctx, reviewID, core.ReviewMetadata{
				core.MetaStep:          core.StepAnalyzingFiles,
				core.MetaProgress:      int(done * 100 / int64(len(files))),
				core.MetaTotalFiles:    len(files),
				core.MetaAnalyzedFiles: int(done),
			}); err != nil {
				l.logger.Warn("failed to write progress", "review_id", reviewID, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(issueCount.Load()), nil
}

// failReview records the cause in the review's metadata, moves it to failed,
// and hands the original error back for the dispatcher to log.
func (l *Lifecycle) failReview(ctx context.Context, reviewID int64, cause error) error {
	applied, err := l.store.TransitionReview(ctx, reviewID, core.StatusFailed, core.ReviewMetadata{
		core.MetaError: cause.Error(),
	})
	if err != nil {
		l.logger.Error("failed to mark review failed", "review_id", reviewID, "error", err)
	} else if !applied {
		l.logger.Info("review already terminal; failure not recorded", "review_id", reviewID)
	}
	return cause
}

// postSummary leaves a short summary comment on the PR. Commenting is
// outbound convenience, not part of lifecycle correctness, so failures are
// only logged.
func (l *Lifecycle) postSummary(ctx context.Context, client core.FileFetcher, event *core.PullRequestEvent, fileCount, issueCount int) {
	body := fmt.Sprintf(
		"**CodeSentry** found %d potential issue(s) across %d changed file(s).\n\nSee the review record for per-line details.",
		issueCount, fileCount)
	if err := client.CreateComment(ctx, event.RepoOwner, event.RepoName, event.PRNumber, body); err != nil {
		l.logger.Warn("failed to post summary comment",
			"repo", event.RepoFullName, "pr", event.PRNumber, "error", err)
	}
}

func (l *Lifecycle) handleInstallation(ctx context.Context, event *core.InstallationEvent) error {
	if event == nil {
		return fmt.Errorf("installation payload is missing")
	}

	switch event.Action {
	case core.ActionCreated:
		err := l.store.UpsertInstallation(ctx, &core.Installation{
			ID:           event.InstallationID,
			AccountLogin: event.AccountLogin,
			AccountType:  event.AccountType,
		}, event.Repositories)
		if err != nil {
			return fmt.Errorf("failed to record installation %d: %w", event.InstallationID, err)
		}
		l.logger.Info("installation recorded",
			"installation_id", event.InstallationID,
			"account", event.AccountLogin,
			"repos", len(event.Repositories))
		return nil

	case core.ActionDeleted:
		if err := l.store.DeleteInstallation(ctx, event.InstallationID); err != nil {
			return fmt.Errorf("failed to delete installation %d: %w", event.InstallationID, err)
		}
		l.logger.Info("installation deleted", "installation_id", event.InstallationID)
		return nil

	default:
		return fmt.Errorf("unhandled installation action %q", event.Action)
	}
}

func (l *Lifecycle) handleInstallationRepos(ctx context.Context, event *core.InstallationReposEvent) error {
	if event == nil {
		return fmt.Errorf("installation_repositories payload is missing")
	}

	switch event.Action {
	case core.ActionAdded:
		if err := l.store.AddRepositories(ctx, event.Added); err != nil {
			return fmt.Errorf("failed to add repositories for installation %d: %w", event.InstallationID, err)
		}
		l.logger.Info("repositories added", "installation_id", event.InstallationID, "count", len(event.Added))
		return nil

	case core.ActionRemoved:
		if err := l.store.RemoveRepositories(ctx, event.InstallationID, event.RemovedRepoIDs); err != nil {
			return fmt.Errorf("failed to remove repositories for installation %d: %w", event.InstallationID, err)
		}
		l.logger.Info("repositories removed", "installation_id", event.InstallationID, "count", len(event.RemovedRepoIDs))
		return nil

	default:
		return fmt.Errorf("unhandled installation_repositories action %q", event.Action)
	}
}

// validatePullRequestEvent ensures the event contains all required fields.
func validatePullRequestEvent(event *core.PullRequestEvent) error {
	if event.RepoOwner == "" {
		return fmt.Errorf("repository owner cannot be empty")
	}
	if event.RepoName == "" {
		return fmt.Errorf("repository name cannot be empty")
	}
	if event.RepoFullName == "" {
		return fmt.Errorf("repository full name cannot be empty")
	}
	if event.PRNumber <= 0 {
		return fmt.Errorf("pull request number must be positive, got: %d", event.PRNumber)
	}
	if event.InstallationID <= 0 {
		return fmt.Errorf("installation ID must be positive, got: %d", event.InstallationID)
	}
	return nil
}
