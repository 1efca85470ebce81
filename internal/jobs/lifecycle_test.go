package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesentry/codesentry/internal/analyzer"
	"github.com/codesentry/codesentry/internal/core"
)

// fakeStore is an in-memory core.Store. The upsert keyed on
// (pr_number, repo_full_name) behaves like the database constraint,
// including under concurrent callers.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	reviews  map[int64]*core.Review
	byKey    map[string]int64
	files    map[int64][]core.FileChange
	comments map[int64][]core.ReviewComment
	installs map[int64]*core.Installation
	repos    map[int64][]core.Repository

	failSaveFileChange bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reviews:  map[int64]*core.Review{},
		byKey:    map[string]int64{},
		files:    map[int64][]core.FileChange{},
		comments: map[int64][]core.ReviewComment{},
		installs: map[int64]*core.Installation{},
		repos:    map[int64][]core.Repository{},
	}
}

func key(repo string, pr int) string { return fmt.Sprintf("%s#%d", repo, pr) }

func (s *fakeStore) QueueReview(_ context.Context, review *core.Review) (*core.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(review.RepoFullName, review.PRNumber)
	id, ok := s.byKey[k]
	if !ok {
		s.nextID++
		id = s.nextID
		s.byKey[k] = id
		s.reviews[id] = &core.Review{
			ID:           id,
			PRNumber:     review.PRNumber,
			RepoFullName: review.RepoFullName,
			CreatedAt:    time.Now(),
		}
	}

	r := s.reviews[id]
	r.InstallationID = review.InstallationID
	r.Status = core.StatusPending
	r.Metadata = core.ReviewMetadata{}
	r.CompletedAt = nil
	delete(s.files, id)
	delete(s.comments, id)

	queued := *r
	return &queued, nil
}

func (s *fakeStore) TransitionReview(_ context.Context, reviewID int64, next core.ReviewStatus, meta core.ReviewMetadata) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reviews[reviewID]
	if !ok {
		return false, core.ErrReviewNotFound
	}
	if r.Status.IsTerminal() {
		return false, nil
	}
	r.Status = next
	if meta != nil {
		r.Metadata = meta
	}
	if next == core.StatusCompleted || next == core.StatusFailed {
		now := time.Now()
		r.CompletedAt = &now
	}
	return true, nil
}

func (s *fakeStore) SetReviewProgress(_ context.Context, reviewID int64, meta core.ReviewMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reviews[reviewID]; ok && !r.Status.IsTerminal() {
		r.Metadata = meta
	}
	return nil
}

func (s *fakeStore) CancelReviewsForPR(_ context.Context, repoFullName string, prNumber int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.reviews {
		if r.RepoFullName == repoFullName && r.PRNumber == prNumber && !r.Status.IsTerminal() {
			r.Status = core.StatusCancelled
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) SaveFileChange(_ context.Context, fc *core.FileChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaveFileChange {
		return fmt.Errorf("disk full")
	}
	s.nextID++
	fc.ID = s.nextID
	s.files[fc.ReviewID] = append(s.files[fc.ReviewID], *fc)
	return nil
}

func (s *fakeStore) SaveReviewComments(_ context.Context, comments []core.ReviewComment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range comments {
		s.comments[c.ReviewID] = append(s.comments[c.ReviewID], c)
	}
	return nil
}

func (s *fakeStore) GetReview(_ context.Context, reviewID int64) (*core.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[reviewID]
	if !ok {
		return nil, core.ErrReviewNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeStore) GetReviewComments(_ context.Context, reviewID int64) ([]core.ReviewComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ReviewComment(nil), s.comments[reviewID]...), nil
}

func (s *fakeStore) GetReviewFiles(_ context.Context, reviewID int64) ([]core.FileChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.FileChange(nil), s.files[reviewID]...), nil
}

func (s *fakeStore) ListReviews(_ context.Context, _ core.ListOptions) ([]core.Review, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Review
	for _, r := range s.reviews {
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (s *fakeStore) ListReviewsForRepo(_ context.Context, repo string, _ core.ListOptions) ([]core.Review, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Review
	for _, r := range s.reviews {
		if r.RepoFullName == repo {
			out = append(out, *r)
		}
	}
	return out, len(out), nil
}

func (s *fakeStore) CountReviewsByStatus(_ context.Context) (map[core.ReviewStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[core.ReviewStatus]int64{}
	for _, r := range s.reviews {
		counts[r.Status]++
	}
	return counts, nil
}

func (s *fakeStore) UpsertInstallation(_ context.Context, inst *core.Installation, repos []core.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inst
	s.installs[inst.ID] = &cp
	for _, repo := range repos {
		s.repos[inst.ID] = append(s.repos[inst.ID], repo)
	}
	return nil
}

func (s *fakeStore) DeleteInstallation(_ context.Context, installationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.InstallationID == installationID && !r.Status.IsTerminal() {
			r.Status = core.StatusCancelled
		}
	}
	delete(s.repos, installationID)
	delete(s.installs, installationID)
	return nil
}

func (s *fakeStore) AddRepositories(_ context.Context, repos []core.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, repo := range repos {
		s.repos[repo.InstallationID] = append(s.repos[repo.InstallationID], repo)
	}
	return nil
}

func (s *fakeStore) RemoveRepositories(_ context.Context, installationID int64, repoIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	remove := map[int64]struct{}{}
	for _, id := range repoIDs {
		remove[id] = struct{}{}
	}
	var kept []core.Repository
	for _, repo := range s.repos[installationID] {
		if _, gone := remove[repo.RepoID]; !gone {
			kept = append(kept, repo)
		}
	}
	s.repos[installationID] = kept
	return nil
}

func (s *fakeStore) Ping(_ context.Context) error { return nil }

// fakeFetcher serves a fixed file list and records posted comments.
type fakeFetcher struct {
	mu       sync.Mutex
	files    []core.PullRequestFile
	listErr  error
	comments []string
}

func (f *fakeFetcher) ListChangedFiles(_ context.Context, _, _ string, _ int) ([]core.PullRequestFile, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.files, nil
}

func (f *fakeFetcher) CreateComment(_ context.Context, _, _ string, _ int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, body)
	return nil
}

type fakeFactory struct {
	fetcher *fakeFetcher
	err     error
}

func (f *fakeFactory) ClientFor(_ context.Context, _ int64) (core.FileFetcher, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fetcher, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func prEvent(action string, pr int) *core.Event {
	return &core.Event{
		Kind: core.KindPullRequest,
		PullRequest: &core.PullRequestEvent{
			Action:         action,
			RepoOwner:      "acme",
			RepoName:       "widgets",
			RepoFullName:   "acme/widgets",
			PRNumber:       pr,
			InstallationID: 77,
		},
	}
}

func TestLifecycle_OpenedEventFullPipeline(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{files: []core.PullRequestFile{
		{
			Filename:  "a.js",
			Status:    "modified",
			Additions: 1,
			Patch:     "@@ -0,0 +3,1 @@\n+console.log('x')",
		},
		{
			Filename: "b.png",
			Status:   "modified",
		},
	}}
	l := NewLifecycle(store, &fakeFactory{fetcher: fetcher}, analyzer.New(nil), testLogger())

	err := l.Run(context.Background(), prEvent(core.ActionOpened, 12))
	require.NoError(t, err)

	reviews, total, _ := store.ListReviews(context.Background(), core.ListOptions{})
	require.Equal(t, 1, total)
	review := reviews[0]
	assert.Equal(t, core.StatusCompleted, review.Status)
	require.NotNil(t, review.CompletedAt)
	assert.Equal(t, core.StepReady, review.Metadata[core.MetaStep])

	files, _ := store.GetReviewFiles(context.Background(), review.ID)
	require.Len(t, files, 2)
	byName := map[string]core.FileChange{}
	for _, fc := range files {
		byName[fc.Filename] = fc
	}
	assert.True(t, byName["a.js"].ShouldReview)
	assert.Equal(t, "javascript", byName["a.js"].Language)
	assert.False(t, byName["b.png"].ShouldReview)

	comments, _ := store.GetReviewComments(context.Background(), review.ID)
	require.Len(t, comments, 1)
	assert.Equal(t, "a.js", comments[0].Filename)
	assert.Equal(t, 3, comments[0].Line)
	assert.Equal(t, core.SeverityMedium, comments[0].Severity)
	assert.Equal(t, core.CategoryQuality, comments[0].IssueType)

	// One issue found, so a summary comment was posted.
	require.Len(t, fetcher.comments, 1)
	assert.Contains(t, fetcher.comments[0], "1 potential issue")
}

func TestLifecycle_RequeueReplacesDerivedRows(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{files: []core.PullRequestFile{{
		Filename:  "app.py",
		Status:    "modified",
		Additions: 1,
		Patch:     "@@ -0,0 +1,1 @@\n+print('first run')",
	}}}
	l := NewLifecycle(store, &fakeFactory{fetcher: fetcher}, analyzer.New(nil), testLogger())

	require.NoError(t, l.Run(context.Background(), prEvent(core.ActionOpened, 4)))

	// Second push changes the patch: derived rows must be fully replaced.
	fetcher.files = []core.PullRequestFile{{
		Filename:  "app.py",
		Status:    "modified",
		Additions: 1,
		Patch:     "@@ -0,0 +9,1 @@\n+x = compute()",
	}}
	require.NoError(t, l.Run(context.Background(), prEvent(core.ActionSynchronize, 4)))

	_, total, _ := store.ListReviews(context.Background(), core.ListOptions{})
	assert.Equal(t, 1, total)

	reviewID := store.byKey[key("acme/widgets", 4)]
	files, _ := store.GetReviewFiles(context.Background(), reviewID)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Patch, "compute")

	comments, _ := store.GetReviewComments(context.Background(), reviewID)
	assert.Empty(t, comments, "first run's print() finding must not survive the re-queue")
}

func TestLifecycle_ConcurrentSynchronizeDeliveries(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{files: []core.PullRequestFile{{
		Filename:  "main.go",
		Status:    "modified",
		Additions: 1,
		Patch:     "@@ -0,0 +1,1 @@\n+x := 1",
	}}}
	l := NewLifecycle(store, &fakeFactory{fetcher: fetcher}, analyzer.New(nil), testLogger())

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Run(context.Background(), prEvent(core.ActionSynchronize, 9))
		}()
	}
	wg.Wait()

	_, total, _ := store.ListReviews(context.Background(), core.ListOptions{})
	assert.Equal(t, 1, total, "duplicate deliveries must converge on one review row")
}

func TestLifecycle_ClosedCancelsPendingReview(t *testing.T) {
	store := newFakeStore()
	l := NewLifecycle(store, &fakeFactory{fetcher: &fakeFetcher{}}, analyzer.New(nil), testLogger())

	queued, err := store.QueueReview(context.Background(), &core.Review{
		PRNumber: 5, RepoFullName: "acme/widgets", InstallationID: 77,
	})
	require.NoError(t, err)

	require.NoError(t, l.Run(context.Background(), prEvent(core.ActionClosed, 5)))

	review, err := store.GetReview(context.Background(), queued.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCancelled, review.Status)
	assert.Nil(t, review.CompletedAt, "a cancelled review never finished")
}

func TestLifecycle_ClosedDoesNotTouchCompletedReview(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{}
	l := NewLifecycle(store, &fakeFactory{fetcher: fetcher}, analyzer.New(nil), testLogger())

	require.NoError(t, l.Run(context.Background(), prEvent(core.ActionOpened, 6)))
	require.NoError(t, l.Run(context.Background(), prEvent(core.ActionClosed, 6)))

	reviewID := store.byKey[key("acme/widgets", 6)]
	review, _ := store.GetReview(context.Background(), reviewID)
	assert.Equal(t, core.StatusCompleted, review.Status,
		"terminal states must not be overwritten by a closed event")
}

func TestLifecycle_FetchFailureMarksReviewFailed(t *testing.T) {
	store := newFakeStore()
	fetcher := &fakeFetcher{listErr: fmt.Errorf("api rate limit exceeded")}
	l := NewLifecycle(store, &fakeFactory{fetcher: fetcher}, analyzer.New(nil), testLogger())

	err := l.Run(context.Background(), prEvent(core.ActionOpened, 8))
	require.Error(t, err)

	reviewID := store.byKey[key("acme/widgets", 8)]
	review, _ := store.GetReview(context.Background(), reviewID)
	assert.Equal(t, core.StatusFailed, review.Status)
	assert.Contains(t, review.Metadata[core.MetaError], "rate limit")
}

func TestLifecycle_PersistenceFailureMarksReviewFailed(t *testing.T) {
	store := newFakeStore()
	store.failSaveFileChange = true
	fetcher := &fakeFetcher{files: []core.PullRequestFile{{
		Filename: "main.go", Status: "modified", Patch: "@@ -0,0 +1,1 @@\n+x := 1",
	}}}
	l := NewLifecycle(store, &fakeFactory{fetcher: fetcher}, analyzer.New(nil), testLogger())

	err := l.Run(context.Background(), prEvent(core.ActionOpened, 3))
	require.Error(t, err)

	reviewID := store.byKey[key("acme/widgets", 3)]
	review, _ := store.GetReview(context.Background(), reviewID)
	assert.Equal(t, core.StatusFailed, review.Status)
}

func TestLifecycle_InstallationBookkeeping(t *testing.T) {
	store := newFakeStore()
	l := NewLifecycle(store, &fakeFactory{fetcher: &fakeFetcher{}}, analyzer.New(nil), testLogger())

	created := &core.Event{
		Kind: core.KindInstallation,
		Installation: &core.InstallationEvent{
			Action:         core.ActionCreated,
			InstallationID: 77,
			AccountLogin:   "acme",
			AccountType:    "Organization",
			Repositories: []core.Repository{
				{InstallationID: 77, RepoID: 1, FullName: "acme/widgets"},
				{InstallationID: 77, RepoID: 2, FullName: "acme/gadgets", Private: true},
			},
		},
	}
	require.NoError(t, l.Run(context.Background(), created))
	assert.Len(t, store.repos[77], 2)

	added := &core.Event{
		Kind: core.KindInstallationRepositories,
		InstallationRepos: &core.InstallationReposEvent{
			Action:         core.ActionAdded,
			InstallationID: 77,
			Added:          []core.Repository{{InstallationID: 77, RepoID: 3, FullName: "acme/tools"}},
		},
	}
	require.NoError(t, l.Run(context.Background(), added))
	assert.Len(t, store.repos[77], 3)

	removed := &core.Event{
		Kind: core.KindInstallationRepositories,
		InstallationRepos: &core.InstallationReposEvent{
			Action:         core.ActionRemoved,
			InstallationID: 77,
			RemovedRepoIDs: []int64{2},
		},
	}
	require.NoError(t, l.Run(context.Background(), removed))
	assert.Len(t, store.repos[77], 2)

	// A pending review under the installation gets cancelled on delete.
	queued, err := store.QueueReview(context.Background(), &core.Review{
		PRNumber: 1, RepoFullName: "acme/widgets", InstallationID: 77,
	})
	require.NoError(t, err)

	deleted := &core.Event{
		Kind: core.KindInstallation,
		Installation: &core.InstallationEvent{
			Action:         core.ActionDeleted,
			InstallationID: 77,
		},
	}
	require.NoError(t, l.Run(context.Background(), deleted))

	review, _ := store.GetReview(context.Background(), queued.ID)
	assert.Equal(t, core.StatusCancelled, review.Status)
	assert.Empty(t, store.repos[77])
	assert.NotContains(t, store.installs, int64(77))
}

func TestLifecycle_ClientFactoryFailure(t *testing.T) {
	store := newFakeStore()
	l := NewLifecycle(store, &fakeFactory{err: fmt.Errorf("bad credentials")}, analyzer.New(nil), testLogger())

	err := l.Run(context.Background(), prEvent(core.ActionOpened, 2))
	require.Error(t, err)

	reviewID := store.byKey[key("acme/widgets", 2)]
	review, _ := store.GetReview(context.Background(), reviewID)
	assert.Equal(t, core.StatusFailed, review.Status)
}

func TestLifecycle_InvalidEvents(t *testing.T) {
	l := NewLifecycle(newFakeStore(), &fakeFactory{fetcher: &fakeFetcher{}}, analyzer.New(nil), testLogger())

	assert.Error(t, l.Run(context.Background(), nil))
	assert.Error(t, l.Run(context.Background(), &core.Event{Kind: "unknown"}))
	assert.Error(t, l.Run(context.Background(), &core.Event{Kind: core.KindPullRequest}))

	bad := prEvent(core.ActionOpened, 0)
	assert.Error(t, l.Run(context.Background(), bad))
}
