package core

import (
	"testing"

	"github.com/google/go-github/v73/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prEvent(action, owner, repo string, number int, installationID int64) *github.PullRequestEvent {
	fullName := owner + "/" + repo
	return &github.PullRequestEvent{
		Action: github.Ptr(action),
		Repo: &github.Repository{
			Name:     github.Ptr(repo),
			FullName: github.Ptr(fullName),
			Owner:    &github.User{Login: github.Ptr(owner)},
		},
		PullRequest: &github.PullRequest{
			Number: github.Ptr(number),
			Title:  github.Ptr("Add feature"),
			Head:   &github.PullRequestBranch{SHA: github.Ptr("abc123")},
		},
		Installation: &github.Installation{ID: github.Ptr(installationID)},
	}
}

func TestEventFromPullRequest(t *testing.T) {
	t.Run("opened event", func(t *testing.T) {
		event, err := EventFromPullRequest(prEvent("opened", "octocat", "hello", 42, 7))
		require.NoError(t, err)
		require.Equal(t, KindPullRequest, event.Kind)
		require.NotNil(t, event.PullRequest)

		pr := event.PullRequest
		assert.Equal(t, "opened", pr.Action)
		assert.Equal(t, "octocat", pr.RepoOwner)
		assert.Equal(t, "hello", pr.RepoName)
		assert.Equal(t, "octocat/hello", pr.RepoFullName)
		assert.Equal(t, 42, pr.PRNumber)
		assert.Equal(t, "abc123", pr.HeadSHA)
		assert.Equal(t, int64(7), pr.InstallationID)
	})

	t.Run("unhandled action", func(t *testing.T) {
		_, err := EventFromPullRequest(prEvent("labeled", "octocat", "hello", 42, 7))
		assert.ErrorContains(t, err, "not handled")
	})

	t.Run("missing repository", func(t *testing.T) {
		raw := prEvent("opened", "octocat", "hello", 42, 7)
		raw.Repo = nil
		_, err := EventFromPullRequest(raw)
		assert.ErrorContains(t, err, "repository")
	})

	t.Run("missing installation", func(t *testing.T) {
		raw := prEvent("opened", "octocat", "hello", 42, 7)
		raw.Installation = nil
		_, err := EventFromPullRequest(raw)
		assert.ErrorContains(t, err, "installation")
	})

	t.Run("invalid pull request number", func(t *testing.T) {
		raw := prEvent("opened", "octocat", "hello", 0, 7)
		_, err := EventFromPullRequest(raw)
		assert.ErrorContains(t, err, "pull request number")
	})
}

func TestEventFromInstallation(t *testing.T) {
	raw := &github.InstallationEvent{
		Action: github.Ptr("created"),
		Installation: &github.Installation{
			ID: github.Ptr(int64(7)),
			Account: &github.User{
				Login: github.Ptr("octocat"),
				Type:  github.Ptr("User"),
			},
		},
		Repositories: []*github.Repository{
			{ID: github.Ptr(int64(1)), FullName: github.Ptr("octocat/hello"), Private: github.Ptr(true)},
			{ID: github.Ptr(int64(0)), FullName: github.Ptr("octocat/ignored")}, // invalid id, skipped
		},
	}

	event, err := EventFromInstallation(raw)
	require.NoError(t, err)
	require.Equal(t, KindInstallation, event.Kind)
	require.NotNil(t, event.Installation)

	inst := event.Installation
	assert.Equal(t, "created", inst.Action)
	assert.Equal(t, int64(7), inst.InstallationID)
	assert.Equal(t, "octocat", inst.AccountLogin)
	require.Len(t, inst.Repositories, 1)
	assert.Equal(t, "octocat/hello", inst.Repositories[0].FullName)
	assert.True(t, inst.Repositories[0].Private)

	raw.Action = github.Ptr("suspend")
	_, err = EventFromInstallation(raw)
	assert.ErrorContains(t, err, "not handled")
}

func TestEventFromInstallationRepositories(t *testing.T) {
	raw := &github.InstallationRepositoriesEvent{
		Action:       github.Ptr("removed"),
		Installation: &github.Installation{ID: github.Ptr(int64(7))},
		RepositoriesRemoved: []*github.Repository{
			{ID: github.Ptr(int64(3))},
			{ID: github.Ptr(int64(4))},
		},
	}

	event, err := EventFromInstallationRepositories(raw)
	require.NoError(t, err)
	require.Equal(t, KindInstallationRepositories, event.Kind)
	require.NotNil(t, event.InstallationRepos)
	assert.Equal(t, []int64{3, 4}, event.InstallationRepos.RemovedRepoIDs)
	assert.Empty(t, event.InstallationRepos.Added)
}
