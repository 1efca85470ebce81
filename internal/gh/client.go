// Package gh provides the outbound GitHub API surface: listing a pull
// request's changed files and posting summary comments.
package gh

import (
	"context"
	"log/slog"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"

	"github.com/codesentry/codesentry/internal/core"
)

type gitHubClient struct {
	client *github.Client
	logger *slog.Logger
}

// NewClient wraps the official go-github client to provide the focused,
// testable core.FileFetcher surface.
func NewClient(client *github.Client, logger *slog.Logger) core.FileFetcher {
	return &gitHubClient{client: client, logger: logger}
}

// NewPATClient creates a client authenticated with a Personal Access Token.
// Useful for CLI tools or local development where an App installation is not
// available.
func NewPATClient(ctx context.Context, token string, logger *slog.Logger) core.FileFetcher {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	return &gitHubClient{client: github.NewClient(tc), logger: logger}
}

// ListChangedFiles retrieves the list of files modified in a pull request.
// It handles pagination automatically to ensure all files are fetched from
// the GitHub API, which returns a maximum of 100 files per page.
func (g *gitHubClient) ListChangedFiles(ctx context.Context, owner, repo string, number int) ([]core.PullRequestFile, error) {
	var allFiles []core.PullRequestFile
	opts := &github.ListOptions{PerPage: 100}

	for {
		files, resp, err := g.client.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			g.logger.Error("failed to list files for pull request", "owner", owner, "repo", repo, "pr", number, "error", err)
			return nil, err
		}

		for _, file := range files {
			allFiles = append(allFiles, core.PullRequestFile{
				Filename:  file.GetFilename(),
				Status:    file.GetStatus(),
				Additions: file.GetAdditions(),
				Deletions: file.GetDeletions(),
				Patch:     file.GetPatch(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allFiles, nil
}

// CreateComment posts a new comment on a pull request.
func (g *gitHubClient) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	comment := &github.IssueComment{Body: &body}
	_, _, err := g.client.Issues.CreateComment(ctx, owner, repo, number, comment)
	if err != nil {
		g.logger.Error("failed to create comment", "owner", owner, "repo", repo, "pr", number, "error", err)
	}
	return err
}
