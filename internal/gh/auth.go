package gh

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"

	"github.com/codesentry/codesentry/internal/config"
	"github.com/codesentry/codesentry/internal/core"
)

// clientFactory builds installation-scoped clients from the App credentials.
type clientFactory struct {
	cfg    config.GitHubConfig
	logger *slog.Logger
}

// NewClientFactory returns a core.ClientFactory that authenticates as the
// configured GitHub App.
func NewClientFactory(cfg config.GitHubConfig, logger *slog.Logger) core.ClientFactory {
	return &clientFactory{cfg: cfg, logger: logger}
}

// ClientFor creates a GitHub client authenticated as a specific application
// installation.
func (f *clientFactory) ClientFor(ctx context.Context, installationID int64) (core.FileFetcher, error) {
	f.logger.Debug("creating GitHub installation client", "installation_id", installationID)

	privateKey, err := os.ReadFile(f.cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key from %s: %w", f.cfg.PrivateKeyPath, err)
	}

	// The apps transport talks to the GitHub App API to mint installation tokens.
	appTransport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, f.cfg.AppID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App transport: %w", err)
	}
	appClient := github.NewClient(&http.Client{Transport: appTransport})

	token, _, err := appClient.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation token for installation ID %d: %w", installationID, err)
	}
	if token.GetToken() == "" {
		return nil, fmt.Errorf("received an empty installation token")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.GetToken()})
	tc := oauth2.NewClient(ctx, ts)
	return NewClient(github.NewClient(tc), f.logger), nil
}
