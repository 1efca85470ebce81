// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import (
	"fmt"

	"github.com/google/go-github/v73/github"
)

// EventKind discriminates the closed set of webhook event variants the
// application processes.
type EventKind string

const (
	KindPullRequest              EventKind = "pull_request"
	KindInstallation             EventKind = "installation"
	KindInstallationRepositories EventKind = "installation_repositories"
)

// Webhook actions the lifecycle reacts to.
const (
	ActionOpened      = "opened"
	ActionSynchronize = "synchronize"
	ActionReopened    = "reopened"
	ActionClosed      = "closed"
	ActionCreated     = "created"
	ActionDeleted     = "deleted"
	ActionAdded       = "added"
	ActionRemoved     = "removed"
)

// Event is the internal, validated view of a GitHub webhook delivery.
// Exactly one variant field is non-nil, selected by Kind.
type Event struct {
	Kind EventKind

	PullRequest       *PullRequestEvent
	Installation      *InstallationEvent
	InstallationRepos *InstallationReposEvent
}

// PullRequestEvent carries the fields of a pull_request delivery the
// lifecycle needs.
type PullRequestEvent struct {
	Action         string
	RepoOwner      string
	RepoName       string
	RepoFullName   string
	PRNumber       int
	PRTitle        string
	HeadSHA        string
	InstallationID int64
}

// InstallationEvent carries an installation created/deleted delivery.
type InstallationEvent struct {
	Action         string
	InstallationID int64
	AccountLogin   string
	AccountType    string
	Repositories   []Repository
}

// InstallationReposEvent carries an installation_repositories delivery.
type InstallationReposEvent struct {
	Action         string
	InstallationID int64
	Added          []Repository
	RemovedRepoIDs []int64
}

// EventFromPullRequest transforms a raw GitHub PullRequestEvent into the
// application's internal representation. It acts as an anti-corruption layer:
// the payload is validated here, at ingress, so downstream code can trust it.
func EventFromPullRequest(event *github.PullRequestEvent) (*Event, error) {
	action := event.GetAction()
	switch action {
	case ActionOpened, ActionSynchronize, ActionReopened, ActionClosed:
	default:
		return nil, fmt.Errorf("pull request action %q is not handled", action)
	}

	repo := event.GetRepo()
	if repo == nil || repo.GetOwner() == nil || repo.GetOwner().GetLogin() == "" || repo.GetName() == "" {
		return nil, fmt.Errorf("repository or owner information is missing from the event")
	}

	prNumber := event.GetPullRequest().GetNumber()
	if prNumber <= 0 {
		return nil, fmt.Errorf("invalid pull request number: %d", prNumber)
	}

	if event.GetInstallation() == nil || event.GetInstallation().GetID() == 0 {
		return nil, fmt.Errorf("installation ID is missing from the event")
	}

	return &Event{
		Kind: KindPullRequest,
		PullRequest: &PullRequestEvent{
			Action:         action,
			RepoOwner:      repo.GetOwner().GetLogin(),
			RepoName:       repo.GetName(),
			RepoFullName:   repo.GetFullName(),
			PRNumber:       prNumber,
			PRTitle:        event.GetPullRequest().GetTitle(),
			HeadSHA:        event.GetPullRequest().GetHead().GetSHA(),
			InstallationID: event.GetInstallation().GetID(),
		},
	}, nil
}

// EventFromInstallation transforms a raw GitHub InstallationEvent into the
// internal representation, validating it at ingress.
func EventFromInstallation(event *github.InstallationEvent) (*Event, error) {
	action := event.GetAction()
	switch action {
	case ActionCreated, ActionDeleted:
	default:
		return nil, fmt.Errorf("installation action %q is not handled", action)
	}

	inst := event.GetInstallation()
	if inst == nil || inst.GetID() == 0 {
		return nil, fmt.Errorf("installation information is missing from the event")
	}
	if inst.GetAccount() == nil || inst.GetAccount().GetLogin() == "" {
		return nil, fmt.Errorf("installation account information is missing from the event")
	}

	repos := make([]Repository, 0, len(event.Repositories))
	for _, r := range event.Repositories {
		if r.GetID() == 0 || r.GetFullName() == "" {
			continue
		}
		repos = append(repos, Repository{
			InstallationID: inst.GetID(),
			RepoID:         r.GetID(),
			FullName:       r.GetFullName(),
			Private:        r.GetPrivate(),
		})
	}

	return &Event{
		Kind: KindInstallation,
		Installation: &InstallationEvent{
			Action:         action,
			InstallationID: inst.GetID(),
			AccountLogin:   inst.GetAccount().GetLogin(),
			AccountType:    inst.GetAccount().GetType(),
			Repositories:   repos,
		},
	}, nil
}

// EventFromInstallationRepositories transforms a raw GitHub
// InstallationRepositoriesEvent into the internal representation.
func EventFromInstallationRepositories(event *github.InstallationRepositoriesEvent) (*Event, error) {
	action := event.GetAction()
	switch action {
	case ActionAdded, ActionRemoved:
	default:
		return nil, fmt.Errorf("installation_repositories action %q is not handled", action)
	}

	inst := event.GetInstallation()
	if inst == nil || inst.GetID() == 0 {
		return nil, fmt.Errorf("installation ID is missing from the event")
	}

	added := make([]Repository, 0, len(event.RepositoriesAdded))
	for _, r := range event.RepositoriesAdded {
		if r.GetID() == 0 || r.GetFullName() == "" {
			continue
		}
		added = append(added, Repository{
			InstallationID: inst.GetID(),
			RepoID:         r.GetID(),
			FullName:       r.GetFullName(),
			Private:        r.GetPrivate(),
		})
	}

	removed := make([]int64, 0, len(event.RepositoriesRemoved))
	for _, r := range event.RepositoriesRemoved {
		if r.GetID() != 0 {
			removed = append(removed, r.GetID())
		}
	}

	return &Event{
		Kind: KindInstallationRepositories,
		InstallationRepos: &InstallationReposEvent{
			Action:         action,
			InstallationID: inst.GetID(),
			Added:          added,
			RemovedRepoIDs: removed,
		},
	}, nil
}
