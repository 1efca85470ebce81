// Package handler provides HTTP handlers for the CodeSentry application.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v73/github"

	"github.com/codesentry/codesentry/internal/config"
	"github.com/codesentry/codesentry/internal/core"
)

// WebhookHandler processes incoming webhooks from GitHub.
type WebhookHandler struct {
	cfg        config.GitHubConfig
	dispatcher core.JobDispatcher
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook handler with the given configuration and dispatcher.
func NewWebhookHandler(cfg config.GitHubConfig, dispatcher core.JobDispatcher, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Handle processes GitHub webhook requests.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, []byte(h.cfg.WebhookSecret))
	if err != nil {
		h.logger.Error("invalid webhook payload signature", "error", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	rawEvent, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		h.logger.Error("could not parse webhook", "error", err)
		http.Error(w, "Could not parse webhook", http.StatusBadRequest)
		return
	}

	var event *core.Event
	switch e := rawEvent.(type) {
	case *github.PullRequestEvent:
		event, err = core.EventFromPullRequest(e)
	case *github.InstallationEvent:
		event, err = core.EventFromInstallation(e)
	case *github.InstallationRepositoriesEvent:
		event, err = core.EventFromInstallationRepositories(e)
	default:
		h.logger.Debug("ignoring unhandled webhook event type", "type", github.WebHookType(r))
		_, _ = fmt.Fprint(w, "Event type not handled")
		return
	}

	if err != nil {
		h.logger.Debug("ignoring webhook delivery", "reason", err.Error(), "type", github.WebHookType(r))
		_, _ = fmt.Fprint(w, "Event ignored")
		return
	}

	h.dispatch(r.Context(), w, event)
}

// dispatch queues a validated event for background processing.
func (h *WebhookHandler) dispatch(ctx context.Context, w http.ResponseWriter, event *core.Event) {
	if err := h.dispatcher.Dispatch(ctx, event); err != nil {
		h.logger.Error("failed to dispatch event job", "error", err, "kind", event.Kind)
		http.Error(w, "Failed to queue event", http.StatusInternalServerError)
		return
	}

	h.logger.Info("event dispatched successfully", "kind", event.Kind)
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprint(w, "Event accepted")
}
