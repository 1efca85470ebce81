package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codesentry/codesentry/internal/core"
)

// ReviewsHandler serves the read-side reporting endpoints. It consumes the
// persisted data model and performs no analysis logic.
type ReviewsHandler struct {
	store  core.Store
	logger *slog.Logger
}

// NewReviewsHandler creates the read-side handler.
func NewReviewsHandler(store core.Store, logger *slog.Logger) *ReviewsHandler {
	return &ReviewsHandler{store: store, logger: logger}
}

type reviewResponse struct {
	ID             int64               `json:"id"`
	PRNumber       int                 `json:"pr_number"`
	RepoFullName   string              `json:"repo_full_name"`
	InstallationID int64               `json:"installation_id"`
	Status         core.ReviewStatus   `json:"status"`
	Metadata       core.ReviewMetadata `json:"metadata"`
	CreatedAt      time.Time           `json:"created_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}

type commentResponse struct {
	Filename   string `json:"filename"`
	Line       int    `json:"line"`
	Severity   string `json:"severity"`
	IssueType  string `json:"issue_type"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	RuleID     string `json:"rule_id,omitempty"`
}

type fileChangeResponse struct {
	Filename     string `json:"filename"`
	Status       string `json:"status"`
	Language     string `json:"language"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
	ShouldReview bool   `json:"should_review"`
	Analyzed     bool   `json:"analyzed"`
}

type listResponse struct {
	Reviews []reviewResponse `json:"reviews"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// List serves GET /reviews with pagination and optional status filter.
func (h *ReviewsHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := listOptionsFromQuery(r)

	reviews, total, err := h.store.ListReviews(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list reviews", "error", err)
		http.Error(w, "Failed to list reviews", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, buildListResponse(reviews, total, opts))
}

// Get serves GET /reviews/{id}: the review plus its comments and files.
func (h *ReviewsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid review id", http.StatusBadRequest)
		return
	}

	review, err := h.store.GetReview(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrReviewNotFound) {
			http.Error(w, "Review not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get review", "review_id", id, "error", err)
		http.Error(w, "Failed to get review", http.StatusInternalServerError)
		return
	}

	comments, err := h.store.GetReviewComments(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get review comments", "review_id", id, "error", err)
		http.Error(w, "Failed to get review", http.StatusInternalServerError)
		return
	}
	files, err := h.store.GetReviewFiles(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get review files", "review_id", id, "error", err)
		http.Error(w, "Failed to get review", http.StatusInternalServerError)
		return
	}

	resp := struct {
		reviewResponse
		Comments []commentResponse    `json:"comments"`
		Files    []fileChangeResponse `json:"files"`
	}{
		reviewResponse: toReviewResponse(review),
		Comments:       make([]commentResponse, 0, len(comments)),
		Files:          make([]fileChangeResponse, 0, len(files)),
	}
	for _, c := range comments {
		resp.Comments = append(resp.Comments, commentResponse{
			Filename:   c.Filename,
			Line:       c.Line,
			Severity:   c.Severity,
			IssueType:  c.IssueType,
			Message:    c.Message,
			Suggestion: c.Suggestion,
			RuleID:     c.RuleID,
		})
	}
	for _, f := range files {
		resp.Files = append(resp.Files, fileChangeResponse{
			Filename:     f.Filename,
			Status:       f.Status,
			Language:     f.Language,
			Additions:    f.Additions,
			Deletions:    f.Deletions,
			ShouldReview: f.ShouldReview,
			Analyzed:     f.Analyzed,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ListForRepo serves GET /repos/{owner}/{repo}/reviews.
func (h *ReviewsHandler) ListForRepo(w http.ResponseWriter, r *http.Request) {
	fullName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
	opts := listOptionsFromQuery(r)

	reviews, total, err := h.store.ListReviewsForRepo(r.Context(), fullName, opts)
	if err != nil {
		h.logger.Error("failed to list repository reviews", "repo", fullName, "error", err)
		http.Error(w, "Failed to list reviews", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, buildListResponse(reviews, total, opts))
}

// Stats serves GET /stats: review counts grouped by status.
func (h *ReviewsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountReviewsByStatus(r.Context())
	if err != nil {
		h.logger.Error("failed to count reviews", "error", err)
		http.Error(w, "Failed to compute stats", http.StatusInternalServerError)
		return
	}

	var total int64
	byStatus := make(map[string]int64, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
		total += n
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"by_status": byStatus,
	})
}

// Health serves GET /health, including a database ping.
func (h *ReviewsHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ReviewsHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func listOptionsFromQuery(r *http.Request) core.ListOptions {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return core.ListOptions{
		Page:    page,
		PerPage: perPage,
		Status:  core.ReviewStatus(q.Get("status")),
	}
}

func buildListResponse(reviews []core.Review, total int, opts core.ListOptions) listResponse {
	resp := listResponse{
		Reviews: make([]reviewResponse, 0, len(reviews)),
		Total:   total,
		Page:    max(opts.Page, 1),
		PerPage: opts.PerPage,
	}
	for i := range reviews {
		resp.Reviews = append(resp.Reviews, toReviewResponse(&reviews[i]))
	}
	return resp
}

func toReviewResponse(r *core.Review) reviewResponse {
	return reviewResponse{
		ID:             r.ID,
		PRNumber:       r.PRNumber,
		RepoFullName:   r.RepoFullName,
		InstallationID: r.InstallationID,
		Status:         r.Status,
		Metadata:       r.Metadata,
		CreatedAt:      r.CreatedAt,
		CompletedAt:    r.CompletedAt,
	}
}
