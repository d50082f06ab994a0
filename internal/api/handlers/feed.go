package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fairground/internal/core"
	"fairground/internal/types"
)

// defaultFeedLimit bounds GET /v1/users/{user_id}/notifications when the
// caller does not pass one.
const defaultFeedLimit = 50

// FeedStore is the read/engagement surface of the in-app feed. Implemented
// by db.InAppRepository.
type FeedStore interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]*types.InAppNotification, error)
	MarkRead(ctx context.Context, id string, userID string) error
	MarkClicked(ctx context.Context, id string, userID string) error
}

// FeedHandler serves the in-app notification feed and its engagement marks.
// Engagement is load-bearing: a click recorded here is what suppresses the
// delayed email for the same event.
type FeedHandler struct {
	store  FeedStore
	logger types.Logger
}

// NewFeedHandler creates a FeedHandler.
func NewFeedHandler(store FeedStore, logger types.Logger) *FeedHandler {
	return &FeedHandler{
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes mounts the feed routes. The caller wraps the group in
// ingest authentication; the app backend proxies these on behalf of the
// signed-in user.
func (h *FeedHandler) RegisterRoutes(r chi.Router) {
	r.Route("/users/{user_id}/notifications", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/{id}/read", h.MarkRead)
		r.Post("/{id}/click", h.MarkClicked)
	})
}

// List handles GET /v1/users/{user_id}/notifications?limit=50.
func (h *FeedHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	limit := defaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"limit must be a positive integer",
				err,
			))
			return
		}
		limit = parsed
	}

	items, err := h.store.ListForUser(r.Context(), userID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: items})
}

// MarkRead handles POST /v1/users/{user_id}/notifications/{id}/read.
func (h *FeedHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, h.store.MarkRead)
}

// MarkClicked handles POST /v1/users/{user_id}/notifications/{id}/click.
// A click implies read.
func (h *FeedHandler) MarkClicked(w http.ResponseWriter, r *http.Request) {
	h.mark(w, r, h.store.MarkClicked)
}

func (h *FeedHandler) mark(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, userID string) error) {
	userID := chi.URLParam(r, "user_id")
	id := chi.URLParam(r, "id")

	if err := fn(r.Context(), id, userID); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"ok": true}})
}
