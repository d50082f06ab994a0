package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fairground/internal/core"
	"fairground/internal/deadletter"
	"fairground/internal/types"
)

// QuarantineAdmin is the operator recovery surface. Implemented by
// deadletter.AdminService.
type QuarantineAdmin interface {
	List(ctx context.Context, kind types.DeadLetterKind, limit int) ([]*types.DeadLetter, error)
	Act(ctx context.Context, in deadletter.ActionInput) (deadletter.ActionResult, error)
}

// DeadLetterActionRequest is the request body for POST /v1/admin/deadletters/{kind}/{id}.
type DeadLetterActionRequest struct {
	Action string `json:"action" validate:"required,oneof=retry suppress unsuppress"`
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// DeadLetterHandler exposes quarantine listing and recovery to operators.
type DeadLetterHandler struct {
	admin     QuarantineAdmin
	validator *core.Validator
	logger    types.Logger
}

// NewDeadLetterHandler creates a DeadLetterHandler.
func NewDeadLetterHandler(admin QuarantineAdmin, validator *core.Validator, logger types.Logger) *DeadLetterHandler {
	return &DeadLetterHandler{
		admin:     admin,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the admin routes. The caller wraps the group in
// admin authentication.
func (h *DeadLetterHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/deadletters", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/{kind}/{id}", h.Act)
	})
}

// List handles GET /v1/admin/deadletters?kind=email&limit=50.
func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := types.DeadLetterKind(r.URL.Query().Get("kind"))

	limit := 0
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

	items, err := h.admin.List(r.Context(), kind, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: items})
}

// Act handles POST /v1/admin/deadletters/{kind}/{id} with an action body.
// A retry against a source record that already reached terminal success
// returns 409 and mutates nothing.
func (h *DeadLetterHandler) Act(w http.ResponseWriter, r *http.Request) {
	var req DeadLetterActionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	actor := "admin"
	if a, ok := types.GetActor(r.Context()); ok {
		actor = a.ID
	}

	result, err := h.admin.Act(r.Context(), deadletter.ActionInput{
		Kind:   types.DeadLetterKind(chi.URLParam(r, "kind")),
		ID:     chi.URLParam(r, "id"),
		Action: req.Action,
		Reason: req.Reason,
		Actor:  actor,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}
