// Package handlers contains the HTTP handler implementations for the
// Fairground notification API.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fairground/internal/core"
	"fairground/internal/events"
	"fairground/internal/types"
)

// EventEmitter accepts producer triggers. Implemented by events.Ingestor.
type EventEmitter interface {
	Emit(ctx context.Context, in events.EmitInput) (events.EmitResult, error)
}

// EmitEventRequest is the request body for POST /v1/events.
type EmitEventRequest struct {
	Type          string         `json:"type" validate:"required"`
	EntityType    string         `json:"entity_type" validate:"required,max=100"`
	EntityID      string         `json:"entity_id" validate:"required,max=100"`
	TargetUserIDs []string       `json:"target_user_ids" validate:"required,min=1,max=1000,dive,required"`
	Payload       map[string]any `json:"payload" validate:"required"`
	Discriminator string         `json:"discriminator,omitempty" validate:"omitempty,max=100"`
}

// EventHandler exposes event ingestion to producer services.
type EventHandler struct {
	emitter   EventEmitter
	validator *core.Validator
	logger    types.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(emitter EventEmitter, validator *core.Validator, logger types.Logger) *EventHandler {
	return &EventHandler{
		emitter:   emitter,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the event routes. The caller wraps the group in
// ingest authentication.
func (h *EventHandler) RegisterRoutes(r chi.Router) {
	r.Post("/events", h.Emit)
}

// Emit handles POST /v1/events. The endpoint is idempotent on the derived
// event key: a duplicate trigger returns 200 with the existing event ID,
// a new one returns 201.
func (h *EventHandler) Emit(w http.ResponseWriter, r *http.Request) {
	var req EmitEventRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	actorID := ""
	if actor, ok := types.GetActor(r.Context()); ok {
		actorID = actor.ID
	}

	result, err := h.emitter.Emit(r.Context(), events.EmitInput{
		Type:          types.EventType(req.Type),
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		TargetUserIDs: req.TargetUserIDs,
		Payload:       types.Payload(req.Payload),
		ActorID:       actorID,
		Discriminator: req.Discriminator,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	core.JSON(w, r, status, core.APIResponse{Data: result})
}
