package core

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"fairground/internal/types"
)

type validatedRequest struct {
	EventType string `json:"event_type" validate:"required"`
	EntityID  string `json:"entity_id" validate:"required"`
	Limit     int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

func newTestValidator() *Validator {
	return NewValidator(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func TestValidateStruct_Valid(t *testing.T) {
	v := newTestValidator()

	req := validatedRequest{EventType: "Order.Shipped", EntityID: "ord_1", Limit: 50}
	if err := v.ValidateStruct(req); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateStruct_MissingRequiredFields(t *testing.T) {
	v := newTestValidator()

	err := v.ValidateStruct(validatedRequest{Limit: 10})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationMissingField {
		t.Errorf("expected code %s, got %s", types.ErrCodeValidationMissingField, appErr.Code)
	}

	// Failures are keyed by JSON tag name, not Go field name.
	if _, ok := appErr.Details["event_type"]; !ok {
		t.Errorf("expected details keyed by json tag event_type, got %v", appErr.Details)
	}
	if _, ok := appErr.Details["entity_id"]; !ok {
		t.Errorf("expected details keyed by json tag entity_id, got %v", appErr.Details)
	}
	if _, ok := appErr.Details["EventType"]; ok {
		t.Error("details must not use Go field names")
	}
}

func TestValidateStruct_RangeViolation(t *testing.T) {
	v := newTestValidator()

	err := v.ValidateStruct(validatedRequest{EventType: "Order.Shipped", EntityID: "ord_1", Limit: 500})
	if err == nil {
		t.Fatal("expected validation error for limit out of range, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if _, ok := appErr.Details["limit"]; !ok {
		t.Errorf("expected details for limit field, got %v", appErr.Details)
	}
}
