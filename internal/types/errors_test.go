package types

import (
	"errors"
	"net/http"
	"testing"
)

func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

// TestAppErrorErrorFormat verifies Error() produces "code: message".
func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationUnknownEventType,
		Message: "unknown event type \"Order.Teleported\"",
	}

	expected := "validation_unknown_event_type: unknown event type \"Order.Teleported\""
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

// TestAppErrorUnwrap verifies error chain support via Unwrap.
func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	appErr := NewAppError(ErrCodeInternalDB, "query failed", underlying)

	if !errors.Is(appErr, underlying) {
		t.Error("expected errors.Is to find the underlying error")
	}

	var target *AppError
	if !errors.As(error(appErr), &target) {
		t.Error("expected errors.As to find *AppError")
	}
	if target.Code != ErrCodeInternalDB {
		t.Errorf("unexpected code after As: %s", target.Code)
	}
}

func TestAppErrorUnwrapNil(t *testing.T) {
	appErr := NewAppError(ErrCodeNotFoundJob, "job not found", nil)
	if appErr.Unwrap() != nil {
		t.Error("expected nil Unwrap when no underlying error")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationUnknownEventType, http.StatusBadRequest},
		{ErrCodeValidationPayloadSchema, http.StatusBadRequest},
		{ErrCodeValidationInvalidKind, http.StatusBadRequest},
		{ErrCodeAuthKeyMissing, http.StatusUnauthorized},
		{ErrCodeAuthKeyInvalid, http.StatusUnauthorized},
		{ErrCodeNotFoundEvent, http.StatusNotFound},
		{ErrCodeNotFoundJob, http.StatusNotFound},
		{ErrCodeNotFoundDeadLetter, http.StatusNotFound},
		{ErrCodeConflictRetryCompleted, http.StatusConflict},
		{ErrCodeConflictClaimLost, http.StatusConflict},
		{ErrCodeEmailBlocked, http.StatusForbidden},
		{ErrCodeUpstreamEmailProvider, http.StatusBadGateway},
		{ErrCodeUpstreamPushProvider, http.StatusBadGateway},
		{ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrCodePushTokenExpired, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestAppErrorHTTPStatusDelegates(t *testing.T) {
	appErr := NewAppError(ErrCodeConflictRetryCompleted, "already completed", nil)
	if got := appErr.HTTPStatus(); got != http.StatusConflict {
		t.Errorf("HTTPStatus() = %d, want %d", got, http.StatusConflict)
	}
}

func TestWithDetailsMergesWithoutMutating(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeValidationPayloadSchema, "bad payload", nil,
		map[string]any{"field": "order_id"})

	merged := base.WithDetails(map[string]any{"field": "carrier", "event_type": "Order.Shipped"})

	if base.Details["field"] != "order_id" {
		t.Error("original error details were mutated")
	}
	if merged.Details["field"] != "carrier" {
		t.Errorf("expected new detail to win, got %v", merged.Details["field"])
	}
	if merged.Details["event_type"] != "Order.Shipped" {
		t.Error("expected added detail to be present")
	}
	if merged.Code != base.Code || merged.Message != base.Message {
		t.Error("expected code and message carried over")
	}
}

func TestErrorCodeOrDefault(t *testing.T) {
	if got := ErrorCodeOrDefault("", ErrCodeUpstreamEmailProvider); got != ErrCodeUpstreamEmailProvider {
		t.Errorf("empty code should use fallback, got %s", got)
	}
	if got := ErrorCodeOrDefault("push_token_expired", ErrCodeUpstreamPushProvider); got != ErrCodePushTokenExpired {
		t.Errorf("non-empty code should be used, got %s", got)
	}
}
