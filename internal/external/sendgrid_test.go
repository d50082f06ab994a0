package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fairground/internal/types"
)

func newTestSendGridClient(t *testing.T, serverURL string) *SendGridClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-sendgrid",
		RetryPolicy{
			MaxRetries: 0, // no retries in tests for deterministic behavior
			MinWait:    1 * time.Millisecond,
			MaxWait:    10 * time.Millisecond,
		},
		"Fairground-Test/1.0",
		WithSleepFunc(noopSleep),
	)

	return NewSendGridClientWithBase(base, SendGridClientConfig{
		APIKey:  "SG.test_api_key",
		BaseURL: serverURL,
	})
}

func testSendInput() types.SendInput {
	return types.SendInput{
		To: "buyer@example.com",
		From: types.SenderIdentity{
			Name:    "Fairground",
			Address: "no-reply@fairground.market",
		},
		Subject:     "Your order has shipped",
		BodyHTML:    "<p>Your order is on the way.</p>",
		BodyText:    "Your order is on the way.",
		ReferenceID: "job_001",
	}
}

func TestSendGridSend_Success(t *testing.T) {
	var receivedPayload sendGridMailPayload
	var receivedAuth string
	var receivedContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("expected path /v3/mail/send, got %s", r.URL.Path)
		}

		receivedAuth = r.Header.Get("Authorization")
		receivedContentType = r.Header.Get("Content-Type")

		if err := json.NewDecoder(r.Body).Decode(&receivedPayload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("X-Message-Id", "sg_msg_abc123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	msgID, err := client.Send(context.Background(), testSendInput())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if msgID != "sg_msg_abc123" {
		t.Errorf("expected message ID sg_msg_abc123, got %s", msgID)
	}

	if receivedAuth != "Bearer SG.test_api_key" {
		t.Errorf("expected Bearer SG.test_api_key, got %s", receivedAuth)
	}
	if receivedContentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", receivedContentType)
	}

	if len(receivedPayload.Personalizations) != 1 {
		t.Fatalf("expected 1 personalization, got %d", len(receivedPayload.Personalizations))
	}
	p := receivedPayload.Personalizations[0]
	if len(p.To) != 1 || p.To[0].Email != "buyer@example.com" {
		t.Errorf("unexpected personalization recipients: %+v", p.To)
	}

	if receivedPayload.From.Email != "no-reply@fairground.market" {
		t.Errorf("expected from no-reply@fairground.market, got %s", receivedPayload.From.Email)
	}
	if receivedPayload.From.Name != "Fairground" {
		t.Errorf("expected from name Fairground, got %s", receivedPayload.From.Name)
	}
	if receivedPayload.Subject != "Your order has shipped" {
		t.Errorf("unexpected subject: %s", receivedPayload.Subject)
	}
}

func TestSendGridSend_ContentOrdering(t *testing.T) {
	var receivedPayload sendGridMailPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&receivedPayload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	if _, err := client.Send(context.Background(), testSendInput()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// SendGrid requires text/plain before text/html.
	if len(receivedPayload.Content) != 2 {
		t.Fatalf("expected 2 content entries, got %d", len(receivedPayload.Content))
	}
	if receivedPayload.Content[0].Type != "text/plain" {
		t.Errorf("expected first content entry text/plain, got %s", receivedPayload.Content[0].Type)
	}
	if receivedPayload.Content[1].Type != "text/html" {
		t.Errorf("expected second content entry text/html, got %s", receivedPayload.Content[1].Type)
	}
	if receivedPayload.Content[0].Value != "Your order is on the way." {
		t.Errorf("unexpected text content: %s", receivedPayload.Content[0].Value)
	}
}

func TestSendGridSend_ReferenceIDInCustomArgs(t *testing.T) {
	var receivedPayload sendGridMailPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&receivedPayload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	if _, err := client.Send(context.Background(), testSendInput()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if receivedPayload.CustomArgs["reference_id"] != "job_001" {
		t.Errorf("expected custom_args reference_id job_001, got %v", receivedPayload.CustomArgs)
	}
}

func TestSendGridSend_ForbiddenMapsToEmailBlocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":[{"message":"recipient address is on the suppression list"}]}`))
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.Send(context.Background(), testSendInput())
	if err == nil {
		t.Fatal("expected error for 403, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeEmailBlocked {
		t.Errorf("expected %s, got %s", types.ErrCodeEmailBlocked, appErr.Code)
	}
}

func TestSendGridSend_BadRequestMapsToProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"the from email does not match a verified sender","field":"from"}]}`))
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.Send(context.Background(), testSendInput())
	if err == nil {
		t.Fatal("expected error for 400, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamEmailProvider {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamEmailProvider, appErr.Code)
	}

	// The first provider error message surfaces in the mapped error.
	if want := "the from email does not match a verified sender"; !strings.Contains(appErr.Message, want) {
		t.Errorf("expected message to contain %q, got %q", want, appErr.Message)
	}
}

func TestSendGridSend_MalformedErrorBodyFallsBackToStatusText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.Send(context.Background(), testSendInput())
	if err == nil {
		t.Fatal("expected error for 401, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamEmailProvider {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamEmailProvider, appErr.Code)
	}
	if !strings.Contains(appErr.Message, http.StatusText(http.StatusUnauthorized)) {
		t.Errorf("expected status text fallback in message, got %q", appErr.Message)
	}
}

func TestSendGridSend_ServerErrorMapsToUpstreamUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.Send(context.Background(), testSendInput())
	if err == nil {
		t.Fatal("expected error for 500, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamUnavailable, appErr.Code)
	}
}
