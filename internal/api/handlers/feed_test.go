package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairground/internal/types"
)

type feedCall struct {
	id     string
	userID string
}

type mockFeedStore struct {
	listFn        func(ctx context.Context, userID string, limit int) ([]*types.InAppNotification, error)
	markReadFn    func(ctx context.Context, id, userID string) error
	markClickedFn func(ctx context.Context, id, userID string) error

	listUserID string
	listLimit  int
	reads      []feedCall
	clicks     []feedCall
}

func (m *mockFeedStore) ListForUser(ctx context.Context, userID string, limit int) ([]*types.InAppNotification, error) {
	m.listUserID = userID
	m.listLimit = limit
	if m.listFn != nil {
		return m.listFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockFeedStore) MarkRead(ctx context.Context, id, userID string) error {
	m.reads = append(m.reads, feedCall{id: id, userID: userID})
	if m.markReadFn != nil {
		return m.markReadFn(ctx, id, userID)
	}
	return nil
}

func (m *mockFeedStore) MarkClicked(ctx context.Context, id, userID string) error {
	m.clicks = append(m.clicks, feedCall{id: id, userID: userID})
	if m.markClickedFn != nil {
		return m.markClickedFn(ctx, id, userID)
	}
	return nil
}

func newFeedRouter(store *mockFeedStore) chi.Router {
	h := NewFeedHandler(store, testLogger{})
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestFeedList_ReturnsNotifications(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &mockFeedStore{
		listFn: func(ctx context.Context, userID string, limit int) ([]*types.InAppNotification, error) {
			return []*types.InAppNotification{
				{
					ID:        "inapp_1",
					UserID:    userID,
					Template:  "order_shipped",
					Payload:   types.Payload{"order_id": "ord_551"},
					CreatedAt: now,
				},
				{
					ID:        "inapp_2",
					UserID:    userID,
					Template:  "outbid",
					CreatedAt: now.Add(-time.Hour),
				},
			}, nil
		},
	}
	router := newFeedRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/users/usr_42/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "usr_42", store.listUserID)

	var body struct {
		Data []*types.InAppNotification `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "inapp_1", body.Data[0].ID)
	assert.Equal(t, types.TemplateTag("outbid"), body.Data[1].Template)
}

func TestFeedList_DefaultLimit(t *testing.T) {
	store := &mockFeedStore{}
	router := newFeedRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/users/usr_42/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultFeedLimit, store.listLimit)
}

func TestFeedList_ExplicitLimit(t *testing.T) {
	store := &mockFeedStore{}
	router := newFeedRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/users/usr_42/notifications?limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, store.listLimit)
}

func TestFeedList_InvalidLimitReturns400(t *testing.T) {
	tests := []struct {
		name  string
		limit string
	}{
		{name: "not a number", limit: "abc"},
		{name: "zero", limit: "0"},
		{name: "negative", limit: "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockFeedStore{}
			router := newFeedRouter(store)

			req := httptest.NewRequest(http.MethodGet, "/users/usr_42/notifications?limit="+tt.limit, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, store.listLimit)
		})
	}
}

func TestFeedList_StoreErrorSurfaced(t *testing.T) {
	store := &mockFeedStore{
		listFn: func(ctx context.Context, userID string, limit int) ([]*types.InAppNotification, error) {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "query failed", nil)
		},
	}
	router := newFeedRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/users/usr_42/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestFeedMarkRead_Succeeds(t *testing.T) {
	store := &mockFeedStore{}
	router := newFeedRouter(store)

	req := httptest.NewRequest(http.MethodPost, "/users/usr_42/notifications/inapp_7/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.reads, 1)
	assert.Equal(t, feedCall{id: "inapp_7", userID: "usr_42"}, store.reads[0])
	assert.Empty(t, store.clicks)

	var body struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Data["ok"])
}

func TestFeedMarkClicked_Succeeds(t *testing.T) {
	store := &mockFeedStore{}
	router := newFeedRouter(store)

	req := httptest.NewRequest(http.MethodPost, "/users/usr_42/notifications/inapp_7/click", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.clicks, 1)
	assert.Equal(t, feedCall{id: "inapp_7", userID: "usr_42"}, store.clicks[0])
	assert.Empty(t, store.reads)
}

func TestFeedMark_NotFoundSurfaced(t *testing.T) {
	store := &mockFeedStore{
		markClickedFn: func(ctx context.Context, id, userID string) error {
			return types.NewAppError(types.ErrCodeNotFoundJob, "in-app notification not found", nil)
		},
	}
	router := newFeedRouter(store)

	req := httptest.NewRequest(http.MethodPost, "/users/usr_42/notifications/missing/click", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, string(types.ErrCodeNotFoundJob), body.Error.Code)
}
