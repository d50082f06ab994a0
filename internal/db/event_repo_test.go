package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fairground/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- EventRepository Tests ---

func testEvent() *types.Event {
	return &types.Event{
		ID:            "evt_1",
		Type:          types.EventOrderShipped,
		Payload:       types.Payload{"order_id": "ord_551"},
		TargetUserIDs: []string{"usr_1"},
		EntityType:    "order",
		EntityID:      "ord_551",
		EventKey:      "Order.Shipped:order:ord_551",
	}
}

func TestEventRepository_Insert_Created(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "INSERT INTO events")
	}), mock.Anything).Return(&mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "evt_1"
			*dest[1].(*time.Time) = createdAt
			return nil
		},
	})

	e := testEvent()
	created, err := repo.Insert(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, types.EventStatusPending, e.Status)
	assert.Equal(t, createdAt, e.CreatedAt)
	db.AssertExpectations(t)
}

func TestEventRepository_Insert_DuplicateLoadsExisting(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)

	existingAt := time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC)
	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "INSERT INTO events")
	}), mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})
	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "SELECT id, created_at FROM events")
	}), mock.Anything).Return(&mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "evt_existing"
			*dest[1].(*time.Time) = existingAt
			return nil
		},
	})

	e := testEvent()
	created, err := repo.Insert(context.Background(), e)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "evt_existing", e.ID)
	assert.Equal(t, existingAt, e.CreatedAt)
	db.AssertExpectations(t)
}

func TestEventRepository_Insert_ScanError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)

	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection refused")})

	_, err := repo.Insert(context.Background(), testEvent())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestEventRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)

	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "evt_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundEvent, appErr.Code)
}

func TestEventRepository_Claim_Lost(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)

	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.Claim(context.Background(), "evt_1", 2)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictClaimLost, appErr.Code)
}

func TestEventRepository_MarkProcessed_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.MarkProcessed(context.Background(), "evt_1"))
	db.AssertExpectations(t)
}

func TestEventRepository_MarkProcessed_NotProcessing(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.MarkProcessed(context.Background(), "evt_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundEvent, appErr.Code)
}

func TestEventRepository_ReleaseToPending_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.ReleaseToPending(context.Background(), "evt_1", "fan-out interrupted"))
	db.AssertExpectations(t)
}

func TestEventRepository_ResetForRetry_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.ResetForRetry(context.Background(), "evt_1"))
	db.AssertExpectations(t)
}

func TestEventRepository_ResetForRetry_AlreadyProcessedConflicts(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*string) = "processed"
				return nil
			},
		})

	err := repo.ResetForRetry(context.Background(), "evt_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictRetryCompleted, appErr.Code)
	assert.Equal(t, "processed", appErr.Details["status"])
}

func TestEventRepository_ResetForRetry_Gone(t *testing.T) {
	db := new(mockDBTX)
	repo := NewEventRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	err := repo.ResetForRetry(context.Background(), "evt_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundEvent, appErr.Code)
}
