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

func testDL() *types.DeadLetter {
	return &types.DeadLetter{
		ID:           "job_9",
		Kind:         types.KindEmail,
		Snapshot:     types.Payload{"destination": "buyer@example.com"},
		ErrorCode:    "upstream_email_provider_unavailable",
		ErrorMessage: "mailbox full",
	}
}

func TestDeadLetterRepository_Upsert_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeadLetterRepository(db)

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ON CONFLICT (id, kind) DO UPDATE")
	}), mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Upsert(context.Background(), testDL()))
	db.AssertExpectations(t)
}

func TestDeadLetterRepository_Upsert_PreservesOperatorState(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeadLetterRepository(db)

	// The conflict clause must not touch suppression or manual retry columns.
	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return !strings.Contains(sql, "suppressed = EXCLUDED") &&
			!strings.Contains(sql, "manual_retry_count = EXCLUDED")
	}), mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Upsert(context.Background(), testDL()))
	db.AssertExpectations(t)
}

func TestDeadLetterRepository_Get_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeadLetterRepository(db)

	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.Get(context.Background(), "job_missing", types.KindEmail)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundDeadLetter, appErr.Code)
}

func TestDeadLetterRepository_Get_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeadLetterRepository(db)

	retryAt := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{
			scanFn: func(dest ...any) error {
				*dest[0].(*string) = "job_9"
				*dest[1].(*types.DeadLetterKind) = types.KindEmail
				*dest[2].(*[]byte) = []byte(`{"destination":"buyer@example.com"}`)
				*dest[3].(*string) = "upstream_email_provider_unavailable"
				*dest[4].(*string) = "mailbox full"
				*dest[5].(*bool) = false
				*dest[6].(**string) = nil
				*dest[7].(**string) = nil
				*dest[8].(*int) = 2
				*dest[9].(**time.Time) = &retryAt
				by := "ops.marina"
				*dest[10].(**string) = &by
				*dest[11].(*time.Time) = retryAt.Add(-48 * time.Hour)
				*dest[12].(*time.Time) = retryAt
				return nil
			},
		})

	dl, err := repo.Get(context.Background(), "job_9", types.KindEmail)
	require.NoError(t, err)
	assert.Equal(t, "job_9", dl.ID)
	assert.Equal(t, "buyer@example.com", dl.Snapshot["destination"])
	assert.False(t, dl.Suppressed)
	assert.Equal(t, 2, dl.ManualRetryCount)
	assert.Equal(t, retryAt, dl.LastManualRetryAt)
	assert.Equal(t, "ops.marina", dl.LastManualRetryBy)
}

func TestDeadLetterRepository_IsSuppressed(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeadLetterRepository(db)

	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "AND suppressed")
	}), mock.Anything).Return(&mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*bool) = true
			return nil
		},
	})

	suppressed, err := repo.IsSuppressed(context.Background(), "job_9", types.KindEmail)
	require.NoError(t, err)
	assert.True(t, suppressed)
}

func TestDeadLetterRepository_SetSuppressed_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeadLetterRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.MatchedBy(func(args []any) bool {
		return len(args) == 5 && args[2] == true
	})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.SetSuppressed(context.Background(), "job_9", types.KindEmail, true, "customer opted out", "ops.marina")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestDeadLetterRepository_SetSuppressed_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeadLetterRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.SetSuppressed(context.Background(), "job_missing", types.KindEmail, true, "", "admin")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundDeadLetter, appErr.Code)
}

func TestDeadLetterRepository_RecordManualRetry_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeadLetterRepository(db)

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "manual_retry_count = manual_retry_count + 1")
	}), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, repo.RecordManualRetry(context.Background(), "job_9", types.KindEmail, "ops.marina"))
	db.AssertExpectations(t)
}

func TestDeadLetterRepository_RecordManualRetry_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewDeadLetterRepository(db)

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.RecordManualRetry(context.Background(), "job_missing", types.KindEmail, "admin")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundDeadLetter, appErr.Code)
}
