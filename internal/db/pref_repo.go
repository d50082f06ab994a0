package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"fairground/internal/types"
)

// PreferenceRepository provides data access for the notification_preferences
// and user_contacts tables. It implements the types.PreferenceStore and
// types.ContactStore interfaces consumed by the fan-out processor.
type PreferenceRepository struct {
	db DBTX
}

// NewPreferenceRepository creates a new PreferenceRepository backed by the
// given database connection (pool or transaction).
func NewPreferenceRepository(db DBTX) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// EnabledChannels returns the per-channel opt-in map for a user. Channels
// with no stored row default to enabled, so a user who never touched their
// settings receives everything.
func (r *PreferenceRepository) EnabledChannels(ctx context.Context, userID string) (map[types.Channel]bool, error) {
	enabled := make(map[types.Channel]bool, len(types.AllChannels))
	for _, ch := range types.AllChannels {
		enabled[ch] = true
	}

	rows, err := r.db.Query(ctx,
		`SELECT channel, enabled FROM notification_preferences WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load notification preferences", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			channel string
			on      bool
		)
		if err := rows.Scan(&channel, &on); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan preference row", err)
		}
		if ch := types.Channel(channel); ch.Valid() {
			enabled[ch] = on
		}
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating preference rows", err)
	}
	return enabled, nil
}

// Contact returns the user's delivery destinations. A missing row is not an
// error: fan-out treats empty destinations as "channel unavailable" for
// email and push, while in-app always works (destination is the user id).
func (r *PreferenceRepository) Contact(ctx context.Context, userID string) (types.UserContact, error) {
	contact := types.UserContact{UserID: userID}

	var (
		email *string
		token *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT email_address, device_token FROM user_contacts WHERE user_id = $1`,
		userID,
	).Scan(&email, &token)
	if errors.Is(err, pgx.ErrNoRows) {
		return contact, nil
	}
	if err != nil {
		return contact, types.NewAppError(types.ErrCodeInternalDB, "failed to load user contact", err)
	}

	contact.EmailAddress = strOrEmpty(email)
	contact.DeviceToken = strOrEmpty(token)
	return contact, nil
}
