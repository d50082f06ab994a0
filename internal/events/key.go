// Package events implements the front half of the notification pipeline:
// idempotency key derivation, event ingestion, and fan-out of events into
// per-channel delivery jobs.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"fairground/internal/types"
)

// keySeparator joins key components before hashing. A unit separator cannot
// appear in ids or event types, so distinct component tuples can never
// concatenate to the same string.
const keySeparator = "\x1f"

// DeriveKey computes the idempotency key for one logical occurrence.
// Identical inputs always produce the identical key; any differing component
// produces a different one. The discriminator lets producers split
// occurrences the entity reference alone cannot (e.g. one key per
// auction-ending-soon scan window).
//
// Multi-recipient events join the sorted target user ids, so recipient order
// does not affect the key.
func DeriveKey(eventType types.EventType, entityType, entityID string, targetUserIDs []string, discriminator string) string {
	users := make([]string, len(targetUserIDs))
	copy(users, targetUserIDs)
	sort.Strings(users)

	h := sha256.New()
	h.Write([]byte(strings.Join([]string{
		string(eventType),
		entityType,
		entityID,
		strings.Join(users, ","),
		discriminator,
	}, keySeparator)))

	return "ek_" + hex.EncodeToString(h.Sum(nil))
}
