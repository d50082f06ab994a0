package types

import "github.com/google/uuid"

// Opaque id constructors. Prefixes make record kinds recognizable in logs
// and admin tooling without a schema lookup.

// NewEventID returns a fresh event id.
func NewEventID() string { return "evt_" + uuid.New().String() }

// NewJobID returns a fresh job id.
func NewJobID() string { return "job_" + uuid.New().String() }

// NewNotificationID returns a fresh in-app notification id.
func NewNotificationID() string { return "ntf_" + uuid.New().String() }
