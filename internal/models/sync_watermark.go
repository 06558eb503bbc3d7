package models

import "time"

// DefaultWatermark is used when an entity kind has never been synced.
var DefaultWatermark = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// SyncWatermark is the per-entity sync bookkeeping row (sync_metadata).
type SyncWatermark struct {
	Entity            EntityKind `json:"entity"`
	LastSyncTimestamp time.Time  `json:"last_sync_timestamp"`
	Synced            int        `json:"synced"`
	DurationMs        int64      `json:"duration_ms"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewDefaultWatermark returns the sentinel watermark for an entity kind.
func NewDefaultWatermark(entity EntityKind) *SyncWatermark {
	return &SyncWatermark{
		Entity:            entity,
		LastSyncTimestamp: DefaultWatermark,
	}
}
