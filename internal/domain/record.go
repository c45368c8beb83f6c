package domain

import "time"

// Record is one external resource instance in its generic form. Connectors
// map service-specific payloads into this shape; the engine never looks
// inside Fields.
type Record struct {
	ID              string
	ResourceType    string // e.g. "customers"
	Fields          map[string]any
	SourceUpdatedAt time.Time
	SyncedAt        time.Time
	DeletedAt       *time.Time
}

// Checkpoint marks sync progress for one resource type. Cursor is opaque to
// the engine; only the connector that produced it can interpret it.
type Checkpoint struct {
	ResourceType string    `db:"resource_type"`
	Cursor       string    `db:"cursor"`
	LastSyncedAt time.Time `db:"last_synced_at"`
	TotalSynced  int64     `db:"total_synced"`
}
