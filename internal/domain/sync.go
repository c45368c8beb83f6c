package domain

import "time"

// SyncOptions narrows a sync run. An empty ResourceTypes means every type
// the connector declares; Full ignores stored checkpoints and re-pulls from
// the beginning.
type SyncOptions struct {
	ResourceTypes []string
	Full          bool
}

// ResourceResult holds per-resource-type statistics for one sync run.
type ResourceResult struct {
	ResourceType string
	Fetched      int
	Created      int
	Updated      int
	Skipped      int
	Published    int
	Err          string
}

// Failed reports whether this resource type's pull ended in a fatal error.
func (r *ResourceResult) Failed() bool {
	return r.Err != ""
}

// SyncResult aggregates one sync run. Success is true only when no resource
// type failed fatally; record-level skips do not count against it.
type SyncResult struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Success   bool
	Resources []ResourceResult
}

// EngineStatus is the read-only snapshot served to operators.
type EngineStatus struct {
	RecordCounts  map[string]int64
	LastSyncedAt  map[string]time.Time
	PendingEvents int64
	DeadLettered  int64
}
