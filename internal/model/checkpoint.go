package model

import (
	"time"
)

// CheckpointStatus is the sync state machine position for one source.
// idle → in_progress → {completed | failed}; in_progress can drop to
// paused (a resumable waiting state, not idle) and re-enter in_progress
// on resume.
type CheckpointStatus string

const (
	CheckpointIdle       CheckpointStatus = "idle"
	CheckpointInProgress CheckpointStatus = "in_progress"
	CheckpointPaused     CheckpointStatus = "paused"
	CheckpointCompleted  CheckpointStatus = "completed"
	CheckpointFailed     CheckpointStatus = "failed"
)

// SyncCheckpoint is the persisted per-source sync position. Mutated only
// by the checkpoint manager; the cursor always points at a record boundary.
type SyncCheckpoint struct {
	Source         Source           `json:"source" db:"source"`
	Cursor         string           `json:"cursor,omitempty" db:"cursor"`
	ProcessedCount int64            `json:"processed_count" db:"processed_count"`
	Status         CheckpointStatus `json:"status" db:"status"`

	// RunID identifies the sync run that issued the outstanding resume
	// token; a token from any other run is stale.
	RunID string `json:"run_id,omitempty" db:"run_id"`

	LastAttemptAt time.Time `json:"last_attempt_at" db:"last_attempt_at"`
	LastError     string    `json:"last_error,omitempty" db:"last_error"`
}
