// Package syncer runs resumable, checkpointed sync passes over the
// source adapters and drives resolution, classification, and attribution
// for each ingested event.
package syncer

import "github.com/rotisserie/eris"

var (
	// ErrInvalidResumeToken marks a resume token that is malformed,
	// belongs to a different run, or disagrees with the persisted
	// checkpoint.
	ErrInvalidResumeToken = eris.New("syncer: invalid resume token")

	// ErrSyncInProgress is returned when a sync is started for a source
	// that already has an active run.
	ErrSyncInProgress = eris.New("syncer: sync already in progress")

	// ErrAdapterFailure wraps an upstream fetch failure that aborted the
	// run after retries.
	ErrAdapterFailure = eris.New("syncer: adapter failure")
)
