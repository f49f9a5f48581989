// Package source defines the upstream adapter contract and the concrete
// CRM, scheduler, and forms adapters.
package source

import (
	"context"

	"github.com/sells-group/attribution-engine/internal/model"
)

// Page is one batch of events plus the cursor that resumes the fetch
// after the last event in the batch. An empty NextCursor means the
// source is exhausted.
type Page struct {
	Events     []model.RawEvent
	NextCursor string
}

// Adapter pulls raw events from one upstream system in stable,
// cursor-ordered pages. Fetch with the cursor returned by a previous
// call must continue exactly where that call stopped, so a sync can
// pause at any record boundary and resume later.
type Adapter interface {
	Source() model.Source
	Fetch(ctx context.Context, cursor string, limit int) (*Page, error)
}
