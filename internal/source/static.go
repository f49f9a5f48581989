package source

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-engine/internal/model"
)

// StaticAdapter serves a fixed event slice with offset-based cursors.
// Used for seeding demo data and in tests that need deterministic pages.
type StaticAdapter struct {
	source model.Source
	events []model.RawEvent

	// FailAt, when >= 0, makes the fetch that starts at that offset fail
	// with a transient error once, then succeed.
	FailAt int
	failed bool
}

// NewStaticAdapter creates an in-memory adapter over the given events.
func NewStaticAdapter(src model.Source, events []model.RawEvent) *StaticAdapter {
	return &StaticAdapter{source: src, events: events, FailAt: -1}
}

func (a *StaticAdapter) Source() model.Source { return a.source }

// Fetch returns events[cursor : cursor+limit]. The cursor is the decimal
// offset of the next unserved event.
func (a *StaticAdapter) Fetch(_ context.Context, cursor string, limit int) (*Page, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, eris.Errorf("static: malformed cursor %q", cursor)
		}
		offset = n
	}
	if a.FailAt >= 0 && offset == a.FailAt && !a.failed {
		a.failed = true
		return nil, NewTransientError(eris.New("static: injected failure"), 503)
	}
	if offset >= len(a.events) {
		return &Page{}, nil
	}
	if limit <= 0 {
		limit = 100
	}
	end := offset + limit
	if end > len(a.events) {
		end = len(a.events)
	}
	page := &Page{Events: append([]model.RawEvent(nil), a.events[offset:end]...)}
	if end < len(a.events) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}
