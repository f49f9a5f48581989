// Package store defines persistence for the resolution and attribution
// data model, with in-memory, SQLite, and Postgres backends.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// Store is the persistence interface for the engine.
//
// Contact merge is atomic: MergeContacts unions source ids, reassigns
// touchpoints and deals, and installs a forwarding alias from the loser to
// the winner in a single transaction (or under a single lock for the
// in-memory backend). GetContact follows forwarding aliases.
type Store interface {
	// Raw event log (append-only, keyed by source/external_id/observed_at).
	AppendEvent(ctx context.Context, ev model.RawEvent) error
	ListEvents(ctx context.Context, source model.Source) ([]model.RawEvent, error)

	// Contacts.
	CreateContact(ctx context.Context, c *model.Contact) error
	UpdateContact(ctx context.Context, c *model.Contact) error
	GetContact(ctx context.Context, id int64) (*model.Contact, error)
	FindBySourceID(ctx context.Context, src model.Source, externalID string) (*model.Contact, error)
	FindByEmail(ctx context.Context, email string) (*model.Contact, error)
	ListContacts(ctx context.Context) ([]model.Contact, error)
	MergeContacts(ctx context.Context, winnerID, loserID int64) error

	// Touchpoints.
	GetTouchpointByKey(ctx context.Context, key model.SourceID) (*model.Touchpoint, error)
	SaveTouchpoint(ctx context.Context, tp *model.Touchpoint) error
	ListTouchpoints(ctx context.Context, contactID int64) ([]model.Touchpoint, error)
	ListTouchpointsByFamily(ctx context.Context, contactID int64, family string) ([]model.Touchpoint, error)

	// Deals.
	UpsertDeal(ctx context.Context, d *model.Deal) error
	ListDeals(ctx context.Context, contactID int64) ([]model.Deal, error)

	// Attribution records.
	SaveAttribution(ctx context.Context, rec *model.AttributionRecord) error
	GetAttribution(ctx context.Context, contactID int64) (*model.AttributionRecord, error)
	ListAttribution(ctx context.Context) ([]model.AttributionRecord, error)

	// Sync checkpoints.
	GetCheckpoint(ctx context.Context, source model.Source) (*model.SyncCheckpoint, error)
	SaveCheckpoint(ctx context.Context, cp *model.SyncCheckpoint) error
	ListCheckpoints(ctx context.Context) ([]model.SyncCheckpoint, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
