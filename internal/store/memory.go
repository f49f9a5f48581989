package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-engine/internal/model"
)

// MemoryStore implements Store with mutex-guarded maps. It is the default
// backend for tests and single-process runs.
type MemoryStore struct {
	mu sync.RWMutex

	events      []model.RawEvent
	eventKeys   map[eventKey]bool
	contacts    map[int64]*model.Contact
	aliases     map[int64]int64 // retired id -> surviving id
	touchpoints map[int64]*model.Touchpoint
	touchByKey  map[model.SourceID]int64
	deals       map[model.SourceID]*model.Deal
	attribution map[int64]*model.AttributionRecord
	checkpoints map[model.Source]*model.SyncCheckpoint

	nextContactID int64
	nextTouchID   int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		eventKeys:   make(map[eventKey]bool),
		contacts:    make(map[int64]*model.Contact),
		aliases:     make(map[int64]int64),
		touchpoints: make(map[int64]*model.Touchpoint),
		touchByKey:  make(map[model.SourceID]int64),
		deals:       make(map[model.SourceID]*model.Deal),
		attribution: make(map[int64]*model.AttributionRecord),
		checkpoints: make(map[model.Source]*model.SyncCheckpoint),
	}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// eventKey is the raw-event log identity. Replaying a page after an
// interrupted run appends each event at most once.
type eventKey struct {
	source     model.Source
	externalID string
	observedAt time.Time
}

func (s *MemoryStore) AppendEvent(ctx context.Context, ev model.RawEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := eventKey{source: ev.Source, externalID: ev.ExternalID, observedAt: ev.ObservedAt.UTC()}
	if s.eventKeys[key] {
		return nil
	}
	s.eventKeys[key] = true
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, source model.Source) ([]model.RawEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.RawEvent
	for _, ev := range s.events {
		if source == "" || ev.Source == source {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateContact(ctx context.Context, c *model.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sid := range c.SourceIDs {
		if owner := s.findOwnerLocked(sid.Source, sid.ExternalID); owner != nil {
			return eris.Errorf("store: source id %s/%s already owned by contact %d",
				sid.Source, sid.ExternalID, owner.ID)
		}
	}

	s.nextContactID++
	c.ID = s.nextContactID
	if c.UID == "" {
		c.UID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.contacts[c.ID] = copyContact(c)
	return nil
}

func (s *MemoryStore) UpdateContact(ctx context.Context, c *model.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.resolveAliasLocked(c.ID)
	if _, ok := s.contacts[id]; !ok {
		return eris.Wrapf(ErrNotFound, "store: contact %d", c.ID)
	}
	c.ID = id
	c.UpdatedAt = time.Now().UTC()
	s.contacts[id] = copyContact(c)
	return nil
}

func (s *MemoryStore) GetContact(ctx context.Context, id int64) (*model.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[s.resolveAliasLocked(id)]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "store: contact %d", id)
	}
	return copyContact(c), nil
}

func (s *MemoryStore) FindBySourceID(ctx context.Context, src model.Source, externalID string) (*model.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c := s.findOwnerLocked(src, externalID); c != nil {
		return copyContact(c), nil
	}
	return nil, nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*model.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if email == "" {
		return nil, nil
	}
	ids := sortedContactIDsLocked(s.contacts)
	for _, id := range ids {
		if s.contacts[id].HasEmail(email) {
			return copyContact(s.contacts[id]), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListContacts(ctx context.Context) ([]model.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := sortedContactIDsLocked(s.contacts)
	out := make([]model.Contact, 0, len(ids))
	for _, id := range ids {
		out = append(out, *copyContact(s.contacts[id]))
	}
	return out, nil
}

// MergeContacts collapses loser into winner: source ids and emails are
// unioned, touchpoints and deals reassigned, and the loser id retired
// behind a forwarding alias. Single-lock, so concurrent resolves never
// observe a half-merged pair.
func (s *MemoryStore) MergeContacts(ctx context.Context, winnerID, loserID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	winnerID = s.resolveAliasLocked(winnerID)
	loserID = s.resolveAliasLocked(loserID)
	if winnerID == loserID {
		return nil
	}

	winner, ok := s.contacts[winnerID]
	if !ok {
		return eris.Wrapf(ErrNotFound, "store: merge winner %d", winnerID)
	}
	loser, ok := s.contacts[loserID]
	if !ok {
		return eris.Wrapf(ErrNotFound, "store: merge loser %d", loserID)
	}

	mergeContactDocs(winner, loser)
	winner.UpdatedAt = time.Now().UTC()

	for _, tp := range s.touchpoints {
		if tp.ContactID == loserID {
			tp.ContactID = winnerID
		}
	}
	for _, d := range s.deals {
		if d.ContactID == loserID {
			d.ContactID = winnerID
		}
	}
	delete(s.attribution, loserID)
	delete(s.contacts, loserID)
	s.aliases[loserID] = winnerID
	// Re-point any chain that ended at the loser.
	for from, to := range s.aliases {
		if to == loserID {
			s.aliases[from] = winnerID
		}
	}
	return nil
}

func (s *MemoryStore) GetTouchpointByKey(ctx context.Context, key model.SourceID) (*model.Touchpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.touchByKey[key]
	if !ok {
		return nil, nil
	}
	tp := *s.touchpoints[id]
	return &tp, nil
}

func (s *MemoryStore) SaveTouchpoint(ctx context.Context, tp *model.Touchpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	tp.ContactID = s.resolveAliasLocked(tp.ContactID)
	if existing, ok := s.touchByKey[tp.ExternalKey]; ok {
		tp.ID = existing
		tp.CreatedAt = s.touchpoints[existing].CreatedAt
		tp.UpdatedAt = now
		cp := *tp
		s.touchpoints[existing] = &cp
		return nil
	}
	s.nextTouchID++
	tp.ID = s.nextTouchID
	tp.CreatedAt = now
	tp.UpdatedAt = now
	cp := *tp
	s.touchpoints[tp.ID] = &cp
	s.touchByKey[tp.ExternalKey] = tp.ID
	return nil
}

func (s *MemoryStore) ListTouchpoints(ctx context.Context, contactID int64) ([]model.Touchpoint, error) {
	return s.listTouchpoints(contactID, "")
}

func (s *MemoryStore) ListTouchpointsByFamily(ctx context.Context, contactID int64, family string) ([]model.Touchpoint, error) {
	return s.listTouchpoints(contactID, family)
}

func (s *MemoryStore) listTouchpoints(contactID int64, family string) ([]model.Touchpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contactID = s.resolveAliasLocked(contactID)
	var out []model.Touchpoint
	for _, tp := range s.touchpoints {
		if tp.ContactID != contactID {
			continue
		}
		if family != "" && tp.Type.Family() != family {
			continue
		}
		out = append(out, *tp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpsertDeal(ctx context.Context, d *model.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ContactID = s.resolveAliasLocked(d.ContactID)
	key := model.SourceID{Source: model.SourceCRM, ExternalID: d.ExternalID}
	cp := *d
	s.deals[key] = &cp
	return nil
}

func (s *MemoryStore) ListDeals(ctx context.Context, contactID int64) ([]model.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contactID = s.resolveAliasLocked(contactID)
	var out []model.Deal
	for _, d := range s.deals {
		if d.ContactID == contactID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (s *MemoryStore) SaveAttribution(ctx context.Context, rec *model.AttributionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ContactID = s.resolveAliasLocked(rec.ContactID)
	cp := *rec
	s.attribution[rec.ContactID] = &cp
	return nil
}

func (s *MemoryStore) GetAttribution(ctx context.Context, contactID int64) (*model.AttributionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.attribution[s.resolveAliasLocked(contactID)]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "store: attribution for contact %d", contactID)
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ListAttribution(ctx context.Context) ([]model.AttributionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.attribution))
	for id := range s.attribution {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]model.AttributionRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.attribution[id])
	}
	return out, nil
}

func (s *MemoryStore) GetCheckpoint(ctx context.Context, source model.Source) (*model.SyncCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[source]
	if !ok {
		return &model.SyncCheckpoint{Source: source, Status: model.CheckpointIdle}, nil
	}
	c := *cp
	return &c, nil
}

func (s *MemoryStore) SaveCheckpoint(ctx context.Context, cp *model.SyncCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cp
	s.checkpoints[cp.Source] = &c
	return nil
}

func (s *MemoryStore) ListCheckpoints(ctx context.Context) ([]model.SyncCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SyncCheckpoint
	for _, src := range model.Sources {
		if cp, ok := s.checkpoints[src]; ok {
			out = append(out, *cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) resolveAliasLocked(id int64) int64 {
	for {
		next, ok := s.aliases[id]
		if !ok {
			return id
		}
		id = next
	}
}

func (s *MemoryStore) findOwnerLocked(src model.Source, externalID string) *model.Contact {
	for _, c := range s.contacts {
		if c.OwnsSourceID(src, externalID) {
			return c
		}
	}
	return nil
}

func sortedContactIDsLocked(m map[int64]*model.Contact) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func copyContact(c *model.Contact) *model.Contact {
	cp := *c
	cp.AltEmails = append([]string(nil), c.AltEmails...)
	cp.SourceIDs = append([]model.SourceID(nil), c.SourceIDs...)
	if c.Fields != nil {
		cp.Fields = make(map[string]map[model.Source]string, len(c.Fields))
		for f, bySource := range c.Fields {
			inner := make(map[model.Source]string, len(bySource))
			for src, v := range bySource {
				inner[src] = v
			}
			cp.Fields[f] = inner
		}
	}
	if c.MatchMethods != nil {
		cp.MatchMethods = make(map[model.Source]model.MatchMethod, len(c.MatchMethods))
		for src, m := range c.MatchMethods {
			cp.MatchMethods[src] = m
		}
	}
	if c.Kinds != nil {
		cp.Kinds = make(map[model.EventKind]bool, len(c.Kinds))
		for k := range c.Kinds {
			cp.Kinds[k] = true
		}
	}
	return &cp
}
