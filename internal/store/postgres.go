package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/attribution-engine/internal/db"
	"github.com/sells-group/attribution-engine/internal/model"
)

// PostgresStore implements Store using pgxpool. Same document-plus-index
// layout as the SQLite backend, with JSONB documents.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool (used by tests with pgxmock).
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS raw_events (
	source      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	kind        TEXT NOT NULL,
	payload     JSONB,
	observed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source, external_id, observed_at)
);

CREATE TABLE IF NOT EXISTS contacts (
	id         BIGSERIAL PRIMARY KEY,
	uid        TEXT NOT NULL UNIQUE,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contact_source_ids (
	source      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	contact_id  BIGINT NOT NULL REFERENCES contacts(id),
	PRIMARY KEY (source, external_id)
);

CREATE TABLE IF NOT EXISTS contact_emails (
	email      TEXT NOT NULL,
	contact_id BIGINT NOT NULL REFERENCES contacts(id),
	PRIMARY KEY (email, contact_id)
);

CREATE TABLE IF NOT EXISTS contact_aliases (
	old_id BIGINT PRIMARY KEY,
	new_id BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS touchpoints (
	id          BIGSERIAL PRIMARY KEY,
	contact_id  BIGINT NOT NULL REFERENCES contacts(id),
	type        TEXT NOT NULL,
	family      TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	source      TEXT NOT NULL,
	ext_source  TEXT NOT NULL,
	ext_id      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (ext_source, ext_id)
);

CREATE TABLE IF NOT EXISTS deals (
	external_id TEXT PRIMARY KEY,
	contact_id  BIGINT NOT NULL REFERENCES contacts(id),
	title       TEXT,
	status      TEXT,
	closed_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS attribution (
	contact_id  BIGINT PRIMARY KEY,
	doc         JSONB NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_checkpoints (
	source          TEXT PRIMARY KEY,
	cursor          TEXT,
	processed_count BIGINT NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'idle',
	run_id          TEXT,
	last_attempt_at TIMESTAMPTZ,
	last_error      TEXT
);

CREATE INDEX IF NOT EXISTS idx_touchpoints_contact ON touchpoints(contact_id, family, occurred_at);
CREATE INDEX IF NOT EXISTS idx_deals_contact ON deals(contact_id);
CREATE INDEX IF NOT EXISTS idx_contact_emails_email ON contact_emails(email);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, ev model.RawEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal payload")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO raw_events (source, external_id, kind, payload, observed_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
		string(ev.Source), ev.ExternalID, string(ev.Kind), payload, ev.ObservedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: append event")
}

func (s *PostgresStore) ListEvents(ctx context.Context, source model.Source) ([]model.RawEvent, error) {
	query := `SELECT source, external_id, kind, payload, observed_at FROM raw_events`
	var args []any
	if source != "" {
		query += ` WHERE source = $1`
		args = append(args, string(source))
	}
	query += ` ORDER BY observed_at, external_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var out []model.RawEvent
	for rows.Next() {
		var ev model.RawEvent
		var src, kind string
		var payload []byte
		if err := rows.Scan(&src, &ev.ExternalID, &kind, &payload, &ev.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		ev.Source = model.Source(src)
		ev.Kind = model.EventKind(kind)
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &ev.Payload)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateContact(ctx context.Context, c *model.Contact) error {
	if c.UID == "" {
		c.UID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin create contact")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	doc, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal contact")
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO contacts (uid, doc, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		c.UID, doc, now, now,
	).Scan(&c.ID)
	if err != nil {
		return eris.Wrap(err, "postgres: insert contact")
	}

	if err := pgUpdateContactRow(ctx, tx, c); err != nil {
		return err
	}
	if err := pgSyncContactIndex(ctx, tx, c); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit create contact")
}

func (s *PostgresStore) UpdateContact(ctx context.Context, c *model.Contact) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update contact")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	c.ID, err = pgResolveAlias(ctx, tx, c.ID)
	if err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()
	if err := pgUpdateContactRow(ctx, tx, c); err != nil {
		return err
	}
	if err := pgSyncContactIndex(ctx, tx, c); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit update contact")
}

func pgUpdateContactRow(ctx context.Context, tx pgx.Tx, c *model.Contact) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal contact")
	}
	tag, err := tx.Exec(ctx,
		`UPDATE contacts SET doc = $1, updated_at = $2 WHERE id = $3`,
		doc, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update contact %d", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: contact %d", c.ID)
	}
	return nil
}

func pgSyncContactIndex(ctx context.Context, tx pgx.Tx, c *model.Contact) error {
	if _, err := tx.Exec(ctx, `DELETE FROM contact_emails WHERE contact_id = $1`, c.ID); err != nil {
		return eris.Wrap(err, "postgres: clear emails")
	}
	for _, sid := range c.SourceIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO contact_source_ids (source, external_id, contact_id) VALUES ($1, $2, $3)
			 ON CONFLICT (source, external_id) DO UPDATE SET contact_id = excluded.contact_id`,
			string(sid.Source), sid.ExternalID, c.ID,
		); err != nil {
			return eris.Wrapf(err, "postgres: index source id %s/%s", sid.Source, sid.ExternalID)
		}
	}
	emails := c.AltEmails
	if c.PrimaryEmail != "" {
		emails = append([]string{c.PrimaryEmail}, emails...)
	}
	for _, e := range emails {
		if _, err := tx.Exec(ctx,
			`INSERT INTO contact_emails (email, contact_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			e, c.ID,
		); err != nil {
			return eris.Wrap(err, "postgres: index email")
		}
	}
	return nil
}

func pgResolveAlias(ctx context.Context, tx pgx.Tx, id int64) (int64, error) {
	for {
		var next int64
		err := tx.QueryRow(ctx, `SELECT new_id FROM contact_aliases WHERE old_id = $1`, id).Scan(&next)
		if errors.Is(err, pgx.ErrNoRows) {
			return id, nil
		}
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: resolve alias %d", id)
		}
		id = next
	}
}

func (s *PostgresStore) GetContact(ctx context.Context, id int64) (*model.Contact, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin get contact")
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	id, err = pgResolveAlias(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	c, err := pgScanContact(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return c, eris.Wrap(tx.Commit(ctx), "postgres: commit get contact")
}

func pgScanContact(ctx context.Context, tx pgx.Tx, id int64) (*model.Contact, error) {
	var doc []byte
	err := tx.QueryRow(ctx, `SELECT doc FROM contacts WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: contact %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get contact %d", id)
	}
	var c model.Contact
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal contact %d", id)
	}
	c.ID = id
	return &c, nil
}

func (s *PostgresStore) FindBySourceID(ctx context.Context, src model.Source, externalID string) (*model.Contact, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT contact_id FROM contact_source_ids WHERE source = $1 AND external_id = $2`,
		string(src), externalID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find by source id %s/%s", src, externalID)
	}
	return s.GetContact(ctx, id)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*model.Contact, error) {
	if email == "" {
		return nil, nil
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT contact_id FROM contact_emails WHERE email = $1 ORDER BY contact_id LIMIT 1`,
		email,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find by email %s", email)
	}
	return s.GetContact(ctx, id)
}

func (s *PostgresStore) ListContacts(ctx context.Context) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, doc FROM contacts ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contacts")
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var id int64
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		var c model.Contact
		if err := json.Unmarshal(doc, &c); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal contact %d", id)
		}
		c.ID = id
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MergeContacts(ctx context.Context, winnerID, loserID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin merge")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	winnerID, err = pgResolveAlias(ctx, tx, winnerID)
	if err != nil {
		return err
	}
	loserID, err = pgResolveAlias(ctx, tx, loserID)
	if err != nil {
		return err
	}
	if winnerID == loserID {
		return nil
	}

	winner, err := pgScanContact(ctx, tx, winnerID)
	if err != nil {
		return err
	}
	loser, err := pgScanContact(ctx, tx, loserID)
	if err != nil {
		return err
	}

	mergeContactDocs(winner, loser)
	winner.UpdatedAt = time.Now().UTC()

	if err := pgUpdateContactRow(ctx, tx, winner); err != nil {
		return err
	}
	steps := []struct {
		sql  string
		args []any
		desc string
	}{
		{`UPDATE contact_source_ids SET contact_id = $1 WHERE contact_id = $2`, []any{winnerID, loserID}, "merge source ids"},
		{`DELETE FROM contact_emails WHERE contact_id = $1`, []any{loserID}, "merge emails"},
		{`UPDATE touchpoints SET contact_id = $1 WHERE contact_id = $2`, []any{winnerID, loserID}, "merge touchpoints"},
		{`UPDATE deals SET contact_id = $1 WHERE contact_id = $2`, []any{winnerID, loserID}, "merge deals"},
		{`DELETE FROM attribution WHERE contact_id = $1`, []any{loserID}, "merge attribution"},
		{`DELETE FROM contacts WHERE id = $1`, []any{loserID}, "retire loser"},
		{`INSERT INTO contact_aliases (old_id, new_id) VALUES ($1, $2)`, []any{loserID, winnerID}, "insert alias"},
		{`UPDATE contact_aliases SET new_id = $1 WHERE new_id = $2`, []any{winnerID, loserID}, "repoint aliases"},
	}
	for _, st := range steps {
		if _, err := tx.Exec(ctx, st.sql, st.args...); err != nil {
			return eris.Wrapf(err, "postgres: %s", st.desc)
		}
	}
	if err := pgSyncContactIndex(ctx, tx, winner); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit merge")
}

func (s *PostgresStore) GetTouchpointByKey(ctx context.Context, key model.SourceID) (*model.Touchpoint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, contact_id, type, seq, occurred_at, source, ext_source, ext_id, created_at, updated_at
		 FROM touchpoints WHERE ext_source = $1 AND ext_id = $2`,
		string(key.Source), key.ExternalID,
	)
	tp, err := scanTouchpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: touchpoint by key %s/%s", key.Source, key.ExternalID)
	}
	return tp, nil
}

func (s *PostgresStore) SaveTouchpoint(ctx context.Context, tp *model.Touchpoint) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save touchpoint")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tp.ContactID, err = pgResolveAlias(ctx, tx, tp.ContactID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	tp.UpdatedAt = now

	err = tx.QueryRow(ctx,
		`INSERT INTO touchpoints (contact_id, type, family, seq, occurred_at, source, ext_source, ext_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 ON CONFLICT (ext_source, ext_id) DO UPDATE SET
		   contact_id = excluded.contact_id, type = excluded.type, family = excluded.family,
		   seq = excluded.seq, occurred_at = excluded.occurred_at, source = excluded.source,
		   updated_at = excluded.updated_at
		 RETURNING id, created_at`,
		tp.ContactID, string(tp.Type), tp.Type.Family(), tp.SequenceNumber, tp.OccurredAt.UTC(),
		string(tp.Source), string(tp.ExternalKey.Source), tp.ExternalKey.ExternalID, now,
	).Scan(&tp.ID, &tp.CreatedAt)
	if err != nil {
		return eris.Wrap(err, "postgres: upsert touchpoint")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save touchpoint")
}

func (s *PostgresStore) ListTouchpoints(ctx context.Context, contactID int64) ([]model.Touchpoint, error) {
	return s.listTouchpoints(ctx, contactID, "")
}

func (s *PostgresStore) ListTouchpointsByFamily(ctx context.Context, contactID int64, family string) ([]model.Touchpoint, error) {
	return s.listTouchpoints(ctx, contactID, family)
}

func (s *PostgresStore) listTouchpoints(ctx context.Context, contactID int64, family string) ([]model.Touchpoint, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin list touchpoints")
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	contactID, err = pgResolveAlias(ctx, tx, contactID)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, contact_id, type, seq, occurred_at, source, ext_source, ext_id, created_at, updated_at
	          FROM touchpoints WHERE contact_id = $1`
	args := []any{contactID}
	if family != "" {
		query += ` AND family = $2`
		args = append(args, family)
	}
	query += ` ORDER BY occurred_at, id`

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list touchpoints")
	}
	defer rows.Close()

	var out []model.Touchpoint
	for rows.Next() {
		tp, err := scanTouchpoint(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan touchpoint")
		}
		out = append(out, *tp)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: touchpoint rows")
	}
	rows.Close()
	return out, eris.Wrap(tx.Commit(ctx), "postgres: commit list touchpoints")
}

func (s *PostgresStore) UpsertDeal(ctx context.Context, d *model.Deal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin upsert deal")
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	d.ContactID, err = pgResolveAlias(ctx, tx, d.ContactID)
	if err != nil {
		return err
	}
	var closedAt any
	if d.ClosedAt != nil {
		closedAt = d.ClosedAt.UTC()
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO deals (external_id, contact_id, title, status, closed_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (external_id) DO UPDATE SET
		   contact_id = excluded.contact_id, title = excluded.title,
		   status = excluded.status, closed_at = excluded.closed_at`,
		d.ExternalID, d.ContactID, d.Title, d.Status, closedAt,
	); err != nil {
		return eris.Wrap(err, "postgres: upsert deal")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit upsert deal")
}

func (s *PostgresStore) ListDeals(ctx context.Context, contactID int64) ([]model.Deal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin list deals")
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	contactID, err = pgResolveAlias(ctx, tx, contactID)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx,
		`SELECT external_id, contact_id, title, status, closed_at FROM deals
		 WHERE contact_id = $1 ORDER BY external_id`, contactID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deals")
	}
	defer rows.Close()

	var out []model.Deal
	for rows.Next() {
		var d model.Deal
		var title, status *string
		var closedAt *time.Time
		if err := rows.Scan(&d.ExternalID, &d.ContactID, &title, &status, &closedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan deal")
		}
		if title != nil {
			d.Title = *title
		}
		if status != nil {
			d.Status = *status
		}
		d.ClosedAt = closedAt
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: deal rows")
	}
	rows.Close()
	return out, eris.Wrap(tx.Commit(ctx), "postgres: commit list deals")
}

func (s *PostgresStore) SaveAttribution(ctx context.Context, rec *model.AttributionRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal attribution")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO attribution (contact_id, doc, computed_at) VALUES ($1, $2, $3)
		 ON CONFLICT (contact_id) DO UPDATE SET doc = excluded.doc, computed_at = excluded.computed_at`,
		rec.ContactID, doc, rec.ComputedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save attribution")
}

func (s *PostgresStore) GetAttribution(ctx context.Context, contactID int64) (*model.AttributionRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin get attribution")
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	contactID, err = pgResolveAlias(ctx, tx, contactID)
	if err != nil {
		return nil, err
	}
	var doc []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM attribution WHERE contact_id = $1`, contactID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: attribution for contact %d", contactID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get attribution %d", contactID)
	}
	var rec model.AttributionRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal attribution")
	}
	return &rec, eris.Wrap(tx.Commit(ctx), "postgres: commit get attribution")
}

func (s *PostgresStore) ListAttribution(ctx context.Context) ([]model.AttributionRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM attribution ORDER BY contact_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list attribution")
	}
	defer rows.Close()

	var out []model.AttributionRecord
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan attribution")
		}
		var rec model.AttributionRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal attribution")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetCheckpoint(ctx context.Context, source model.Source) (*model.SyncCheckpoint, error) {
	var cp model.SyncCheckpoint
	var cursor, runID, lastErr *string
	var status string
	var lastAttempt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT cursor, processed_count, status, run_id, last_attempt_at, last_error
		 FROM sync_checkpoints WHERE source = $1`, string(source),
	).Scan(&cursor, &cp.ProcessedCount, &status, &runID, &lastAttempt, &lastErr)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.SyncCheckpoint{Source: source, Status: model.CheckpointIdle}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get checkpoint %s", source)
	}
	cp.Source = source
	cp.Status = model.CheckpointStatus(status)
	if cursor != nil {
		cp.Cursor = *cursor
	}
	if runID != nil {
		cp.RunID = *runID
	}
	if lastErr != nil {
		cp.LastError = *lastErr
	}
	if lastAttempt != nil {
		cp.LastAttemptAt = *lastAttempt
	}
	return &cp, nil
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp *model.SyncCheckpoint) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_checkpoints (source, cursor, processed_count, status, run_id, last_attempt_at, last_error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (source) DO UPDATE SET
		   cursor = excluded.cursor, processed_count = excluded.processed_count,
		   status = excluded.status, run_id = excluded.run_id,
		   last_attempt_at = excluded.last_attempt_at, last_error = excluded.last_error`,
		string(cp.Source), cp.Cursor, cp.ProcessedCount, string(cp.Status),
		cp.RunID, cp.LastAttemptAt.UTC(), cp.LastError,
	)
	return eris.Wrapf(err, "postgres: save checkpoint %s", cp.Source)
}

func (s *PostgresStore) ListCheckpoints(ctx context.Context) ([]model.SyncCheckpoint, error) {
	var out []model.SyncCheckpoint
	for _, src := range model.Sources {
		cp, err := s.GetCheckpoint(ctx, src)
		if err != nil {
			return nil, err
		}
		if cp.Status != model.CheckpointIdle || cp.ProcessedCount > 0 {
			out = append(out, *cp)
		}
	}
	return out, nil
}
