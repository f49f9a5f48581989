package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/attribution-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
//
// Contacts are stored as a JSON document plus indexed side tables for
// (source, external_id) ownership, email lookup, and forwarding aliases.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_events (
	source      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	kind        TEXT NOT NULL,
	payload     TEXT,
	observed_at DATETIME NOT NULL,
	PRIMARY KEY (source, external_id, observed_at)
);

CREATE TABLE IF NOT EXISTS contacts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	uid        TEXT NOT NULL UNIQUE,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contact_source_ids (
	source      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	contact_id  INTEGER NOT NULL REFERENCES contacts(id),
	PRIMARY KEY (source, external_id)
);

CREATE TABLE IF NOT EXISTS contact_emails (
	email      TEXT NOT NULL,
	contact_id INTEGER NOT NULL REFERENCES contacts(id),
	PRIMARY KEY (email, contact_id)
);

CREATE TABLE IF NOT EXISTS contact_aliases (
	old_id INTEGER PRIMARY KEY,
	new_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS touchpoints (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_id  INTEGER NOT NULL REFERENCES contacts(id),
	type        TEXT NOT NULL,
	family      TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	occurred_at DATETIME NOT NULL,
	source      TEXT NOT NULL,
	ext_source  TEXT NOT NULL,
	ext_id      TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL,
	UNIQUE (ext_source, ext_id)
);

CREATE TABLE IF NOT EXISTS deals (
	external_id TEXT PRIMARY KEY,
	contact_id  INTEGER NOT NULL REFERENCES contacts(id),
	title       TEXT,
	status      TEXT,
	closed_at   DATETIME
);

CREATE TABLE IF NOT EXISTS attribution (
	contact_id  INTEGER PRIMARY KEY,
	doc         TEXT NOT NULL,
	computed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_checkpoints (
	source          TEXT PRIMARY KEY,
	cursor          TEXT,
	processed_count INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'idle',
	run_id          TEXT,
	last_attempt_at DATETIME,
	last_error      TEXT
);

CREATE INDEX IF NOT EXISTS idx_touchpoints_contact ON touchpoints(contact_id, family, occurred_at);
CREATE INDEX IF NOT EXISTS idx_deals_contact ON deals(contact_id);
CREATE INDEX IF NOT EXISTS idx_contact_emails_email ON contact_emails(email);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev model.RawEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal payload")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO raw_events (source, external_id, kind, payload, observed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		string(ev.Source), ev.ExternalID, string(ev.Kind), string(payload), ev.ObservedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: append event")
}

func (s *SQLiteStore) ListEvents(ctx context.Context, source model.Source) ([]model.RawEvent, error) {
	query := `SELECT source, external_id, kind, payload, observed_at FROM raw_events`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, string(source))
	}
	query += ` ORDER BY observed_at, external_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var out []model.RawEvent
	for rows.Next() {
		var ev model.RawEvent
		var src, kind string
		var payload sql.NullString
		if err := rows.Scan(&src, &ev.ExternalID, &kind, &payload, &ev.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		ev.Source = model.Source(src)
		ev.Kind = model.EventKind(kind)
		if payload.Valid && payload.String != "" {
			_ = json.Unmarshal([]byte(payload.String), &ev.Payload)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateContact(ctx context.Context, c *model.Contact) error {
	if c.UID == "" {
		c.UID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin create contact")
	}
	defer tx.Rollback() //nolint:errcheck

	doc, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal contact")
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO contacts (uid, doc, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		c.UID, string(doc), now, now,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert contact")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: contact id")
	}
	c.ID = id

	// Re-marshal with the assigned id so the doc is self-consistent.
	if err := updateContactRowTx(ctx, tx, c); err != nil {
		return err
	}
	if err := syncContactIndexTx(ctx, tx, c); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit create contact")
}

func (s *SQLiteStore) UpdateContact(ctx context.Context, c *model.Contact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update contact")
	}
	defer tx.Rollback() //nolint:errcheck

	c.ID, err = resolveAliasTx(ctx, tx, c.ID)
	if err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()
	if err := updateContactRowTx(ctx, tx, c); err != nil {
		return err
	}
	if err := syncContactIndexTx(ctx, tx, c); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit update contact")
}

func updateContactRowTx(ctx context.Context, tx *sql.Tx, c *model.Contact) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal contact")
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE contacts SET doc = ?, updated_at = ? WHERE id = ?`,
		string(doc), c.UpdatedAt, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update contact %d", c.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: contact %d", c.ID)
	}
	return nil
}

// syncContactIndexTx rebuilds the source-id and email side tables for a
// contact from its document.
func syncContactIndexTx(ctx context.Context, tx *sql.Tx, c *model.Contact) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM contact_emails WHERE contact_id = ?`, c.ID); err != nil {
		return eris.Wrap(err, "sqlite: clear emails")
	}
	for _, sid := range c.SourceIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contact_source_ids (source, external_id, contact_id) VALUES (?, ?, ?)
			 ON CONFLICT (source, external_id) DO UPDATE SET contact_id = excluded.contact_id`,
			string(sid.Source), sid.ExternalID, c.ID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: index source id %s/%s", sid.Source, sid.ExternalID)
		}
	}
	emails := c.AltEmails
	if c.PrimaryEmail != "" {
		emails = append([]string{c.PrimaryEmail}, emails...)
	}
	for _, e := range emails {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO contact_emails (email, contact_id) VALUES (?, ?)`,
			e, c.ID,
		); err != nil {
			return eris.Wrap(err, "sqlite: index email")
		}
	}
	return nil
}

func resolveAliasTx(ctx context.Context, tx *sql.Tx, id int64) (int64, error) {
	for {
		var next int64
		err := tx.QueryRowContext(ctx, `SELECT new_id FROM contact_aliases WHERE old_id = ?`, id).Scan(&next)
		if err == sql.ErrNoRows {
			return id, nil
		}
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: resolve alias %d", id)
		}
		id = next
	}
}

func (s *SQLiteStore) GetContact(ctx context.Context, id int64) (*model.Contact, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin get contact")
	}
	defer tx.Rollback() //nolint:errcheck
	id, err = resolveAliasTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	c, err := scanContactTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	return c, eris.Wrap(tx.Commit(), "sqlite: commit get contact")
}

func scanContactTx(ctx context.Context, tx *sql.Tx, id int64) (*model.Contact, error) {
	var doc string
	err := tx.QueryRowContext(ctx, `SELECT doc FROM contacts WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: contact %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get contact %d", id)
	}
	var c model.Contact
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal contact %d", id)
	}
	c.ID = id
	return &c, nil
}

func (s *SQLiteStore) FindBySourceID(ctx context.Context, src model.Source, externalID string) (*model.Contact, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT contact_id FROM contact_source_ids WHERE source = ? AND external_id = ?`,
		string(src), externalID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find by source id %s/%s", src, externalID)
	}
	return s.GetContact(ctx, id)
}

func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*model.Contact, error) {
	if email == "" {
		return nil, nil
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT contact_id FROM contact_emails WHERE email = ? ORDER BY contact_id LIMIT 1`,
		email,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find by email %s", email)
	}
	return s.GetContact(ctx, id)
}

func (s *SQLiteStore) ListContacts(ctx context.Context) ([]model.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, doc FROM contacts ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contacts")
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var id int64
		var doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		var c model.Contact
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal contact %d", id)
		}
		c.ID = id
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MergeContacts(ctx context.Context, winnerID, loserID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin merge")
	}
	defer tx.Rollback() //nolint:errcheck

	winnerID, err = resolveAliasTx(ctx, tx, winnerID)
	if err != nil {
		return err
	}
	loserID, err = resolveAliasTx(ctx, tx, loserID)
	if err != nil {
		return err
	}
	if winnerID == loserID {
		return nil
	}

	winner, err := scanContactTx(ctx, tx, winnerID)
	if err != nil {
		return err
	}
	loser, err := scanContactTx(ctx, tx, loserID)
	if err != nil {
		return err
	}

	mergeContactDocs(winner, loser)
	winner.UpdatedAt = time.Now().UTC()

	if err := updateContactRowTx(ctx, tx, winner); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE contact_source_ids SET contact_id = ? WHERE contact_id = ?`, winnerID, loserID); err != nil {
		return eris.Wrap(err, "sqlite: merge source ids")
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM contact_emails WHERE contact_id = ?`, loserID); err != nil {
		return eris.Wrap(err, "sqlite: merge emails")
	}
	if err := syncContactIndexTx(ctx, tx, winner); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE touchpoints SET contact_id = ? WHERE contact_id = ?`, winnerID, loserID); err != nil {
		return eris.Wrap(err, "sqlite: merge touchpoints")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE deals SET contact_id = ? WHERE contact_id = ?`, winnerID, loserID); err != nil {
		return eris.Wrap(err, "sqlite: merge deals")
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM attribution WHERE contact_id = ?`, loserID); err != nil {
		return eris.Wrap(err, "sqlite: merge attribution")
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM contacts WHERE id = ?`, loserID); err != nil {
		return eris.Wrap(err, "sqlite: retire loser")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO contact_aliases (old_id, new_id) VALUES (?, ?)`, loserID, winnerID); err != nil {
		return eris.Wrap(err, "sqlite: insert alias")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE contact_aliases SET new_id = ? WHERE new_id = ?`, winnerID, loserID); err != nil {
		return eris.Wrap(err, "sqlite: repoint aliases")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit merge")
}

func (s *SQLiteStore) GetTouchpointByKey(ctx context.Context, key model.SourceID) (*model.Touchpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, contact_id, type, seq, occurred_at, source, ext_source, ext_id, created_at, updated_at
		 FROM touchpoints WHERE ext_source = ? AND ext_id = ?`,
		string(key.Source), key.ExternalID,
	)
	tp, err := scanTouchpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: touchpoint by key %s/%s", key.Source, key.ExternalID)
	}
	return tp, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTouchpoint(row rowScanner) (*model.Touchpoint, error) {
	var tp model.Touchpoint
	var typ, src, extSrc string
	if err := row.Scan(&tp.ID, &tp.ContactID, &typ, &tp.SequenceNumber, &tp.OccurredAt,
		&src, &extSrc, &tp.ExternalKey.ExternalID, &tp.CreatedAt, &tp.UpdatedAt); err != nil {
		return nil, err
	}
	tp.Type = model.TouchpointType(typ)
	tp.Source = model.Source(src)
	tp.ExternalKey.Source = model.Source(extSrc)
	return &tp, nil
}

func (s *SQLiteStore) SaveTouchpoint(ctx context.Context, tp *model.Touchpoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save touchpoint")
	}
	defer tx.Rollback() //nolint:errcheck

	tp.ContactID, err = resolveAliasTx(ctx, tx, tp.ContactID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	tp.UpdatedAt = now

	res, err := tx.ExecContext(ctx,
		`UPDATE touchpoints
		 SET contact_id = ?, type = ?, family = ?, seq = ?, occurred_at = ?, source = ?, updated_at = ?
		 WHERE ext_source = ? AND ext_id = ?`,
		tp.ContactID, string(tp.Type), tp.Type.Family(), tp.SequenceNumber, tp.OccurredAt.UTC(),
		string(tp.Source), now, string(tp.ExternalKey.Source), tp.ExternalKey.ExternalID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update touchpoint")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		tp.CreatedAt = now
		ins, err := tx.ExecContext(ctx,
			`INSERT INTO touchpoints (contact_id, type, family, seq, occurred_at, source, ext_source, ext_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tp.ContactID, string(tp.Type), tp.Type.Family(), tp.SequenceNumber, tp.OccurredAt.UTC(),
			string(tp.Source), string(tp.ExternalKey.Source), tp.ExternalKey.ExternalID, now, now,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert touchpoint")
		}
		tp.ID, err = ins.LastInsertId()
		if err != nil {
			return eris.Wrap(err, "sqlite: touchpoint id")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save touchpoint")
}

func (s *SQLiteStore) ListTouchpoints(ctx context.Context, contactID int64) ([]model.Touchpoint, error) {
	return s.listTouchpoints(ctx, contactID, "")
}

func (s *SQLiteStore) ListTouchpointsByFamily(ctx context.Context, contactID int64, family string) ([]model.Touchpoint, error) {
	return s.listTouchpoints(ctx, contactID, family)
}

func (s *SQLiteStore) listTouchpoints(ctx context.Context, contactID int64, family string) ([]model.Touchpoint, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin list touchpoints")
	}
	defer tx.Rollback() //nolint:errcheck
	contactID, err = resolveAliasTx(ctx, tx, contactID)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, contact_id, type, seq, occurred_at, source, ext_source, ext_id, created_at, updated_at
	          FROM touchpoints WHERE contact_id = ?`
	args := []any{contactID}
	if family != "" {
		query += ` AND family = ?`
		args = append(args, family)
	}
	query += ` ORDER BY occurred_at, id`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list touchpoints")
	}
	defer rows.Close()

	var out []model.Touchpoint
	for rows.Next() {
		tp, err := scanTouchpoint(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan touchpoint")
		}
		out = append(out, *tp)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: touchpoint rows")
	}
	return out, eris.Wrap(tx.Commit(), "sqlite: commit list touchpoints")
}

func (s *SQLiteStore) UpsertDeal(ctx context.Context, d *model.Deal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert deal")
	}
	defer tx.Rollback() //nolint:errcheck
	d.ContactID, err = resolveAliasTx(ctx, tx, d.ContactID)
	if err != nil {
		return err
	}
	var closedAt any
	if d.ClosedAt != nil {
		closedAt = d.ClosedAt.UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO deals (external_id, contact_id, title, status, closed_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET
		   contact_id = excluded.contact_id, title = excluded.title,
		   status = excluded.status, closed_at = excluded.closed_at`,
		d.ExternalID, d.ContactID, d.Title, d.Status, closedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: upsert deal")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert deal")
}

func (s *SQLiteStore) ListDeals(ctx context.Context, contactID int64) ([]model.Deal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin list deals")
	}
	defer tx.Rollback() //nolint:errcheck
	contactID, err = resolveAliasTx(ctx, tx, contactID)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT external_id, contact_id, title, status, closed_at FROM deals
		 WHERE contact_id = ? ORDER BY external_id`, contactID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deals")
	}
	defer rows.Close()

	var out []model.Deal
	for rows.Next() {
		var d model.Deal
		var title, status sql.NullString
		var closedAt sql.NullTime
		if err := rows.Scan(&d.ExternalID, &d.ContactID, &title, &status, &closedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deal")
		}
		d.Title = title.String
		d.Status = status.String
		if closedAt.Valid {
			t := closedAt.Time
			d.ClosedAt = &t
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: deal rows")
	}
	return out, eris.Wrap(tx.Commit(), "sqlite: commit list deals")
}

func (s *SQLiteStore) SaveAttribution(ctx context.Context, rec *model.AttributionRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal attribution")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attribution (contact_id, doc, computed_at) VALUES (?, ?, ?)
		 ON CONFLICT (contact_id) DO UPDATE SET doc = excluded.doc, computed_at = excluded.computed_at`,
		rec.ContactID, string(doc), rec.ComputedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save attribution")
}

func (s *SQLiteStore) GetAttribution(ctx context.Context, contactID int64) (*model.AttributionRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin get attribution")
	}
	defer tx.Rollback() //nolint:errcheck
	contactID, err = resolveAliasTx(ctx, tx, contactID)
	if err != nil {
		return nil, err
	}
	var doc string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM attribution WHERE contact_id = ?`, contactID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: attribution for contact %d", contactID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get attribution %d", contactID)
	}
	var rec model.AttributionRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal attribution")
	}
	return &rec, eris.Wrap(tx.Commit(), "sqlite: commit get attribution")
}

func (s *SQLiteStore) ListAttribution(ctx context.Context) ([]model.AttributionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM attribution ORDER BY contact_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list attribution")
	}
	defer rows.Close()

	var out []model.AttributionRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attribution")
		}
		var rec model.AttributionRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal attribution")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, source model.Source) (*model.SyncCheckpoint, error) {
	var cp model.SyncCheckpoint
	var cursor, runID, lastErr sql.NullString
	var status string
	var lastAttempt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor, processed_count, status, run_id, last_attempt_at, last_error
		 FROM sync_checkpoints WHERE source = ?`, string(source),
	).Scan(&cursor, &cp.ProcessedCount, &status, &runID, &lastAttempt, &lastErr)
	if err == sql.ErrNoRows {
		return &model.SyncCheckpoint{Source: source, Status: model.CheckpointIdle}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get checkpoint %s", source)
	}
	cp.Source = source
	cp.Cursor = cursor.String
	cp.Status = model.CheckpointStatus(status)
	cp.RunID = runID.String
	cp.LastError = lastErr.String
	if lastAttempt.Valid {
		cp.LastAttemptAt = lastAttempt.Time
	}
	return &cp, nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *model.SyncCheckpoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_checkpoints (source, cursor, processed_count, status, run_id, last_attempt_at, last_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source) DO UPDATE SET
		   cursor = excluded.cursor, processed_count = excluded.processed_count,
		   status = excluded.status, run_id = excluded.run_id,
		   last_attempt_at = excluded.last_attempt_at, last_error = excluded.last_error`,
		string(cp.Source), cp.Cursor, cp.ProcessedCount, string(cp.Status),
		cp.RunID, cp.LastAttemptAt.UTC(), cp.LastError,
	)
	return eris.Wrapf(err, "sqlite: save checkpoint %s", cp.Source)
}

func (s *SQLiteStore) ListCheckpoints(ctx context.Context) ([]model.SyncCheckpoint, error) {
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
