package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/attribution-engine/internal/model"
)

// SoqlClient is the slice of the Salesforce API the CRM adapter needs.
type SoqlClient interface {
	Query(ctx context.Context, soql string, out any) error
}

// sfClient wraps the go-salesforce/v3 struct. The underlying library does
// not accept context, so ctx only governs the rate-limiter wait.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "sf: rate limit")
		}
	}
	if err := c.sf.Query(soql, out); err != nil {
		return eris.Wrap(err, "sf: query")
	}
	return nil
}

// SalesforceCreds holds JWT client-credentials auth material.
type SalesforceCreds struct {
	Domain         string
	ConsumerKey    string
	ConsumerSecret string
}

// NewSalesforceClient authenticates against Salesforce and returns a
// rate-limited query client.
func NewSalesforceClient(creds SalesforceCreds, rps float64) (SoqlClient, error) {
	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         creds.Domain,
		ConsumerKey:    creds.ConsumerKey,
		ConsumerSecret: creds.ConsumerSecret,
	})
	if err != nil {
		return nil, eris.Wrap(err, "sf: init")
	}
	c := &sfClient{sf: sf}
	if rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
	return c, nil
}

// sfObject is one phase of the CRM fetch. Phases run in declaration
// order; the cursor encodes the phase name plus the last record id.
type sfObject struct {
	name    string
	soql    func(afterID string, limit int) string
	toEvent func(row map[string]any) model.RawEvent
}

// SalesforceAdapter pages through CRM contacts, meetings, and deals
// using keyset pagination on record id, which is stable under concurrent
// inserts.
type SalesforceAdapter struct {
	client  SoqlClient
	objects []sfObject
	now     func() time.Time
}

// NewSalesforceAdapter creates the CRM adapter.
func NewSalesforceAdapter(client SoqlClient) *SalesforceAdapter {
	a := &SalesforceAdapter{client: client, now: time.Now}
	a.objects = []sfObject{
		{
			name: "Contact",
			soql: func(afterID string, limit int) string {
				return keysetSoql("Id, FirstName, LastName, Email, Phone, Title, Account.Name", "Contact", afterID, limit)
			},
			toEvent: a.contactEvent,
		},
		{
			name: "Event",
			soql: func(afterID string, limit int) string {
				return keysetSoql("Id, Subject, StartDateTime, Who.Name, Who.Email", "Event", afterID, limit)
			},
			toEvent: a.meetingEvent,
		},
		{
			name: "Opportunity",
			soql: func(afterID string, limit int) string {
				return keysetSoql("Id, Name, Amount, StageName, CloseDate, Contact.Email, Contact.Name", "Opportunity", afterID, limit)
			},
			toEvent: a.dealEvent,
		},
	}
	return a
}

func (a *SalesforceAdapter) Source() model.Source { return model.SourceCRM }

// Fetch returns the next page of CRM events. The cursor is
// "<object>|<lastId>"; an empty cursor starts at the first object.
func (a *SalesforceAdapter) Fetch(ctx context.Context, cursor string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 200
	}
	phase, afterID, err := a.decodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	obj := a.objects[phase]
	var rows []map[string]any
	if err := a.client.Query(ctx, obj.soql(afterID, limit), &rows); err != nil {
		return nil, eris.Wrapf(err, "crm: fetch %s page", obj.name)
	}

	page := &Page{Events: make([]model.RawEvent, 0, len(rows))}
	lastID := afterID
	for _, row := range rows {
		ev := obj.toEvent(row)
		if ev.ExternalID == "" {
			continue
		}
		page.Events = append(page.Events, ev)
		lastID = ev.ExternalID
	}

	switch {
	case len(rows) == limit:
		page.NextCursor = obj.name + "|" + lastID
	case phase < len(a.objects)-1:
		page.NextCursor = a.objects[phase+1].name + "|"
	}
	return page, nil
}

func (a *SalesforceAdapter) decodeCursor(cursor string) (int, string, error) {
	if cursor == "" {
		return 0, "", nil
	}
	name, afterID, ok := strings.Cut(cursor, "|")
	if !ok {
		return 0, "", eris.Errorf("crm: malformed cursor %q", cursor)
	}
	for i, obj := range a.objects {
		if obj.name == name {
			return i, afterID, nil
		}
	}
	return 0, "", eris.Errorf("crm: unknown cursor object %q", name)
}

func (a *SalesforceAdapter) contactEvent(row map[string]any) model.RawEvent {
	name := strings.TrimSpace(rowString(row, "FirstName") + " " + rowString(row, "LastName"))
	return model.RawEvent{
		Source:     model.SourceCRM,
		ExternalID: rowString(row, "Id"),
		Kind:       model.KindContact,
		Payload: map[string]any{
			"name":    name,
			"email":   rowString(row, "Email"),
			"phone":   rowString(row, "Phone"),
			"title":   rowString(row, "Title"),
			"company": nestedString(row, "Account", "Name"),
		},
		ObservedAt: a.now().UTC(),
	}
}

func (a *SalesforceAdapter) meetingEvent(row map[string]any) model.RawEvent {
	return model.RawEvent{
		Source:     model.SourceCRM,
		ExternalID: rowString(row, "Id"),
		Kind:       model.KindMeeting,
		Payload: map[string]any{
			"title":      rowString(row, "Subject"),
			"start_time": rowString(row, "StartDateTime"),
			"name":       nestedString(row, "Who", "Name"),
			"email":      nestedString(row, "Who", "Email"),
		},
		ObservedAt: a.now().UTC(),
	}
}

func (a *SalesforceAdapter) dealEvent(row map[string]any) model.RawEvent {
	return model.RawEvent{
		Source:     model.SourceCRM,
		ExternalID: rowString(row, "Id"),
		Kind:       model.KindDeal,
		Payload: map[string]any{
			"title":      rowString(row, "Name"),
			"value":      rowString(row, "Amount"),
			"status":     rowString(row, "StageName"),
			"close_date": rowString(row, "CloseDate"),
			"email":      nestedString(row, "Contact", "Email"),
			"name":       nestedString(row, "Contact", "Name"),
		},
		ObservedAt: a.now().UTC(),
	}
}

// keysetSoql builds an id-ordered page query. Record ids are opaque but
// lexically ordered in Salesforce, so Id > lastId pages deterministically.
func keysetSoql(fields, object, afterID string, limit int) string {
	where := ""
	if afterID != "" {
		where = fmt.Sprintf(" WHERE Id > '%s'", escapeSoql(afterID))
	}
	return fmt.Sprintf("SELECT %s FROM %s%s ORDER BY Id LIMIT %d", fields, object, where, limit)
}

// escapeSoql escapes single quotes in SOQL string literals.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

func rowString(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%f", v), ".000000")
	default:
		return ""
	}
}

func nestedString(row map[string]any, parent, key string) string {
	child, _ := row[parent].(map[string]any)
	if child == nil {
		return ""
	}
	return rowString(child, key)
}
