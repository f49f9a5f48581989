package source

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/attribution-engine/internal/model"
)

// NotionDatabaseQuerier is the slice of the Notion API the forms adapter
// uses.
type NotionDatabaseQuerier interface {
	Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// NotionAdapter reads form submissions from a Notion database that the
// website backend writes one page per submission into. Notion paginates
// with a start cursor and caps page size at 100.
type NotionAdapter struct {
	db      NotionDatabaseQuerier
	dbID    notionapi.DatabaseID
	limiter *rate.Limiter
}

// NewNotionAdapter creates the forms adapter for one submissions
// database. Calls are throttled to Notion's 3 req/s limit.
func NewNotionAdapter(token, databaseID string) *NotionAdapter {
	client := notionapi.NewClient(notionapi.Token(token))
	return &NotionAdapter{
		db:      client.Database,
		dbID:    notionapi.DatabaseID(databaseID),
		limiter: rate.NewLimiter(3, 1),
	}
}

// NewNotionAdapterWithQuerier wires a custom querier, used by tests.
func NewNotionAdapterWithQuerier(db NotionDatabaseQuerier, databaseID string) *NotionAdapter {
	return &NotionAdapter{
		db:   db,
		dbID: notionapi.DatabaseID(databaseID),
	}
}

func (a *NotionAdapter) Source() model.Source { return model.SourceForms }

// Fetch returns the next page of form submissions.
func (a *NotionAdapter) Fetch(ctx context.Context, cursor string, limit int) (*Page, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "forms: rate limit")
		}
	}

	req := &notionapi.DatabaseQueryRequest{
		PageSize: limit,
		Sorts: []notionapi.SortObject{
			{Timestamp: notionapi.TimestampCreated, Direction: notionapi.SortOrderASC},
		},
	}
	if cursor != "" {
		req.StartCursor = notionapi.Cursor(cursor)
	}

	resp, err := a.db.Query(ctx, a.dbID, req)
	if err != nil {
		return nil, NewTransientError(eris.Wrap(err, "forms: query submissions"), 0)
	}

	page := &Page{Events: make([]model.RawEvent, 0, len(resp.Results))}
	for i := range resp.Results {
		page.Events = append(page.Events, a.submissionEvent(&resp.Results[i]))
	}
	if resp.HasMore {
		page.NextCursor = string(resp.NextCursor)
	}
	return page, nil
}

func (a *NotionAdapter) submissionEvent(pg *notionapi.Page) model.RawEvent {
	return model.RawEvent{
		Source:     model.SourceForms,
		ExternalID: string(pg.ID),
		Kind:       model.KindFormSubmission,
		Payload: map[string]any{
			"name":         titleProp(pg, "Name"),
			"email":        emailProp(pg, "Email"),
			"phone":        phoneProp(pg, "Phone"),
			"company":      richTextProp(pg, "Company"),
			"submitted_at": pg.CreatedTime.UTC().Format(time.RFC3339),
		},
		ObservedAt: time.Now().UTC(),
	}
}

func titleProp(pg *notionapi.Page, name string) string {
	p, ok := pg.Properties[name].(*notionapi.TitleProperty)
	if !ok {
		return ""
	}
	out := ""
	for _, rt := range p.Title {
		out += rt.PlainText
	}
	return out
}

func richTextProp(pg *notionapi.Page, name string) string {
	p, ok := pg.Properties[name].(*notionapi.RichTextProperty)
	if !ok {
		return ""
	}
	out := ""
	for _, rt := range p.RichText {
		out += rt.PlainText
	}
	return out
}

func emailProp(pg *notionapi.Page, name string) string {
	p, ok := pg.Properties[name].(*notionapi.EmailProperty)
	if !ok {
		return ""
	}
	return p.Email
}

func phoneProp(pg *notionapi.Page, name string) string {
	p, ok := pg.Properties[name].(*notionapi.PhoneNumberProperty)
	if !ok {
		return ""
	}
	return p.PhoneNumber
}
