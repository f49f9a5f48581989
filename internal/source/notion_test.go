package source

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-engine/internal/model"
)

type fakeNotionDB struct {
	pages    []notionapi.Page
	lastReq  *notionapi.DatabaseQueryRequest
	failWith error
}

func (f *fakeNotionDB) Query(_ context.Context, _ notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	f.lastReq = req
	if f.failWith != nil {
		return nil, f.failWith
	}
	start := 0
	if req.StartCursor != "" {
		for i := range f.pages {
			if notionapi.Cursor(f.pages[i].ID) == req.StartCursor {
				start = i
				break
			}
		}
	}
	end := start + req.PageSize
	if end > len(f.pages) {
		end = len(f.pages)
	}
	resp := &notionapi.DatabaseQueryResponse{Results: f.pages[start:end]}
	if end < len(f.pages) {
		resp.HasMore = true
		resp.NextCursor = notionapi.Cursor(f.pages[end].ID)
	}
	return resp, nil
}

func submissionPage(id, name, email string, created time.Time) notionapi.Page {
	return notionapi.Page{
		ID:          notionapi.ObjectID(id),
		CreatedTime: created,
		Properties: notionapi.Properties{
			"Name": &notionapi.TitleProperty{
				Title: []notionapi.RichText{{PlainText: name}},
			},
			"Email": &notionapi.EmailProperty{Email: email},
			"Phone": &notionapi.PhoneNumberProperty{PhoneNumber: "555-0100"},
			"Company": &notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{PlainText: "Acme"}},
			},
		},
	}
}

func TestNotionAdapter_Pagination(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 30, 8, 0, 0, 0, time.UTC)
	db := &fakeNotionDB{pages: []notionapi.Page{
		submissionPage("p1", "Alice Zhang", "alice@example.com", created),
		submissionPage("p2", "Bob Ruiz", "bob@example.com", created.Add(time.Hour)),
		submissionPage("p3", "Cara Okafor", "cara@example.com", created.Add(2*time.Hour)),
	}}
	a := NewNotionAdapterWithQuerier(db, "db-1")

	page, err := a.Fetch(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "p3", page.NextCursor)

	ev := page.Events[0]
	assert.Equal(t, model.SourceForms, ev.Source)
	assert.Equal(t, model.KindFormSubmission, ev.Kind)
	assert.Equal(t, "p1", ev.ExternalID)
	assert.Equal(t, "Alice Zhang", ev.PayloadString("name"))
	assert.Equal(t, "alice@example.com", ev.PayloadString("email"))
	assert.Equal(t, "Acme", ev.PayloadString("company"))
	assert.Equal(t, "2026-03-30T08:00:00Z", ev.PayloadString("submitted_at"))

	// Submissions are requested oldest first so sequencing is stable.
	require.Len(t, db.lastReq.Sorts, 1)
	assert.Equal(t, notionapi.TimestampCreated, db.lastReq.Sorts[0].Timestamp)
	assert.Equal(t, notionapi.SortOrderASC, db.lastReq.Sorts[0].Direction)

	page, err = a.Fetch(ctx, page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Equal(t, "p3", page.Events[0].ExternalID)
	assert.Empty(t, page.NextCursor)
	assert.Equal(t, notionapi.Cursor("p3"), db.lastReq.StartCursor)
}

func TestNotionAdapter_QueryErrorIsTransient(t *testing.T) {
	db := &fakeNotionDB{failWith: assert.AnError}
	a := NewNotionAdapterWithQuerier(db, "db-1")

	_, err := a.Fetch(context.Background(), "", 10)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
