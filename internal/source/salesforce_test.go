package source

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-engine/internal/model"
)

// fakeSoql serves canned rows keyed by the FROM object, slicing on the
// keyset cursor like the real API would.
type fakeSoql struct {
	rows    map[string][]map[string]any
	queries []string
}

func (f *fakeSoql) Query(_ context.Context, soql string, out any) error {
	f.queries = append(f.queries, soql)
	object := ""
	for name := range f.rows {
		if strings.Contains(soql, " FROM "+name+" ") || strings.Contains(soql, " FROM "+name+" ORDER") {
			object = name
			break
		}
	}
	afterID := ""
	if i := strings.Index(soql, "Id > '"); i >= 0 {
		rest := soql[i+len("Id > '"):]
		afterID = rest[:strings.Index(rest, "'")]
	}
	var matched []map[string]any
	for _, row := range f.rows[object] {
		if id, _ := row["Id"].(string); id > afterID {
			matched = append(matched, row)
		}
	}
	*out.(*[]map[string]any) = matched
	return nil
}

func TestSalesforceAdapter_PhaseTransitions(t *testing.T) {
	ctx := context.Background()
	client := &fakeSoql{rows: map[string][]map[string]any{
		"Contact": {
			{"Id": "003A", "FirstName": "Alice", "LastName": "Zhang", "Email": "alice@example.com", "Account": map[string]any{"Name": "Acme"}},
			{"Id": "003B", "FirstName": "Bob", "LastName": "Ruiz", "Email": "bob@example.com"},
		},
		"Event": {
			{"Id": "00UA", "Subject": "Discovery call", "StartDateTime": "2026-04-02T10:00:00Z", "Who": map[string]any{"Email": "alice@example.com", "Name": "Alice Zhang"}},
		},
		"Opportunity": {
			{"Id": "006A", "Name": "Annual plan", "StageName": "Closed Won", "CloseDate": "2026-04-20", "Contact": map[string]any{"Email": "alice@example.com"}},
		},
	}}
	a := NewSalesforceAdapter(client)

	// Full first page rolls the cursor forward within the Contact phase.
	page, err := a.Fetch(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "Contact|003B", page.NextCursor)
	assert.Equal(t, model.KindContact, page.Events[0].Kind)
	assert.Equal(t, "Alice Zhang", page.Events[0].PayloadString("name"))
	assert.Equal(t, "Acme", page.Events[0].PayloadString("company"))

	// Short page hands off to the next object.
	page, err = a.Fetch(ctx, page.NextCursor, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Events)
	assert.Equal(t, "Event|", page.NextCursor)

	page, err = a.Fetch(ctx, page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Equal(t, model.KindMeeting, page.Events[0].Kind)
	assert.Equal(t, "Discovery call", page.Events[0].PayloadString("title"))
	assert.Equal(t, "Opportunity|", page.NextCursor)

	// Final phase short page ends the feed.
	page, err = a.Fetch(ctx, page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Equal(t, model.KindDeal, page.Events[0].Kind)
	assert.Equal(t, "Closed Won", page.Events[0].PayloadString("status"))
	assert.Empty(t, page.NextCursor)
}

func TestSalesforceAdapter_MalformedCursor(t *testing.T) {
	a := NewSalesforceAdapter(&fakeSoql{})
	for _, cursor := range []string{"garbage", "Lead|003A"} {
		_, err := a.Fetch(context.Background(), cursor, 10)
		assert.Error(t, err)
	}
}

func TestKeysetSoql(t *testing.T) {
	soql := keysetSoql("Id, Name", "Contact", "", 50)
	assert.Equal(t, "SELECT Id, Name FROM Contact ORDER BY Id LIMIT 50", soql)

	soql = keysetSoql("Id", "Contact", "o'brien", 10)
	assert.Contains(t, soql, `WHERE Id > 'o\'brien'`)
}
