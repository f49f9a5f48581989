package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-engine/internal/model"
)

func TestSchedulerAdapter_PageFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scheduled_events", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("count"))

		var body schedulerPage
		switch r.URL.Query().Get("page_token") {
		case "":
			body = schedulerPage{
				Events: []schedulerEvent{
					{ID: "ev1", EventName: "Intro Call", StartTime: "2026-04-02T10:00:00Z", InviteeName: "Alice Zhang", InviteeEmail: "alice@example.com"},
					{ID: "ev2", EventName: "Solution Review", StartTime: "2026-04-09T10:00:00Z", InviteeEmail: "alice@example.com"},
				},
				NextCursor: "tok-2",
			}
		case "tok-2":
			body = schedulerPage{
				Events: []schedulerEvent{
					{ID: "ev3", EventName: "Next Step Planning", StartTime: "2026-04-16T10:00:00Z", InviteeEmail: "alice@example.com"},
					{EventName: "ghost row without id"},
				},
			}
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("page_token"))
		}
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	defer srv.Close()

	ctx := context.Background()
	a := NewSchedulerAdapter(srv.URL, "test-token", 0)

	page, err := a.Fetch(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "tok-2", page.NextCursor)
	assert.Equal(t, model.SourceScheduler, page.Events[0].Source)
	assert.Equal(t, model.KindMeeting, page.Events[0].Kind)
	assert.Equal(t, "ev1", page.Events[0].ExternalID)
	assert.Equal(t, "Intro Call", page.Events[0].PayloadString("title"))
	assert.Equal(t, "alice@example.com", page.Events[0].PayloadString("invitee_email"))

	page, err = a.Fetch(ctx, "tok-2", 2)
	require.NoError(t, err)
	// Rows without an id are dropped on decode.
	require.Len(t, page.Events, 1)
	assert.Equal(t, "ev3", page.Events[0].ExternalID)
	assert.Empty(t, page.NextCursor)
}

func TestSchedulerAdapter_StatusCodes(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	a := NewSchedulerAdapter(srv.URL, "tok", 0)

	_, err := a.Fetch(context.Background(), "", 10)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	status = http.StatusBadGateway
	_, err = a.Fetch(context.Background(), "", 10)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	status = http.StatusUnauthorized
	_, err = a.Fetch(context.Background(), "", 10)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}
