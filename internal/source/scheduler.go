package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/attribution-engine/internal/model"
)

// SchedulerAdapter pulls scheduled-meeting records from the booking
// platform's REST API, which paginates with an opaque page token.
type SchedulerAdapter struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewSchedulerAdapter creates a scheduler adapter for the given API base
// URL and bearer token.
func NewSchedulerAdapter(baseURL, token string, rps float64) *SchedulerAdapter {
	a := &SchedulerAdapter{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
	if rps > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
	return a
}

func (a *SchedulerAdapter) Source() model.Source { return model.SourceScheduler }

// schedulerEvent is the wire shape of one booked meeting.
type schedulerEvent struct {
	ID           string `json:"id"`
	EventName    string `json:"event_name"`
	StartTime    string `json:"start_time"`
	InviteeName  string `json:"invitee_name"`
	InviteeEmail string `json:"invitee_email"`
	InviteePhone string `json:"invitee_phone"`
}

type schedulerPage struct {
	Events     []schedulerEvent `json:"events"`
	NextCursor string           `json:"next_page_token"`
}

// Fetch returns the next page of booked meetings.
func (a *SchedulerAdapter) Fetch(ctx context.Context, cursor string, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 100
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "scheduler: rate limit")
		}
	}

	q := url.Values{"count": {fmt.Sprint(limit)}}
	if cursor != "" {
		q.Set("page_token", cursor)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/scheduled_events?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: build request")
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: fetch page")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, NewTransientError(eris.Errorf("scheduler: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("scheduler: status %d", resp.StatusCode)
	}

	var body schedulerPage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, eris.Wrap(err, "scheduler: decode page")
	}

	page := &Page{
		Events:     make([]model.RawEvent, 0, len(body.Events)),
		NextCursor: body.NextCursor,
	}
	for _, e := range body.Events {
		if e.ID == "" {
			continue
		}
		page.Events = append(page.Events, model.RawEvent{
			Source:     model.SourceScheduler,
			ExternalID: e.ID,
			Kind:       model.KindMeeting,
			Payload: map[string]any{
				"title":         e.EventName,
				"start_time":    e.StartTime,
				"invitee_name":  e.InviteeName,
				"invitee_email": e.InviteeEmail,
				"phone":         e.InviteePhone,
			},
			ObservedAt: a.now().UTC(),
		})
	}
	return page, nil
}
