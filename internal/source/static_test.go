package source

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/attribution-engine/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func staticEvents(n int) []model.RawEvent {
	out := make([]model.RawEvent, n)
	for i := range out {
		out[i] = model.RawEvent{
			Source:     model.SourceCRM,
			ExternalID: fmt.Sprintf("e%d", i),
			Kind:       model.KindContact,
			ObservedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	return out
}

func TestStaticAdapter_Pagination(t *testing.T) {
	ctx := context.Background()
	a := NewStaticAdapter(model.SourceCRM, staticEvents(5))

	page, err := a.Fetch(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
	assert.Equal(t, "e0", page.Events[0].ExternalID)
	assert.Equal(t, "2", page.NextCursor)

	page, err = a.Fetch(ctx, page.NextCursor, 2)
	require.NoError(t, err)
	assert.Equal(t, "e2", page.Events[0].ExternalID)
	assert.Equal(t, "4", page.NextCursor)

	// Final partial page exhausts the cursor.
	page, err = a.Fetch(ctx, page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.Empty(t, page.NextCursor)

	// Fetching past the end is an empty completed page, not an error.
	page, err = a.Fetch(ctx, "5", 2)
	require.NoError(t, err)
	assert.Empty(t, page.Events)
	assert.Empty(t, page.NextCursor)
}

func TestStaticAdapter_MalformedCursor(t *testing.T) {
	a := NewStaticAdapter(model.SourceCRM, staticEvents(1))
	for _, cursor := range []string{"abc", "-1"} {
		_, err := a.Fetch(context.Background(), cursor, 10)
		assert.Error(t, err)
	}
}

func TestWithRetries_RecoversTransient(t *testing.T) {
	a := NewStaticAdapter(model.SourceCRM, staticEvents(3))
	a.FailAt = 0

	page, err := WithRetries(a, 3, time.Millisecond).Fetch(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Events, 3)
}

func TestWithRetries_ExhaustsAttempts(t *testing.T) {
	inner := &alwaysFailing{transient: true}
	_, err := WithRetries(inner, 3, time.Millisecond).Fetch(context.Background(), "", 10)
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
	assert.True(t, IsTransient(err))
}

func TestWithRetries_PermanentPassesThrough(t *testing.T) {
	inner := &alwaysFailing{}
	_, err := WithRetries(inner, 3, time.Millisecond).Fetch(context.Background(), "", 10)
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

type alwaysFailing struct {
	transient bool
	calls     int
}

func (a *alwaysFailing) Source() model.Source { return model.SourceCRM }

func (a *alwaysFailing) Fetch(context.Context, string, int) (*Page, error) {
	a.calls++
	err := fmt.Errorf("upstream rejected the request")
	if a.transient {
		return nil, NewTransientError(err, 503)
	}
	return nil, err
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(fmt.Errorf("bad credentials")))
	assert.True(t, IsTransient(NewTransientError(fmt.Errorf("slow down"), 429)))
	assert.True(t, IsTransient(fmt.Errorf("read tcp: connection reset by peer")))
	assert.True(t, IsTransient(fmt.Errorf("dial tcp: i/o timeout")))
}
