package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/attribution-engine/internal/model"
)

func newMockPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func TestPostgres_GetCheckpointDefaultsToIdle(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT cursor, processed_count, status").
		WithArgs("crm").
		WillReturnError(pgx.ErrNoRows)

	cp, err := st.GetCheckpoint(context.Background(), model.SourceCRM)
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointIdle, cp.Status)
	assert.Equal(t, model.SourceCRM, cp.Source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetCheckpointScansRow(t *testing.T) {
	st, mock := newMockPostgres(t)

	cursor := "page-4"
	runID := "run-1"
	attempt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT cursor, processed_count, status").
		WithArgs("scheduler").
		WillReturnRows(pgxmock.NewRows(
			[]string{"cursor", "processed_count", "status", "run_id", "last_attempt_at", "last_error"},
		).AddRow(&cursor, int64(31), "paused", &runID, &attempt, (*string)(nil)))

	cp, err := st.GetCheckpoint(context.Background(), model.SourceScheduler)
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointPaused, cp.Status)
	assert.Equal(t, "page-4", cp.Cursor)
	assert.EqualValues(t, 31, cp.ProcessedCount)
	assert.Equal(t, "run-1", cp.RunID)
	assert.Empty(t, cp.LastError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveCheckpointUpserts(t *testing.T) {
	st, mock := newMockPostgres(t)

	cp := &model.SyncCheckpoint{
		Source:         model.SourceForms,
		Cursor:         "cur-2",
		ProcessedCount: 10,
		Status:         model.CheckpointInProgress,
		RunID:          "run-7",
		LastAttemptAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	mock.ExpectExec("INSERT INTO sync_checkpoints").
		WithArgs("forms", "cur-2", int64(10), "in_progress", "run-7", cp.LastAttemptAt, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.SaveCheckpoint(context.Background(), cp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindBySourceIDMiss(t *testing.T) {
	st, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT contact_id FROM contact_source_ids").
		WithArgs("crm", "crm-404").
		WillReturnError(pgx.ErrNoRows)

	c, err := st.FindBySourceID(context.Background(), model.SourceCRM, "crm-404")
	require.NoError(t, err)
	assert.Nil(t, c)
	require.NoError(t, mock.ExpectationsWereMet())
}
