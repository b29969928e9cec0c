package repository

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sengine/internal/models"
)

var scheduledCols = []string{
	"id", "user_id", "workspace_id", "contact_id", "drip_id", "campaign_id", "drip_contact_id",
	"from_number", "to_number", "body", "media_url", "scheduled_at", "status", "retry_count",
	"queued_at", "sent_at", "error_message", "message_id", "provider_message_id",
	"created_at", "updated_at",
}

func scheduledRow(id int64, status models.ScheduledMessageStatus, scheduledAt time.Time) []driver.Value {
	now := scheduledAt.Add(-time.Hour)
	return []driver.Value{
		id, int64(3), int64(4), int64(5), int64(6), int64(1), id + 100,
		nil, "+15551234567", "Hi [first]", nil, scheduledAt, string(status), 0,
		nil, nil, nil, nil, nil,
		now, now,
	}
}

func TestScheduledMessageRepository_GetByID(t *testing.T) {
	pools, mock := newMockPools(t)
	repo := NewScheduledMessageRepository(pools)
	at := time.Now().UTC().Add(time.Minute)

	mock.ExpectQuery(`(?s)SELECT .+ FROM scheduled_messages WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(scheduledCols).AddRow(scheduledRow(9, models.ScheduledStatusPending, at)...))

	m, err := repo.GetByID(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), m.ID)
	assert.Equal(t, int64(109), m.DripContactID)
	assert.Equal(t, models.ScheduledStatusPending, m.Status)
	assert.Nil(t, m.ProviderMessageID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledMessageRepository_GetByID_NotFound(t *testing.T) {
	pools, mock := newMockPools(t)
	repo := NewScheduledMessageRepository(pools)

	mock.ExpectQuery(`(?s)SELECT .+ FROM scheduled_messages WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(scheduledCols))

	_, err := repo.GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScheduledMessageRepository_GetDue(t *testing.T) {
	pools, mock := newMockPools(t)
	repo := NewScheduledMessageRepository(pools)
	before := time.Now().UTC().Add(5 * time.Minute)

	rows := sqlmock.NewRows(scheduledCols).
		AddRow(scheduledRow(1, models.ScheduledStatusPending, before.Add(-10*time.Minute))...).
		AddRow(scheduledRow(2, models.ScheduledStatusPending, before.Add(-time.Minute))...)

	mock.ExpectQuery(`(?s)SELECT .+ FROM scheduled_messages\s+WHERE status = \$1 AND scheduled_at <= \$2\s+ORDER BY scheduled_at ASC\s+LIMIT \$3`).
		WithArgs(models.ScheduledStatusPending, before, 500).
		WillReturnRows(rows)

	due, err := repo.GetDue(context.Background(), before, 500)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, int64(1), due[0].ID)
	assert.Equal(t, int64(2), due[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledMessageRepository_GetDue_Empty(t *testing.T) {
	pools, mock := newMockPools(t)
	repo := NewScheduledMessageRepository(pools)
	before := time.Now().UTC()

	mock.ExpectQuery(`(?s)SELECT .+ FROM scheduled_messages`).
		WillReturnRows(sqlmock.NewRows(scheduledCols))

	due, err := repo.GetDue(context.Background(), before, 100)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestScheduledMessageRepository_MarkQueued(t *testing.T) {
	pools, mock := newMockPools(t)
	repo := NewScheduledMessageRepository(pools)
	at := time.Now().UTC()
	ids := []int64{1, 2, 3}

	// One of the three rows was cancelled in parallel and stays untouched.
	mock.ExpectExec(`UPDATE scheduled_messages\s+SET status = \$1, queued_at = \$2, updated_at = NOW\(\)\s+WHERE id = ANY\(\$3\) AND status = \$4`).
		WithArgs(models.ScheduledStatusQueued, at, pq.Array(ids), models.ScheduledStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 2))

	updated, err := repo.MarkQueued(context.Background(), ids, at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledMessageRepository_MarkQueued_EmptyIDs(t *testing.T) {
	pools, mock := newMockPools(t)
	repo := NewScheduledMessageRepository(pools)

	updated, err := repo.MarkQueued(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledMessageRepository_MarkSent(t *testing.T) {
	pools, mock := newMockPools(t)
	repo := NewScheduledMessageRepository(pools)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE scheduled_messages\s+SET status = \$1, sent_at = \$2, message_id = \$3, provider_message_id = \$4`).
		WithArgs(models.ScheduledStatusSent, at, int64(55), "SM123", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkSent(context.Background(), 9, 55, "SM123", at)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledMessageRepository_MarkSent_MissingRow(t *testing.T) {
	pools, mock := newMockPools(t)
	repo := NewScheduledMessageRepository(pools)

	mock.ExpectExec(`UPDATE scheduled_messages`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkSent(context.Background(), 9, 55, "SM123", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScheduledMessageRepository_SetProviderMessageID(t *testing.T) {
	pools, mock := newMockPools(t)
	repo := NewScheduledMessageRepository(pools)

	mock.ExpectExec(`UPDATE scheduled_messages\s+SET provider_message_id = \$1, updated_at = NOW\(\)\s+WHERE id = \$2`).
		WithArgs("SM123", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetProviderMessageID(context.Background(), 9, "SM123")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledMessageRepository_MarkFailed(t *testing.T) {
	pools, mock := newMockPools(t)
	repo := NewScheduledMessageRepository(pools)

	mock.ExpectExec(`UPDATE scheduled_messages\s+SET status = \$1, error_message = \$2, retry_count = retry_count \+ 1`).
		WithArgs(models.ScheduledStatusFailed, "Insufficient credits", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkFailed(context.Background(), 9, "Insufficient credits")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
