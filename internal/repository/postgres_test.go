package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"remindbot/internal/models"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reminderColumnNames = []string{"id", "owner_id", "destination_id", "text", "fire_at", "status", "created_at", "delivered_at"}

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRepository(mock), mock
}

func TestPostgresMigrate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS reminders").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_reminders_owner_status").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_reminders_status").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, repo.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	fireAt := time.Date(2030, time.January, 2, 3, 4, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO reminders").
		WithArgs(pgxmock.AnyArg(), int64(11), int64(22), "call mom", fireAt, "pending", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := repo.Insert(context.Background(), models.NewReminder{
		OwnerID:       11,
		DestinationID: 22,
		Text:          "call mom",
		FireAt:        fireAt,
	})
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertFailureIsPersistenceError(t *testing.T) {
	repo, mock := newMockRepo(t)

	connReset := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO reminders").
		WithArgs(pgxmock.AnyArg(), int64(1), int64(1), "x", pgxmock.AnyArg(), "pending", pgxmock.AnyArg()).
		WillReturnError(connReset)

	_, err := repo.Insert(context.Background(), models.NewReminder{OwnerID: 1, DestinationID: 1, Text: "x", FireAt: time.Now()})

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "insert", perr.Op)
	assert.Same(t, connReset, errors.Unwrap(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet(t *testing.T) {
	repo, mock := newMockRepo(t)
	fireAt := time.Date(2030, time.January, 2, 3, 4, 0, 0, time.UTC)
	createdAt := fireAt.Add(-time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM reminders WHERE id").
		WithArgs("r-1").
		WillReturnRows(pgxmock.NewRows(reminderColumnNames).
			AddRow("r-1", int64(11), int64(22), "call mom", fireAt, "pending", createdAt, (*time.Time)(nil)))

	got, err := repo.Get(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "r-1", got.ID)
	assert.Equal(t, int64(11), got.OwnerID)
	assert.Equal(t, int64(22), got.DestinationID)
	assert.Equal(t, fireAt, got.FireAt)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.DeliveredAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM reminders WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListPending(t *testing.T) {
	repo, mock := newMockRepo(t)
	base := time.Date(2030, time.January, 2, 3, 4, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE owner_id = (.+) AND status = 'pending'").
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows(reminderColumnNames).
			AddRow("a", int64(11), int64(22), "first", base, "pending", base, (*time.Time)(nil)).
			AddRow("b", int64(11), int64(22), "second", base.Add(time.Hour), "pending", base, (*time.Time)(nil)))

	list, err := repo.ListPending(context.Background(), 11)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkDelivered(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2030, time.January, 2, 3, 4, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE reminders").WithArgs("r-1", at).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE reminders").WithArgs("r-1", at).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.MarkDelivered(context.Background(), "r-1", at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkDelivered(context.Background(), "r-1", at)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteAllForOwner(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("DELETE FROM reminders WHERE owner_id (.+) RETURNING id").
		WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := repo.DeleteAllForOwner(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteAndPurge(t *testing.T) {
	repo, mock := newMockRepo(t)
	before := time.Date(2030, time.January, 2, 3, 4, 0, 0, time.UTC)

	mock.ExpectExec("DELETE FROM reminders WHERE id").WithArgs("r-1").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM reminders WHERE status = 'delivered'").WithArgs(before).WillReturnResult(pgxmock.NewResult("DELETE", 3))

	ok, err := repo.Delete(context.Background(), "r-1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := repo.PurgeDelivered(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
