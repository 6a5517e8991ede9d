package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"remindbot/internal/models"

	"github.com/google/uuid"
)

// Times are stored as unix nanoseconds so ordering and equality survive the
// round trip regardless of the zone the caller used.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS reminders (
		id TEXT PRIMARY KEY,
		owner_id INTEGER NOT NULL,
		destination_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		fire_at INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		delivered_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reminders_owner_status ON reminders(owner_id, status, fire_at)`,
	`CREATE INDEX IF NOT EXISTS idx_reminders_status ON reminders(status)`,
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return persistErr("migrate", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, nr models.NewReminder) (string, error) {
	id := uuid.NewString()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reminders (id, owner_id, destination_id, text, fire_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, nr.OwnerID, nr.DestinationID, nr.Text, nr.FireAt.UnixNano(), string(models.StatusPending), time.Now().UnixNano())
	if err != nil {
		return "", persistErr("insert", err)
	}
	return id, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Reminder, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)

	reminder, err := scanSQLiteReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get", err)
	}
	return reminder, nil
}

func (r *SQLiteRepository) ListPending(ctx context.Context, ownerID int64) ([]models.Reminder, error) {
	return r.list(ctx, "list pending", `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE owner_id = ? AND status = 'pending'
		ORDER BY fire_at ASC, created_at ASC
	`, ownerID)
}

func (r *SQLiteRepository) ListAllPending(ctx context.Context) ([]models.Reminder, error) {
	return r.list(ctx, "list all pending", `
		SELECT `+reminderColumns+`
		FROM reminders
		WHERE status = 'pending'
		ORDER BY fire_at ASC
	`)
}

func (r *SQLiteRepository) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reminders
		SET status = 'delivered', delivered_at = ?
		WHERE id = ? AND status = 'pending'
	`, at.UnixNano(), id)
	if err != nil {
		return false, persistErr("mark delivered", err)
	}
	return affectedOne(res, "mark delivered")
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return false, persistErr("delete", err)
	}
	return affectedOne(res, "delete")
}

func (r *SQLiteRepository) DeleteAllForOwner(ctx context.Context, ownerID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `DELETE FROM reminders WHERE owner_id = ? AND status = 'pending' RETURNING id`, ownerID)
	if err != nil {
		return nil, persistErr("delete all", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, persistErr("delete all", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("delete all", err)
	}
	return ids, nil
}

func (r *SQLiteRepository) PurgeDelivered(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE status = 'delivered' AND delivered_at < ?`, before.UnixNano())
	if err != nil {
		return 0, persistErr("purge delivered", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistErr("purge delivered", err)
	}
	return n, nil
}

func (r *SQLiteRepository) list(ctx context.Context, op, query string, args ...any) ([]models.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		reminder, err := scanSQLiteReminder(rows)
		if err != nil {
			return nil, persistErr(op, err)
		}
		reminders = append(reminders, *reminder)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(op, err)
	}
	return reminders, nil
}

func affectedOne(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistErr(op, err)
	}
	return n == 1, nil
}

func scanSQLiteReminder(row scanner) (*models.Reminder, error) {
	var (
		reminder    models.Reminder
		status      string
		fireAt      int64
		createdAt   int64
		deliveredAt sql.NullInt64
	)
	err := row.Scan(
		&reminder.ID, &reminder.OwnerID, &reminder.DestinationID, &reminder.Text,
		&fireAt, &status, &createdAt, &deliveredAt,
	)
	if err != nil {
		return nil, err
	}

	reminder.Status = models.Status(status)
	reminder.FireAt = time.Unix(0, fireAt).UTC()
	reminder.CreatedAt = time.Unix(0, createdAt).UTC()
	if deliveredAt.Valid {
		t := time.Unix(0, deliveredAt.Int64).UTC()
		reminder.DeliveredAt = &t
	}
	return &reminder, nil
}
