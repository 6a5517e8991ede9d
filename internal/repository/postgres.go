package repository

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pool is the subset of pgxpool.Pool the repository needs; pgxmock satisfies it too.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS reminders (
		id TEXT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		destination_id BIGINT NOT NULL,
		text TEXT NOT NULL,
		fire_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL,
		delivered_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reminders_owner_status ON reminders(owner_id, status, fire_at)`,
	`CREATE INDEX IF NOT EXISTS idx_reminders_status ON reminders(status)`,
}

const reminderColumns = `id, owner_id, destination_id, text, fire_at, status, created_at, delivered_at`

type PostgresRepository struct {
	db pool
}

func NewPostgresRepository(db pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return persistErr("migrate", err)
		}
	}
	return nil
}

func (r *PostgresRepository) Insert(ctx context.Context, nr models.NewReminder) (string, error) {
	id := uuid.NewString()

	query := `
	INSERT INTO reminders (id, owner_id, destination_id, text, fire_at, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, id, nr.OwnerID, nr.DestinationID, nr.Text, nr.FireAt, string(models.StatusPending), time.Now())
	if err != nil {
		return "", persistErr("insert", err)
	}
	return id, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Reminder, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)

	reminder, err := scanPostgresReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get", err)
	}
	return reminder, nil
}

func (r *PostgresRepository) ListPending(ctx context.Context, ownerID int64) ([]models.Reminder, error) {
	query := `
		SELECT ` + reminderColumns + `
		FROM reminders
		WHERE owner_id = $1 AND status = 'pending'
		ORDER BY fire_at ASC, created_at ASC
	`
	return r.list(ctx, "list pending", query, ownerID)
}

func (r *PostgresRepository) ListAllPending(ctx context.Context) ([]models.Reminder, error) {
	query := `
		SELECT ` + reminderColumns + `
		FROM reminders
		WHERE status = 'pending'
		ORDER BY fire_at ASC
	`
	return r.list(ctx, "list all pending", query)
}

func (r *PostgresRepository) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
	UPDATE reminders
	SET status = 'delivered', delivered_at = $2
	WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return false, persistErr("mark delivered", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return false, persistErr("delete", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) DeleteAllForOwner(ctx context.Context, ownerID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `DELETE FROM reminders WHERE owner_id = $1 AND status = 'pending' RETURNING id`, ownerID)
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

func (r *PostgresRepository) PurgeDelivered(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM reminders WHERE status = 'delivered' AND delivered_at < $1`, before)
	if err != nil {
		return 0, persistErr("purge delivered", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) list(ctx context.Context, op, query string, args ...any) ([]models.Reminder, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, persistErr(op, err)
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		reminder, err := scanPostgresReminder(rows)
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

func scanPostgresReminder(row scanner) (*models.Reminder, error) {
	var (
		reminder models.Reminder
		status   string
	)
	err := row.Scan(
		&reminder.ID, &reminder.OwnerID, &reminder.DestinationID, &reminder.Text,
		&reminder.FireAt, &status, &reminder.CreatedAt, &reminder.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}
	reminder.Status = models.Status(status)
	return &reminder, nil
}
