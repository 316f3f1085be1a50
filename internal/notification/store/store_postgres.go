package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"safecircle/internal/notification/models"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/sentinel"
	"safecircle/pkg/platform/tx"
)

// PostgresStore keeps each record as a JSONB document with the columns
// needed for lookups promoted alongside it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, r *models.Record) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	res, err := tx.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO notification_records
			(id, user_id, escalation_id, type, priority, dedup_key, body, has_failure, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING`,
		r.ID.String(), r.UserID.String(), r.EscalationID.String(), string(r.Type), int(r.Priority),
		r.DedupKey, body, r.HasFailure(), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", r.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, notificationID id.NotificationID) (*models.Record, error) {
	return s.getOne(ctx, `SELECT body FROM notification_records WHERE id = $1`, notificationID.String())
}

func (s *PostgresStore) GetByDedupKey(ctx context.Context, key string) (*models.Record, error) {
	return s.getOne(ctx, `SELECT body FROM notification_records WHERE dedup_key = $1`, key)
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg string) (*models.Record, error) {
	var body []byte
	err := tx.Executor(ctx, s.db).QueryRowContext(ctx, query, arg).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", arg, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return decode(body)
}

func (s *PostgresStore) Update(ctx context.Context, notificationID id.NotificationID, fn func(*models.Record) error) (*models.Record, error) {
	var updated *models.Record
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		q := tx.Executor(ctx, s.db)
		var body []byte
		err := q.QueryRowContext(ctx,
			`SELECT body FROM notification_records WHERE id = $1 FOR UPDATE`, notificationID.String(),
		).Scan(&body)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("notification %s: %w", notificationID, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get notification: %w", err)
		}
		r, err := decode(body)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
		body, err = json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode notification: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			UPDATE notification_records SET body = $2, has_failure = $3, updated_at = $4 WHERE id = $1`,
			notificationID.String(), body, r.HasFailure(), r.UpdatedAt,
		); err != nil {
			return fmt.Errorf("update notification: %w", err)
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID, limit int) ([]*models.Record, error) {
	return s.list(ctx, `
		SELECT body FROM notification_records
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID.String(), sqlLimit(limit))
}

func (s *PostgresStore) ListFailed(ctx context.Context, limit int) ([]*models.Record, error) {
	return s.list(ctx, `
		SELECT body FROM notification_records
		WHERE has_failure
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, sqlLimit(limit))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Record, error) {
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		r, err := decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// sqlLimit maps "no limit" to NULL, which LIMIT treats as unbounded.
func sqlLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func decode(body []byte) (*models.Record, error) {
	var r models.Record
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &r, nil
}
