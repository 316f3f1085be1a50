package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"safecircle/internal/escalation/models"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/sentinel"
	"safecircle/pkg/platform/tx"
)

// PostgresStore persists escalations as JSONB documents with a version
// column for optimistic concurrency. Subscriptions are process local.
type PostgresStore struct {
	subscriptions

	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		subscriptions: newSubscriptions(),
		db:            db,
	}
}

func (s *PostgresStore) GetByID(ctx context.Context, escalationID id.EscalationID) (*models.EscalationEvent, error) {
	var body []byte
	err := tx.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT body FROM escalations WHERE id = $1`, escalationID.String(),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("escalation %s: %w", escalationID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get escalation: %w", err)
	}
	return decode(body)
}

func (s *PostgresStore) Save(ctx context.Context, event *models.EscalationEvent) error {
	stored := event.Clone()
	stored.Version = event.Version + 1
	body, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode escalation: %w", err)
	}
	responderIDs := make([]string, 0, len(stored.Responders))
	for _, u := range stored.ResponderUserIDs() {
		responderIDs = append(responderIDs, u.String())
	}

	q := tx.Executor(ctx, s.db)
	var res sql.Result
	if event.Version == 0 {
		res, err = q.ExecContext(ctx, `
			INSERT INTO escalations (id, version, created_by, current_owner, status, current_level, responder_ids, body, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING`,
			stored.ID.String(), stored.Version, stored.CreatedBy.String(), stored.CurrentOwner.String(),
			string(stored.Status), int(stored.CurrentLevel), pq.Array(responderIDs), body, stored.UpdatedAt,
		)
	} else {
		res, err = q.ExecContext(ctx, `
			UPDATE escalations
			SET version = $2, current_owner = $3, status = $4, current_level = $5,
			    responder_ids = $6, body = $7, updated_at = $8
			WHERE id = $1 AND version = $9`,
			stored.ID.String(), stored.Version, stored.CurrentOwner.String(), string(stored.Status),
			int(stored.CurrentLevel), pq.Array(responderIDs), body, stored.UpdatedAt, event.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("save escalation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save escalation: %w", err)
	}
	if n == 0 {
		return s.saveMiss(ctx, event)
	}

	event.Version = stored.Version
	s.publish(stored)
	return nil
}

// saveMiss explains why a conditional write touched no rows.
func (s *PostgresStore) saveMiss(ctx context.Context, event *models.EscalationEvent) error {
	var current int64
	err := tx.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT version FROM escalations WHERE id = $1`, event.ID.String(),
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("escalation %s: %w", event.ID, sentinel.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("save escalation: %w", err)
	}
	return fmt.Errorf("escalation %s at version %d, saw %d: %w", event.ID, current, event.Version, sentinel.ErrConflict)
}

func (s *PostgresStore) ListInvolvingUser(ctx context.Context, userID id.UserID) ([]*models.EscalationEvent, error) {
	rows, err := tx.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT body FROM escalations
		WHERE created_by = $1 OR current_owner = $1 OR $1 = ANY(responder_ids)
		ORDER BY (body->>'created_at')::timestamptz ASC, id ASC`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	var out []*models.EscalationEvent
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		e, err := decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func decode(body []byte) (*models.EscalationEvent, error) {
	var e models.EscalationEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("decode escalation: %w", err)
	}
	return &e, nil
}
