package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "safecircle/pkg/domain"
	audit "safecircle/pkg/platform/audit"
	"safecircle/pkg/platform/tx"
)

// Store implements audit.Store on the audit_events table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an event. Category is always derived from the action so the
// mapping in the audit package stays the source of truth.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := audit.AuditEvent(event.Action).Category()
	var userID sql.NullString
	if !event.UserID.IsNil() {
		userID = sql.NullString{String: event.UserID.String(), Valid: true}
	}
	query := `
		INSERT INTO audit_events (
			id, category, occurred_at, user_id, escalation_id, subject,
			action, decision, reason, request_id, client_ip, user_agent, actor_id
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := tx.Executor(ctx, s.db).ExecContext(ctx, query,
		uuid.New(),
		string(category),
		event.Timestamp,
		userID,
		event.EscalationID,
		event.Subject,
		event.Action,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.ClientIP,
		event.UserAgent,
		event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	return s.list(ctx, `WHERE user_id = $1`, userID.String())
}

func (s *Store) ListByEscalation(ctx context.Context, escalationID string) ([]audit.Event, error) {
	return s.list(ctx, `WHERE escalation_id = $1`, escalationID)
}

func (s *Store) list(ctx context.Context, where string, arg any) ([]audit.Event, error) {
	query := `
		SELECT category, occurred_at, COALESCE(user_id::text, ''), COALESCE(escalation_id, ''),
		       subject, action, decision, reason, request_id, client_ip, user_agent, actor_id
		FROM audit_events ` + where + `
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			category string
			userID   string
		)
		if err := rows.Scan(&category, &e.Timestamp, &userID, &e.EscalationID,
			&e.Subject, &e.Action, &e.Decision, &e.Reason, &e.RequestID, &e.ClientIP, &e.UserAgent, &e.ActorID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		if userID != "" {
			if u, err := uuid.Parse(userID); err == nil {
				e.UserID = id.UserID(u)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
