// Package audit keeps an append-only trail of protocol events: activations,
// deactivations, and check-in outcomes. Events are published to the queue on
// the request path and persisted by the worker.
package audit

import (
	"context"
	"database/sql"
	"log"
	"time"

	"presence/internal/queue"
)

// Event is one recorded protocol event.
type Event struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	SessionID  *int64    `json:"session_id,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Repository persists audit events in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends one event.
func (r *Repository) Insert(ctx context.Context, evt Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (kind, session_id, actor, detail, occurred_at)
		VALUES ($1, NULLIF($2, 0), NULLIF($3, ''), NULLIF($4, ''), $5)
	`, evt.Kind, derefID(evt.SessionID), evt.Actor, evt.Detail, evt.OccurredAt)
	return err
}

// List returns the most recent events, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, session_id, COALESCE(actor, ''), COALESCE(detail, ''), occurred_at
		FROM audit_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.Kind, &evt.SessionID, &evt.Actor, &evt.Detail, &evt.OccurredAt); err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

// Publisher forwards protocol events to the queue. It satisfies the
// checkin service's Recorder and never fails the request path: a publish
// error is logged and dropped.
type Publisher struct {
	q queue.Queue
}

// NewPublisher wraps a queue.
func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// Record publishes one event.
func (p *Publisher) Record(ctx context.Context, kind string, sessionID int64, actor, detail string) {
	msg := queue.Message{
		Kind:      kind,
		SessionID: sessionID,
		Actor:     actor,
		Detail:    detail,
		At:        time.Now().UTC(),
	}
	if err := p.q.Publish(ctx, msg); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
