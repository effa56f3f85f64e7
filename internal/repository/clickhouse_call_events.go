package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/scrum-callbot/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHCallEventsRepository stores lifecycle transitions in ClickHouse for reporting.
type CHCallEventsRepository interface {
	InsertBatch(ctx context.Context, events []model.CallEvent) error
	List(ctx context.Context, f CallEventFilter) ([]model.CallEvent, error)
}

type CallEventFilter struct {
	CallID string
	State  string
	Limit  int
	Offset int
}

type chCallEventsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHCallEventsRepository(ch *sqlx.DB) CHCallEventsRepository {
	return &chCallEventsRepository{ch: ch}
}

// InsertBatch writes all events in one ClickHouse block.
func (r *chCallEventsRepository) InsertBatch(ctx context.Context, events []model.CallEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO call_events (id, call_id, tenant_id, scenario_id, from_state, to_state, reason, occurred_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare call_events insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.ID, ev.CallID, ev.TenantID, ev.ScenarioID, ev.FromState, ev.ToState, ev.Reason, ev.OccurredAt,
		); err != nil {
			return fmt.Errorf("append call event %s: %w", ev.ID, err)
		}
	}

	return tx.Commit()
}

func (r *chCallEventsRepository) List(ctx context.Context, f CallEventFilter) ([]model.CallEvent, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := `
		SELECT id, call_id, tenant_id, scenario_id, from_state, to_state, reason, occurred_at
		FROM call_events
		WHERE 1 = 1
	`
	args := []any{}

	if f.CallID != "" {
		q += " AND call_id = ?"
		args = append(args, f.CallID)
	}
	if f.State != "" {
		q += " AND to_state = ?"
		args = append(args, f.State)
	}

	q += " ORDER BY occurred_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	var rows []model.CallEvent
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
