package journal

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema bootstraps the journal table. The payload column keeps the full
// event body so new event fields never need an ALTER.
const schema = `
	CREATE TABLE IF NOT EXISTS ledger_events (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		credit_id BIGINT,
		actor TEXT NOT NULL,
		counterparty TEXT,
		project_id TEXT,
		payload JSONB NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_events_credit_id ON ledger_events (credit_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_events_kind ON ledger_events (kind);
	CREATE INDEX IF NOT EXISTS idx_ledger_events_occurred_at ON ledger_events (occurred_at);`

type Repository interface {
	Append(ctx context.Context, ev *LedgerEvent) error
	List(ctx context.Context, filter EventFilter) ([]LedgerEvent, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) (Repository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create ledger_events table: %w", err)
	}
	return &postgresRepository{db: db}, nil
}

func (r *postgresRepository) Append(ctx context.Context, ev *LedgerEvent) error {
	query := `
		INSERT INTO ledger_events (
			id, kind, credit_id, actor, counterparty, project_id, payload, occurred_at
		) VALUES (
			:id, :kind, :credit_id, :actor, :counterparty, :project_id, :payload, :occurred_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, ev)
	return err
}

func (r *postgresRepository) List(ctx context.Context, filter EventFilter) ([]LedgerEvent, error) {
	query, args := listQuery(filter)
	var events []LedgerEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list ledger events: %w", err)
	}
	return events, nil
}

func listQuery(filter EventFilter) (string, []interface{}) {
	query := "SELECT * FROM ledger_events WHERE 1=1"
	args := []interface{}{}

	if filter.CreditID != nil {
		args = append(args, *filter.CreditID)
		query += fmt.Sprintf(" AND credit_id = $%d", len(args))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		query += fmt.Sprintf(" AND occurred_at < $%d", len(args))
	}

	query += " ORDER BY occurred_at ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}
