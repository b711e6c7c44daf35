package journal

import (
	"database/sql"
	"encoding/json"
	"time"
)

// LedgerEvent is the append-only row persisted for every domain event. The
// full event body is kept as JSON so new event fields never need a migration;
// the extracted columns exist for indexed queries.
type LedgerEvent struct {
	ID           string          `db:"id" json:"id"`
	Kind         string          `db:"kind" json:"kind"`
	CreditID     sql.NullInt64   `db:"credit_id" json:"credit_id,omitempty"`
	Actor        string          `db:"actor" json:"actor"`
	Counterparty sql.NullString  `db:"counterparty" json:"counterparty,omitempty"`
	ProjectID    sql.NullString  `db:"project_id" json:"project_id,omitempty"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	OccurredAt   time.Time       `db:"occurred_at" json:"occurred_at"`
}

// EventFilter narrows List queries. Zero values mean "no constraint".
type EventFilter struct {
	CreditID *int64
	Kind     string
	Since    time.Time
	Until    time.Time
	Limit    int
}
