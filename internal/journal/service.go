package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"krishimitra/carbon-registry/registry-backend/internal/ledger"
)

// Service persists every committed domain event. It implements ledger.Sink;
// a write failure is logged and never propagated back into the ledger (the
// operation already committed).
type Service struct {
	repo    Repository
	logger  *zap.Logger
	timeout time.Duration
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Publish appends the event to the journal.
func (s *Service) Publish(ev ledger.Event) {
	row, err := rowFromEvent(ev)
	if err != nil {
		s.logger.Error("failed to encode ledger event",
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.repo.Append(ctx, row); err != nil {
		s.logger.Error("failed to journal ledger event",
			zap.String("kind", string(ev.Kind)),
			zap.String("event_id", ev.ID.String()),
			zap.Error(err))
	}
}

// Events queries the journal for external indexers.
func (s *Service) Events(ctx context.Context, filter EventFilter) ([]LedgerEvent, error) {
	return s.repo.List(ctx, filter)
}

func rowFromEvent(ev ledger.Event) (*LedgerEvent, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	row := &LedgerEvent{
		ID:         ev.ID.String(),
		Kind:       string(ev.Kind),
		Actor:      string(ev.Actor),
		Payload:    payload,
		OccurredAt: ev.OccurredAt,
	}
	if ev.CreditID != nil {
		row.CreditID = sql.NullInt64{Int64: int64(*ev.CreditID), Valid: true}
	}
	if ev.Counterparty != "" {
		row.Counterparty = sql.NullString{String: string(ev.Counterparty), Valid: true}
	}
	if ev.ProjectID != "" {
		row.ProjectID = sql.NullString{String: ev.ProjectID, Valid: true}
	}
	return row, nil
}
