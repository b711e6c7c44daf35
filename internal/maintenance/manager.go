package maintenance

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"krishimitra/carbon-registry/registry-backend/internal/ledger"
)

// SweepManager periodically deactivates sale offers whose expiry has passed.
// This is advisory housekeeping for indexers and UIs: the ledger refuses to
// sell an expired offer regardless of whether the sweep ran.
type SweepManager struct {
	cron    *cron.Cron
	ledger  *ledger.Ledger
	logger  *zap.Logger
	entryID cron.EntryID
}

func NewSweepManager(l *ledger.Ledger, logger *zap.Logger) *SweepManager {
	return &SweepManager{
		cron:   cron.New(),
		ledger: l,
		logger: logger,
	}
}

// Start schedules the sweep at the given interval.
func (m *SweepManager) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	spec := fmt.Sprintf("@every %s", interval)
	id, err := m.cron.AddFunc(spec, m.sweep)
	if err != nil {
		return fmt.Errorf("failed to schedule listing sweep: %w", err)
	}
	m.entryID = id
	m.cron.Start()
	m.logger.Info("listing sweep scheduled", zap.Duration("interval", interval))
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish.
func (m *SweepManager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

func (m *SweepManager) sweep() {
	expired := m.ledger.ExpireListings()
	if len(expired) > 0 {
		m.logger.Info("expired listings deactivated", zap.Int("count", len(expired)))
	}
}
