package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"krishimitra/carbon-registry/registry-backend/internal/ledger"
)

const eventIndex = "ledger-events"

// Indexer mirrors domain events into Elasticsearch so external consumers can
// search over project, location and methodology fields. Like the journal it
// is fire-and-forget: indexing failures are logged, never surfaced.
type Indexer struct {
	client  *elasticsearch.Client
	logger  *zap.Logger
	timeout time.Duration
}

func NewIndexer(addresses []string, logger *zap.Logger) (*Indexer, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Indexer{
		client:  client,
		logger:  logger,
		timeout: 5 * time.Second,
	}, nil
}

// Publish indexes the event document keyed by its event id.
func (i *Indexer) Publish(ev ledger.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		i.logger.Error("failed to encode event for indexing", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	res, err := i.client.Index(eventIndex, bytes.NewReader(body),
		i.client.Index.WithDocumentID(ev.ID.String()),
		i.client.Index.WithContext(ctx),
	)
	if err != nil {
		i.logger.Error("failed to index ledger event",
			zap.String("event_id", ev.ID.String()),
			zap.Error(err))
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		i.logger.Error("elasticsearch rejected ledger event",
			zap.String("event_id", ev.ID.String()),
			zap.String("status", res.Status()))
	}
}
