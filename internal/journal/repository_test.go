package journal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListQueryNoFilter(t *testing.T) {
	query, args := listQuery(EventFilter{})

	assert.Equal(t, "SELECT * FROM ledger_events WHERE 1=1 ORDER BY occurred_at ASC", query)
	assert.Empty(t, args)
}

func TestListQueryAllFilters(t *testing.T) {
	creditID := int64(7)
	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	query, args := listQuery(EventFilter{
		CreditID: &creditID,
		Kind:     "credit.sold",
		Since:    since,
		Until:    until,
		Limit:    50,
	})

	assert.Contains(t, query, "credit_id = $1")
	assert.Contains(t, query, "kind = $2")
	assert.Contains(t, query, "occurred_at >= $3")
	assert.Contains(t, query, "occurred_at < $4")
	assert.Contains(t, query, "LIMIT $5")
	require.Len(t, args, 5)
	assert.Equal(t, []interface{}{creditID, "credit.sold", since, until, 50}, args)
}

func TestListQueryPlaceholdersStaySequential(t *testing.T) {
	// Skipping a filter must not leave a gap in the placeholder numbering.
	query, args := listQuery(EventFilter{Kind: "credit.minted", Limit: 10})

	assert.Contains(t, query, "kind = $1")
	assert.Contains(t, query, "LIMIT $2")
	assert.NotContains(t, query, "$3")
	assert.Equal(t, []interface{}{"credit.minted", 10}, args)
}

func TestSchemaCreatesJournalTable(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS ledger_events")
	for _, column := range []string{"id", "kind", "credit_id", "actor", "counterparty", "project_id", "payload", "occurred_at"} {
		assert.True(t, strings.Contains(schema, column), "schema missing column %s", column)
	}
}
