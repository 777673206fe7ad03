package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaCoversEveryEntity(t *testing.T) {
	stmts := Schema()
	require.Len(t, stmts, len(documentTables)+4)
	for i, table := range documentTables {
		assert.Contains(t, stmts[i], `"`+table+`"`)
		assert.Contains(t, stmts[i], "doc JSONB NOT NULL")
	}
	last := stmts[len(stmts)-1]
	assert.True(t, strings.HasPrefix(last, "CREATE TABLE IF NOT EXISTS "+CheckpointsTable))
}

func TestGetPoolConfigForComponent(t *testing.T) {
	for component, wantMax := range map[string]int32{"indexer": 20, "query": 30, "replay": 4, "other": 20} {
		t.Run(component, func(t *testing.T) {
			cfg := GetPoolConfigForComponent(component)
			assert.Equal(t, wantMax, cfg.MaxConns)
			assert.LessOrEqual(t, cfg.MinConns, cfg.MaxConns)
			assert.Equal(t, component, cfg.Component)
		})
	}
}
