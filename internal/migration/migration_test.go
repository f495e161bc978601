package migration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpStatementsPerDialect(t *testing.T) {
	for _, dialect := range []string{"postgres", "mysql", "sqlite"} {
		stmts, err := UpStatements(dialect)
		require.NoError(t, err, dialect)
		require.NotEmpty(t, stmts, dialect)

		joined := strings.Join(stmts, "\n")
		for _, table := range []string{"users", "tickets", "cable_receipts", "ledger_sources", "inventory_movements", "notifications", "audit_logs"} {
			assert.Contains(t, joined, "CREATE TABLE", dialect)
			assert.Contains(t, joined, table, dialect)
		}
	}
}

func TestUpStatementsUnknownDialect(t *testing.T) {
	_, err := UpStatements("oracle")
	assert.Error(t, err)
}
