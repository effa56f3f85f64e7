package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatements(t *testing.T) {
	mysql, err := Statements("mysql")
	require.NoError(t, err)
	require.Len(t, mysql, 1)
	assert.True(t, strings.HasPrefix(mysql[0], "CREATE TABLE IF NOT EXISTS Employee"))

	ch, err := Statements("clickhouse")
	require.NoError(t, err)
	require.Len(t, ch, 1)
	assert.Contains(t, ch[0], "call_events")
}
