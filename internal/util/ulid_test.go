package util

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAtIsSortableWithinMillisecond(t *testing.T) {
	at := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	a, b := NewAt(at), NewAt(at)

	assert.Less(t, a, b)
	id, err := ulid.ParseStrict(a)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(at), id.Time())
}
