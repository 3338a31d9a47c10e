package util

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := NewID("job")

	require.True(t, strings.HasPrefix(id, "job_"))
	_, err := uuid.Parse(strings.TrimPrefix(id, "job_"))
	assert.NoError(t, err)
	assert.NotEqual(t, id, NewID("job"))
}

func TestNewSessionIDIsNeverReused(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewSessionID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate session id %s", id)
		seen[id] = struct{}{}
	}
}
