package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content_draft_generator/generator"
)

func TestMemoryExpiresSessions(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, m.Save(ctx, generator.NewSession("a", generator.ArticlePipeline, nil)))
	assert.Equal(t, 1, m.Len())

	now = now.Add(2 * time.Minute)
	_, err := m.Load(ctx, "a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, m.Len())
}
