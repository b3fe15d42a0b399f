package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pos-agent/pkg/redis"
)

func TestDeduperMarksOnce(t *testing.T) {
	d, err := NewDeduper(redis.NewMemoryStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	id := uuid.New()

	seen, err := d.CheckAndMark(ctx, "till-1", id)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = d.CheckAndMark(ctx, "till-1", id)
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = d.CheckAndMark(ctx, "till-2", id)
	require.NoError(t, err)
	assert.False(t, seen, "marks are scoped per terminal")

	require.NoError(t, d.Forget(ctx, "till-1", id))
	seen, err = d.CheckAndMark(ctx, "till-1", id)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestDeduperRejectsMissingIDs(t *testing.T) {
	d, err := NewDeduper(redis.NewMemoryStore(), 0)
	require.NoError(t, err)

	_, err = d.CheckAndMark(context.Background(), "till-1", uuid.Nil)
	assert.Error(t, err)
	_, err = d.CheckAndMark(context.Background(), "", uuid.New())
	assert.Error(t, err)

	_, err = NewDeduper(nil, time.Hour)
	assert.Error(t, err)
}
