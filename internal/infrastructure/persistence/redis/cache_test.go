package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyBuilders_NamespaceByLeaderboard(t *testing.T) {
	assert.Equal(t, "leaderboard:hint:lb-1", HintKey("lb-1"))
	assert.Equal(t, "leaderboard:top:lb-1", TopKey("lb-1"))
	assert.Equal(t, "pubsub:leaderboard.updated", PubSubChannel("leaderboard.updated"))
}

func TestCache_SetRejectsUnserializableValues(t *testing.T) {
	c := &Cache{}

	err := c.Set(context.Background(), "k", func() {}, 0)

	assert.ErrorIs(t, err, ErrCacheSerialization)
}

func TestCache_DeleteWithoutKeysIsNoOp(t *testing.T) {
	c := &Cache{}

	assert.NoError(t, c.Delete(context.Background()))
}
