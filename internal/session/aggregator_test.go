package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gosight/gosight/gaze/internal/storage"
)

func TestParseAttentionData(t *testing.T) {
	row := parseAttentionData("key-q", map[string]string{
		"enters":       "4",
		"fixations":    "3",
		"dwells":       "2",
		"exits":        "4",
		"attention_ms": "5120",
		"first_seen":   "1700000000000",
		"last_seen":    "1700000060000",
	})

	assert.Equal(t, "key-q", row.TargetID)
	assert.Equal(t, uint32(4), row.Enters)
	assert.Equal(t, uint32(3), row.Fixations)
	assert.Equal(t, uint32(2), row.Dwells)
	assert.Equal(t, uint32(4), row.Exits)
	assert.Equal(t, uint64(5120), row.AttentionMs)
	assert.Equal(t, time.Minute, row.LastSeen.Sub(row.FirstSeen))
}

func TestParseAttentionDataIgnoresGarbage(t *testing.T) {
	row := parseAttentionData("key-q", map[string]string{
		"enters":     "many",
		"first_seen": "yesterday",
	})
	assert.Zero(t, row.Enters)
	assert.True(t, row.FirstSeen.IsZero())
}

func TestNilRedisIsNoop(t *testing.T) {
	a := &Aggregator{}
	ctx := context.Background()

	assert.NoError(t, a.Update(ctx, storage.InteractionRow{TargetID: "key-q", State: "enter"}))
	assert.NoError(t, a.FlushTarget(ctx, "key-q"))
	assert.NoError(t, a.FlushAll(ctx))
	assert.NoError(t, a.Close())
}
