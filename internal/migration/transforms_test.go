package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/normalize"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

func TestTradeTransformKeepsUnknownFields(t *testing.T) {
	out, err := TradeTransform(store.Document{ID: "t1", Data: map[string]any{
		"offeredSkills": []any{"React"},
		"creatorId":     "u1",
		"legacyRating":  4,
	}})
	require.NoError(t, err)

	assert.Equal(t, "t1", out["id"])
	assert.Equal(t, 4, out["legacyRating"])
	assert.Equal(t, 2, out["schemaVersion"])
	assert.Equal(t, out["skillsOffered"], out["offeredSkills"])
	assert.Equal(t, []any{map[string]any{"id": "React", "name": "React", "level": "intermediate"}}, out["skillsOffered"])
}

func TestTransformsSkipCurrentDocuments(t *testing.T) {
	doc := store.Document{ID: "x", Data: map[string]any{"schemaVersion": 2}}
	for _, name := range TransformNames() {
		transform, err := TransformFor(name)
		require.NoError(t, err)
		_, err = transform(doc)
		assert.ErrorIs(t, err, ErrSkipDocument, name)
	}

	_, err := TransformFor("listings")
	assert.Error(t, err)
	assert.Equal(t, []string{"conversations", "messages", "trades"}, TransformNames())
}

func TestConversationTransform(t *testing.T) {
	out, err := ConversationTransform(store.Document{ID: "c1", Data: map[string]any{
		"participants": []any{"u1", "u2"},
		"lastMessage":  "hi",
	}})
	require.NoError(t, err)
	assert.Equal(t, []any{"u1", "u2"}, out["participantIds"])
	assert.Equal(t, "c1", out["id"])

	_, err = ConversationTransform(store.Document{ID: "c2", Data: map[string]any{"participants": []any{}}})
	assert.ErrorIs(t, err, normalize.ErrEmptyParticipants)
	assert.False(t, retryableTransform(err))
}

func TestMessageTransform(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	out, err := MessageTransform(store.Document{ID: "m1", Data: map[string]any{
		"chatId":    "c1",
		"userId":    "u1",
		"message":   "hello",
		"timestamp": ts,
	}})
	require.NoError(t, err)
	assert.Equal(t, "c1", out["conversationId"])
	assert.Equal(t, "u1", out["senderId"])
	assert.Equal(t, "hello", out["content"])
	assert.Equal(t, 2, out["schemaVersion"])

	_, err = MessageTransform(store.Document{ID: "m2"})
	assert.ErrorIs(t, err, normalize.ErrNullEntity)
}

func TestOptionsDefaultsAndValidation(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, 50, opts.BatchSize)
	assert.Equal(t, 2, opts.MaxConcurrentBatches)
	assert.Equal(t, time.Duration(0), opts.RateLimit)
	assert.Equal(t, 0, opts.MaxRetries)
	assert.NoError(t, opts.validate())

	bad := DefaultOptions()
	bad.MaxRetries = -1
	assert.Error(t, bad.validate())

	fromEnv := OptionsFromConfig(config.MigrationConfig{
		Enabled:        true,
		BatchSize:      25,
		MaxRetries:     5,
		ErrorThreshold: 0.1,
		RateLimit:      time.Second,
	})
	assert.Equal(t, 25, fromEnv.BatchSize)
	assert.Equal(t, 5, fromEnv.MaxRetries)
	assert.Equal(t, 2, fromEnv.MaxConcurrentBatches)
	assert.True(t, fromEnv.EnableZeroDowntime)
	assert.Equal(t, 100, fromEnv.MinSampleSize)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := backoff{initial: 10 * time.Millisecond, max: 50 * time.Millisecond, multiplier: 2}
	assert.Equal(t, 10*time.Millisecond, b.delay(0))
	assert.Equal(t, 40*time.Millisecond, b.delay(2))
	assert.Equal(t, 50*time.Millisecond, b.delay(10))
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	b := backoff{initial: time.Microsecond, max: time.Microsecond, multiplier: 2}
	calls := 0
	attempts, err := retry(context.Background(), 5, b, retryableTransform, func() error {
		calls++
		return ErrSkipDocument
	})
	assert.ErrorIs(t, err, ErrSkipDocument)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)

	calls = 0
	attempts, err = retry(context.Background(), 2, b, retryableWrite, func() error {
		calls++
		if calls < 3 {
			return store.ErrTransient
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts, err = retry(ctx, 3, backoff{initial: time.Hour, max: time.Hour, multiplier: 2}, retryableWrite, func() error {
		return store.ErrTransient
	})
	assert.True(t, errors.Is(err, store.ErrTransient))
	assert.Equal(t, 1, attempts)
}
