package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/skillswap-api/internal/compat"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/services/chat"
	"github.com/rajivgeraev/skillswap-api/internal/store"
	"github.com/rajivgeraev/skillswap-api/internal/store/memory"
)

type prefixAvatars struct{}

func (prefixAvatars) AvatarURL(ref string) string { return "https://img/" + ref }

func newService(t *testing.T) (*chat.ChatService, *memory.Store) {
	t.Helper()
	s := memory.New()
	s.Seed(chat.Collection,
		store.Document{ID: "legacy", Data: map[string]any{
			"participants": []any{"u1", "u2"},
			"lastMessage":  "hello",
		}},
		store.Document{ID: "modern", Data: map[string]any{
			"participantIds": []any{"u1", "u3"},
			"participants": []any{
				map[string]any{"id": "u1", "displayName": "Ann", "avatar": "avatars/ann"},
				map[string]any{"id": "u3", "displayName": "Cid"},
			},
			"type": "direct",
		}},
		store.Document{ID: "empty", Data: map[string]any{"participants": []any{}}},
	)
	s.Seed(chat.MessagesCollection,
		store.Document{ID: "m2", Data: map[string]any{
			"chatId": "legacy", "userId": "u2", "message": "second",
			"timestamp": time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC),
		}},
		store.Document{ID: "m1", Data: map[string]any{
			"chatId": "legacy", "userId": "u1", "message": "first",
			"timestamp": time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		}},
	)
	return chat.NewChatService(s, prefixAvatars{}, zerolog.Nop()), s
}

func TestGetResolvesAvatars(t *testing.T) {
	svc, _ := newService(t)

	result, err := svc.Get(context.Background(), "modern")
	require.NoError(t, err)
	require.Equal(t, compat.StatusOK, result.Status)
	assert.Equal(t, "https://img/avatars/ann", result.Value.Participants[0].Avatar)
	assert.Equal(t, "", result.Value.Participants[1].Avatar)
}

func TestGetEmptyParticipantsDegrades(t *testing.T) {
	svc, _ := newService(t)

	result, err := svc.Get(context.Background(), "empty")
	require.NoError(t, err)
	assert.Equal(t, compat.StatusDegraded, result.Status)
	require.NotNil(t, result.Value.LastMessage)
	assert.Equal(t, chat.ErrorLoadingTitle, result.Value.LastMessage.Content)
	assert.NotNil(t, result.Value.Metadata)
}

func TestQueryByUserAcrossShapes(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	results, err := svc.QueryByUser(ctx, "u2", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "legacy", results[0].Value.ID)

	svc.SetDualRead(true)
	results, err = svc.QueryByUser(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMessagesFallbackAndOrder(t *testing.T) {
	svc, _ := newService(t)

	messages, err := svc.Messages(context.Background(), "legacy", 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "legacy", messages[0].ConversationID)
	assert.Equal(t, "u1", messages[0].SenderID)

	messages, err = svc.Messages(context.Background(), "legacy", 1)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "second", messages[0].Content)

	_, err = svc.Messages(context.Background(), "", 0)
	require.ErrorIs(t, err, compat.ErrInvalidArgument)
}

func TestSaveAndValidate(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	conv := models.Conversation{
		ID:             "new",
		Type:           models.ConversationTrade,
		ParticipantIDs: []string{"u1", "u2"},
		Participants:   []models.ParticipantSummary{{ID: "u1", DisplayName: "Ann"}, {ID: "u2", DisplayName: "Bo"}},
		TradeID:        "t1",
	}
	require.True(t, svc.Validate(conv))
	require.NoError(t, svc.Save(ctx, conv))

	doc, err := s.Get(ctx, chat.Collection, "new")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, []any{"u1", "u2"}, doc.Data["participantIds"])
	assert.Equal(t, "t1", doc.Data["tradeId"])

	misaligned := conv
	misaligned.Participants = []models.ParticipantSummary{{ID: "u2"}, {ID: "u1"}}
	assert.False(t, svc.Validate(misaligned))
	require.ErrorIs(t, svc.Save(ctx, misaligned), compat.ErrInvalidArgument)

	assert.False(t, svc.Validate(chat.Placeholder("x")))
}
