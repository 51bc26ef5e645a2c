package normalize

import (
	"github.com/rajivgeraev/skillswap-api/internal/models"
)

// UnknownUserName имя участника, для которого нет данных профиля
const UnknownUserName = "Unknown User"

// participantSources поля, из которых собираются идентификаторы участников, в порядке приоритета
var participantSources = []string{"participantIds", "participants", "members", "userIds"}

// Conversation приводит документ чата любого формата к models.Conversation.
// Чат без единого участника считается нарушением целостности данных.
func Conversation(raw map[string]any) (models.Conversation, error) {
	if raw == nil {
		return models.Conversation{}, ErrNullEntity
	}
	r := RawRecord(raw)

	profiles := participantProfiles(r)
	ids := ParticipantIDs(r)
	if len(ids) == 0 {
		return models.Conversation{}, ErrEmptyParticipants
	}

	summaries := make([]models.ParticipantSummary, len(ids))
	for i, id := range ids {
		summary, ok := profiles[id]
		if !ok {
			summary = models.ParticipantSummary{ID: id}
		}
		if summary.DisplayName == "" {
			summary.DisplayName = UnknownUserName
		}
		summaries[i] = summary
	}

	tradeID, _ := r.NonEmptyString("tradeId", "trade_id")

	metadata := map[string]any{}
	if m, ok := r.Record("metadata"); ok {
		for k, v := range m {
			metadata[k] = v
		}
	}

	return models.Conversation{
		ID:             r.StringOr("", "id"),
		Type:           conversationType(r, tradeID, len(ids)),
		ParticipantIDs: ids,
		Participants:   summaries,
		LastMessage:    lastMessage(r),
		Metadata:       metadata,
		TradeID:        tradeID,
		SchemaVersion:  conversationSchemaVersion(r),
		CreatedAt:      r.Time("createdAt"),
		UpdatedAt:      r.Time("updatedAt", "lastMessageAt"),
	}, nil
}

// ParticipantIDs собирает уникальные строковые идентификаторы участников из всех известных форматов.
// Порядок первого появления сохраняется.
func ParticipantIDs(r RawRecord) []string {
	seen := map[string]struct{}{}
	ids := []string{}

	for _, key := range participantSources {
		items, ok := r.List(key)
		if !ok {
			continue
		}
		for _, item := range items {
			id, ok := participantID(item)
			if !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// participantID извлекает идентификатор из строки или объекта с id, userId, uid или user.id
func participantID(item any) (string, bool) {
	if s, ok := item.(string); ok {
		return s, s != ""
	}

	m, ok := asMap(item)
	if !ok {
		return "", false
	}
	rec := RawRecord(m)
	if id, ok := rec.NonEmptyString("id", "userId", "uid", "user.id"); ok {
		return id, true
	}
	return "", false
}

// participantProfiles собирает имена и аватары из объектов участников и старого participantDetails
func participantProfiles(r RawRecord) map[string]models.ParticipantSummary {
	profiles := map[string]models.ParticipantSummary{}

	if details, ok := r.Record("participantDetails"); ok {
		for id, v := range details {
			m, ok := asMap(v)
			if !ok {
				continue
			}
			profiles[id] = profileFrom(id, RawRecord(m))
		}
	}

	if items, ok := r.List("participants"); ok {
		for _, item := range items {
			m, ok := asMap(item)
			if !ok {
				continue
			}
			id, ok := participantID(m)
			if !ok {
				continue
			}
			if _, exists := profiles[id]; exists {
				continue
			}
			profiles[id] = profileFrom(id, RawRecord(m))
		}
	}
	return profiles
}

func profileFrom(id string, rec RawRecord) models.ParticipantSummary {
	name, _ := rec.NonEmptyString("displayName", "name", "username", "firstName", "user.displayName", "user.name")
	avatar, _ := rec.NonEmptyString("avatar", "avatarUrl", "photoURL", "user.avatar")
	return models.ParticipantSummary{ID: id, DisplayName: name, Avatar: avatar}
}

func conversationType(r RawRecord, tradeID string, participants int) string {
	switch t := r.StringOr("", "type"); t {
	case models.ConversationDirect, models.ConversationGroup, models.ConversationTrade:
		return t
	}
	if tradeID != "" {
		return models.ConversationTrade
	}
	if participants > 2 {
		return models.ConversationGroup
	}
	return models.ConversationDirect
}

// lastMessage поддерживает объект lastMessage и старые плоские поля lastMessage/lastMessageAt
func lastMessage(r RawRecord) *models.LastMessage {
	if m, ok := r.Record("lastMessage"); ok {
		return &models.LastMessage{
			Content:   m.StringOr("", "content", "text", "message"),
			SenderID:  m.StringOr("", "senderId", "userId"),
			CreatedAt: m.Time("createdAt", "timestamp"),
		}
	}

	if text, ok := r.String("lastMessage"); ok {
		return &models.LastMessage{
			Content:   text,
			SenderID:  r.StringOr("", "lastMessageSenderId"),
			CreatedAt: r.Time("lastMessageAt", "lastMessageTime"),
		}
	}
	return nil
}

func conversationSchemaVersion(r RawRecord) int {
	if v, ok := r.Int("schemaVersion"); ok && v > 0 {
		return v
	}
	if r.Has("participantIds") {
		return models.CurrentSchemaVersion
	}
	return models.LegacySchemaVersion
}
