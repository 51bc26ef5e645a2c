package normalize

import "github.com/rajivgeraev/skillswap-api/internal/models"

// UnreadableMessageContent текст заглушки для поврежденного сообщения
const UnreadableMessageContent = "[Message could not be loaded]"

// Message приводит документ сообщения к models.Message. Функция не возвращает ошибок:
// поврежденный документ превращается в системное сообщение-заглушку.
func Message(raw map[string]any) (msg models.Message) {
	defer func() {
		if recover() != nil {
			msg = placeholderMessage(raw)
		}
	}()

	if raw == nil {
		return placeholderMessage(nil)
	}
	r := RawRecord(raw)

	conversationID := r.StringOr("", "conversationId", "chatId")
	senderID := r.StringOr("", "senderId", "userId")
	content := r.StringOr("", "content", "message", "text")
	createdAt := r.Time("createdAt", "timestamp")

	msgType, _ := r.NonEmptyString("type")
	if msgType == "" {
		msgType = models.MessageText
	}

	return models.Message{
		ID:             r.StringOr("", "id"),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           msgType,
		CreatedAt:      createdAt,

		ChatID:    conversationID,
		UserID:    senderID,
		Text:      content,
		Timestamp: createdAt,
	}
}

func placeholderMessage(raw map[string]any) models.Message {
	var id, conversationID string
	if raw != nil {
		id, _ = raw["id"].(string)
		conversationID, _ = raw["conversationId"].(string)
		if conversationID == "" {
			conversationID, _ = raw["chatId"].(string)
		}
	}

	return models.Message{
		ID:             id,
		ConversationID: conversationID,
		Content:        UnreadableMessageContent,
		Type:           models.MessageSystem,
		ChatID:         conversationID,
		Text:           UnreadableMessageContent,
	}
}
