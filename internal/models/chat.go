package models

import "time"

// Типы чатов
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
	ConversationTrade  = "trade"
)

// Типы сообщений
const (
	MessageText   = "text"
	MessageSystem = "system"
)

// ParticipantSummary краткая информация об участнике чата
type ParticipantSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

// LastMessage сводка последнего сообщения
type LastMessage struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation представляет чат между пользователями.
// ParticipantIDs и Participants выровнены по индексу.
type Conversation struct {
	ID             string               `json:"id"`
	Type           string               `json:"type"`
	ParticipantIDs []string             `json:"participantIds"`
	Participants   []ParticipantSummary `json:"participants"`
	LastMessage    *LastMessage         `json:"lastMessage,omitempty"`
	Metadata       map[string]any       `json:"metadata"`
	TradeID        string               `json:"tradeId,omitempty"`
	SchemaVersion  int                  `json:"schemaVersion"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// Message представляет сообщение в чате
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	CreatedAt      time.Time `json:"createdAt"`

	// Устаревшие поля для старых клиентов
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ToDocument возвращает документ чата для записи в хранилище
func (c Conversation) ToDocument() map[string]any {
	ids := make([]any, 0, len(c.ParticipantIDs))
	for _, id := range c.ParticipantIDs {
		ids = append(ids, id)
	}

	participants := make([]any, 0, len(c.Participants))
	for _, p := range c.Participants {
		entry := map[string]any{"id": p.ID, "displayName": p.DisplayName}
		if p.Avatar != "" {
			entry["avatar"] = p.Avatar
		}
		participants = append(participants, entry)
	}

	metadata := make(map[string]any, len(c.Metadata))
	for k, v := range c.Metadata {
		metadata[k] = v
	}

	doc := map[string]any{
		"id":             c.ID,
		"type":           c.Type,
		"participantIds": ids,
		"participants":   participants,
		"metadata":       metadata,
		"schemaVersion":  c.SchemaVersion,
	}

	if c.LastMessage != nil {
		last := map[string]any{
			"content":  c.LastMessage.Content,
			"senderId": c.LastMessage.SenderID,
		}
		putTime(last, "createdAt", c.LastMessage.CreatedAt)
		doc["lastMessage"] = last
	}
	if c.TradeID != "" {
		doc["tradeId"] = c.TradeID
	}

	putTime(doc, "createdAt", c.CreatedAt)
	putTime(doc, "updatedAt", c.UpdatedAt)
	return doc
}

// ToDocument возвращает документ сообщения в двойном формате
func (m Message) ToDocument() map[string]any {
	doc := map[string]any{
		"id":             m.ID,
		"conversationId": m.ConversationID,
		"senderId":       m.SenderID,
		"content":        m.Content,
		"type":           m.Type,
		"chatId":         m.ChatID,
		"userId":         m.UserID,
		"message":        m.Text,
	}
	putTime(doc, "createdAt", m.CreatedAt)
	putTime(doc, "timestamp", m.Timestamp)
	return doc
}
