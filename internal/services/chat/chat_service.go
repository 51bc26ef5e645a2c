package chat

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rajivgeraev/skillswap-api/internal/compat"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/normalize"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// Коллекции чатов и сообщений
const (
	Collection         = "conversations"
	MessagesCollection = "messages"
)

// ErrorLoadingTitle маркер заглушки для поврежденного чата
const ErrorLoadingTitle = "Error Loading Conversation"

// AvatarResolver превращает ссылку на аватар в URL для клиента
type AvatarResolver interface {
	AvatarURL(ref string) string
}

// ChatService сервис совместимости для чатов и сообщений
type ChatService struct {
	store    store.Store
	avatars  AvatarResolver
	logger   zerolog.Logger
	dualRead atomic.Bool
	mapper   compat.Mapper[models.Conversation]
}

// NewChatService создает новый экземпляр ChatService. avatars может быть nil.
func NewChatService(s store.Store, avatars AvatarResolver, logger zerolog.Logger) *ChatService {
	svc := &ChatService{
		store:   s,
		avatars: avatars,
		logger:  logger.With().Str("service", "chat").Logger(),
	}
	svc.mapper = compat.Mapper[models.Conversation]{
		Normalize:   svc.normalizeDocument,
		Placeholder: Placeholder,
		Logger:      svc.logger,
		Entity:      "conversation",
	}
	return svc
}

// SetDualRead включает чтение в обоих форматах с объединением результатов
func (s *ChatService) SetDualRead(on bool) {
	s.dualRead.Store(on)
}

// Placeholder возвращает заглушку вместо поврежденного чата
func Placeholder(id string) models.Conversation {
	return models.Conversation{
		ID:             id,
		Type:           models.ConversationDirect,
		ParticipantIDs: []string{},
		Participants:   []models.ParticipantSummary{},
		LastMessage:    &models.LastMessage{Content: ErrorLoadingTitle},
		Metadata:       map[string]any{"placeholder": true},
	}
}

func (s *ChatService) normalizeDocument(doc store.Document) (models.Conversation, error) {
	conv, err := normalize.Conversation(doc.Data)
	if err != nil {
		return models.Conversation{}, err
	}
	if conv.ID == "" {
		conv.ID = doc.ID
	}
	if s.avatars != nil {
		for i := range conv.Participants {
			if ref := conv.Participants[i].Avatar; ref != "" {
				conv.Participants[i].Avatar = s.avatars.AvatarURL(ref)
			}
		}
	}
	return conv, nil
}

// Get возвращает чат по ID
func (s *ChatService) Get(ctx context.Context, id string) (compat.Result[models.Conversation], error) {
	if id == "" {
		return compat.Result[models.Conversation]{}, fmt.Errorf("%w: пустой ID чата", compat.ErrInvalidArgument)
	}

	doc, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return compat.Result[models.Conversation]{}, fmt.Errorf("ошибка получения чата %s: %w", id, err)
	}
	if doc == nil {
		return compat.NotFound[models.Conversation](id), nil
	}
	return s.mapper.One(*doc), nil
}

// Query выполняет запрос к чатам
func (s *ChatService) Query(ctx context.Context, where []store.Constraint, limit int) ([]compat.Result[models.Conversation], error) {
	if err := compat.ValidateQuery(where, limit); err != nil {
		return nil, err
	}

	docs, err := s.run(Collection, limit)(ctx, where)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса чатов: %w", err)
	}
	return s.mapper.All(docs), nil
}

// QueryByUser возвращает чаты пользователя
func (s *ChatService) QueryByUser(ctx context.Context, userID string, limit int) ([]compat.Result[models.Conversation], error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: пустой ID пользователя", compat.ErrInvalidArgument)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: отрицательный лимит %d", compat.ErrInvalidArgument, limit)
	}

	q := compat.FallbackQuery{
		Primary:  []store.Constraint{{Field: "participantIds", Operator: store.OpArrayContains, Value: userID}},
		Fallback: []store.Constraint{{Field: "participants", Operator: store.OpArrayContains, Value: userID}},
	}

	docs, err := q.Run(ctx, s.dualRead.Load(), s.run(Collection, limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска чатов пользователя %s: %w", userID, err)
	}
	return s.mapper.All(docs), nil
}

// Messages возвращает сообщения чата по времени создания
func (s *ChatService) Messages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: пустой ID чата", compat.ErrInvalidArgument)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: отрицательный лимит %d", compat.ErrInvalidArgument, limit)
	}

	q := compat.FallbackQuery{
		Primary:  []store.Constraint{{Field: "conversationId", Operator: store.OpEqual, Value: conversationID}},
		Fallback: []store.Constraint{{Field: "chatId", Operator: store.OpEqual, Value: conversationID}},
	}

	// Порядок сортировки хранилища зависит от формата, поэтому сортируем после нормализации
	docs, err := q.Run(ctx, s.dualRead.Load(), s.run(MessagesCollection, 0))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сообщений чата %s: %w", conversationID, err)
	}

	messages := make([]models.Message, 0, len(docs))
	for _, doc := range docs {
		msg := normalize.Message(doc.Data)
		if msg.ID == "" {
			msg.ID = doc.ID
		}
		messages = append(messages, msg)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// Validate проверяет структуру чата
func (s *ChatService) Validate(conv models.Conversation) bool {
	if conv.ID == "" || len(conv.ParticipantIDs) == 0 {
		return false
	}
	if len(conv.ParticipantIDs) != len(conv.Participants) {
		return false
	}
	for i, id := range conv.ParticipantIDs {
		if id == "" || conv.Participants[i].ID != id {
			return false
		}
	}
	switch conv.Type {
	case models.ConversationDirect, models.ConversationGroup, models.ConversationTrade:
		return true
	}
	return false
}

// Save записывает чат в современном формате
func (s *ChatService) Save(ctx context.Context, conv models.Conversation) error {
	if !s.Validate(conv) {
		return fmt.Errorf("%w: чат %q не прошел проверку", compat.ErrInvalidArgument, conv.ID)
	}

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	conv.SchemaVersion = models.CurrentSchemaVersion
	if conv.Metadata == nil {
		conv.Metadata = map[string]any{}
	}

	err := s.store.BatchWrite(ctx, []store.WriteOp{{
		Kind:       store.WriteSet,
		Collection: Collection,
		ID:         conv.ID,
		Data:       conv.ToDocument(),
	}})
	if err != nil {
		return fmt.Errorf("ошибка сохранения чата %s: %w", conv.ID, err)
	}
	return nil
}

// Probe проверяет, что сервис может читать из хранилища
func (s *ChatService) Probe(ctx context.Context) error {
	if _, err := s.Query(ctx, nil, 1); err != nil {
		return fmt.Errorf("сервис чатов недоступен: %w", err)
	}
	return nil
}

func (s *ChatService) run(collection string, limit int) compat.RunFunc {
	return func(ctx context.Context, where []store.Constraint) ([]store.Document, error) {
		return s.store.Query(ctx, store.Query{
			Collection: collection,
			Where:      where,
			Limit:      limit,
		})
	}
}
