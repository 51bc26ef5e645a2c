package trade

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rajivgeraev/skillswap-api/internal/compat"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/normalize"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// Collection коллекция обменов в хранилище
const Collection = "trades"

// ErrorLoadingTitle заголовок заглушки для поврежденного обмена
const ErrorLoadingTitle = "Error Loading Trade"

// SkillKind сторона обмена, к которой относится навык
type SkillKind string

const (
	SkillOffered SkillKind = "offered"
	SkillWanted  SkillKind = "wanted"
)

// TradeService сервис совместимости для обменов: читает документы любого формата
// и отдает нормализованные сущности
type TradeService struct {
	store    store.Store
	logger   zerolog.Logger
	dualRead atomic.Bool
	mapper   compat.Mapper[models.Trade]
}

// NewTradeService создает новый экземпляр TradeService
func NewTradeService(s store.Store, logger zerolog.Logger) *TradeService {
	svc := &TradeService{
		store:  s,
		logger: logger.With().Str("service", "trades").Logger(),
	}
	svc.mapper = compat.Mapper[models.Trade]{
		Normalize:   normalizeDocument,
		Placeholder: Placeholder,
		Logger:      svc.logger,
		Entity:      "trade",
	}
	return svc
}

// SetDualRead включает чтение в обоих форматах с объединением результатов
func (s *TradeService) SetDualRead(on bool) {
	s.dualRead.Store(on)
}

// Placeholder возвращает заглушку вместо поврежденного обмена
func Placeholder(id string) models.Trade {
	return models.Trade{
		ID:              id,
		Title:           ErrorLoadingTitle,
		SkillsOffered:   []models.Skill{},
		SkillsWanted:    []models.Skill{},
		OfferedSkills:   []models.Skill{},
		RequestedSkills: []models.Skill{},
		Status:          models.TradeStatusUnknown,
	}
}

func normalizeDocument(doc store.Document) (models.Trade, error) {
	t, err := normalize.Trade(doc.Data)
	if err != nil {
		return models.Trade{}, err
	}
	if t.ID == "" {
		t.ID = doc.ID
	}
	return t, nil
}

// Get возвращает обмен по ID
func (s *TradeService) Get(ctx context.Context, id string) (compat.Result[models.Trade], error) {
	if id == "" {
		return compat.Result[models.Trade]{}, fmt.Errorf("%w: пустой ID обмена", compat.ErrInvalidArgument)
	}

	doc, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return compat.Result[models.Trade]{}, fmt.Errorf("ошибка получения обмена %s: %w", id, err)
	}
	if doc == nil {
		return compat.NotFound[models.Trade](id), nil
	}
	return s.mapper.One(*doc), nil
}

// Query выполняет запрос с условиями и нормализует каждый документ
func (s *TradeService) Query(ctx context.Context, where []store.Constraint, limit int) ([]compat.Result[models.Trade], error) {
	if err := compat.ValidateQuery(where, limit); err != nil {
		return nil, err
	}

	docs, err := s.run(limit)(ctx, where)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса обменов: %w", err)
	}
	return s.mapper.All(docs), nil
}

// QueryBySkill ищет обмены по названию предлагаемого или искомого навыка
func (s *TradeService) QueryBySkill(ctx context.Context, skill string, kind SkillKind, limit int) ([]compat.Result[models.Trade], error) {
	if skill == "" {
		return nil, fmt.Errorf("%w: пустое название навыка", compat.ErrInvalidArgument)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: отрицательный лимит %d", compat.ErrInvalidArgument, limit)
	}

	var modernField, legacyField string
	switch kind {
	case SkillOffered:
		modernField, legacyField = "skillsOffered.name", "offeredSkills"
	case SkillWanted:
		modernField, legacyField = "skillsWanted.name", "requestedSkills"
	default:
		return nil, fmt.Errorf("%w: неизвестный тип навыка %q", compat.ErrInvalidArgument, kind)
	}

	q := compat.FallbackQuery{
		Primary:  []store.Constraint{{Field: modernField, Operator: store.OpArrayContains, Value: skill}},
		Fallback: []store.Constraint{{Field: legacyField, Operator: store.OpArrayContains, Value: skill}},
	}

	docs, err := q.Run(ctx, s.dualRead.Load(), s.run(limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска обменов по навыку %q: %w", skill, err)
	}
	return s.mapper.All(docs), nil
}

// QueryByUser ищет обмены, где пользователь создатель или участник
func (s *TradeService) QueryByUser(ctx context.Context, userID string, limit int) ([]compat.Result[models.Trade], error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: пустой ID пользователя", compat.ErrInvalidArgument)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: отрицательный лимит %d", compat.ErrInvalidArgument, limit)
	}

	byCreator := compat.FallbackQuery{
		Primary:  []store.Constraint{{Field: "participants.creator", Operator: store.OpEqual, Value: userID}},
		Fallback: []store.Constraint{{Field: "creatorId", Operator: store.OpEqual, Value: userID}},
	}
	byParticipant := compat.FallbackQuery{
		Primary:  []store.Constraint{{Field: "participants.participant", Operator: store.OpEqual, Value: userID}},
		Fallback: []store.Constraint{{Field: "participantId", Operator: store.OpEqual, Value: userID}},
	}

	dual := s.dualRead.Load()
	created, err := byCreator.Run(ctx, dual, s.run(limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска обменов пользователя %s: %w", userID, err)
	}
	joined, err := byParticipant.Run(ctx, dual, s.run(limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска обменов пользователя %s: %w", userID, err)
	}

	docs := compat.MergeByID(created, joined)
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return s.mapper.All(docs), nil
}

// Validate проверяет, что обмен можно сохранить
func (s *TradeService) Validate(t models.Trade) bool {
	if t.ID == "" || t.Title == "" || t.Participants.Creator == "" {
		return false
	}
	if t.SkillsOffered == nil || t.SkillsWanted == nil {
		return false
	}
	for _, skill := range append(append([]models.Skill{}, t.SkillsOffered...), t.SkillsWanted...) {
		if skill.Name == "" || !models.ValidSkillLevel(skill.Level) {
			return false
		}
	}
	return models.ValidTradeStatus(t.Status)
}

// Save записывает обмен в двойном формате
func (s *TradeService) Save(ctx context.Context, t models.Trade) error {
	t = Mirror(t)
	if !s.Validate(t) {
		return fmt.Errorf("%w: обмен %q не прошел проверку", compat.ErrInvalidArgument, t.ID)
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.SchemaVersion = models.CurrentSchemaVersion

	err := s.store.BatchWrite(ctx, []store.WriteOp{{
		Kind:       store.WriteSet,
		Collection: Collection,
		ID:         t.ID,
		Data:       t.ToDocument(),
	}})
	if err != nil {
		return fmt.Errorf("ошибка сохранения обмена %s: %w", t.ID, err)
	}

	s.logger.Debug().Str("id", t.ID).Msg("Обмен сохранен")
	return nil
}

// Probe проверяет, что сервис может читать из хранилища
func (s *TradeService) Probe(ctx context.Context) error {
	if _, err := s.Query(ctx, nil, 1); err != nil {
		return fmt.Errorf("сервис обменов недоступен: %w", err)
	}
	return nil
}

// Mirror синхронизирует устаревшие поля с современными
func Mirror(t models.Trade) models.Trade {
	if t.SkillsOffered == nil {
		t.SkillsOffered = []models.Skill{}
	}
	if t.SkillsWanted == nil {
		t.SkillsWanted = []models.Skill{}
	}
	t.OfferedSkills = append([]models.Skill{}, t.SkillsOffered...)
	t.RequestedSkills = append([]models.Skill{}, t.SkillsWanted...)
	t.CreatorID = t.Participants.Creator
	t.ParticipantID = t.Participants.Participant
	return t
}

func (s *TradeService) run(limit int) compat.RunFunc {
	return func(ctx context.Context, where []store.Constraint) ([]store.Document, error) {
		return s.store.Query(ctx, store.Query{
			Collection: Collection,
			Where:      where,
			Limit:      limit,
		})
	}
}
