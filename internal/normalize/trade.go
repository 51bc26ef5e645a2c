package normalize

import (
	"strings"

	"github.com/rajivgeraev/skillswap-api/internal/models"
)

// UnknownSkillName имя навыка, у которого в документе нет названия
const UnknownSkillName = "Unknown Skill"

// legacyStatuses сопоставляет старые статусы обмена с современными
var legacyStatuses = map[string]string{
	"open":     models.TradeStatusActive,
	"pending":  models.TradeStatusActive,
	"accepted": models.TradeStatusInProgress,
	"canceled": models.TradeStatusCancelled,
	"rejected": models.TradeStatusCancelled,
	"done":     models.TradeStatusCompleted,
	"closed":   models.TradeStatusCompleted,
}

// Trade приводит документ обмена любого формата к models.Trade.
// Ошибка возвращается только для nil-документа, остальные дефекты исправляются.
func Trade(raw map[string]any) (models.Trade, error) {
	if raw == nil {
		return models.Trade{}, ErrNullEntity
	}
	r := RawRecord(raw)

	offered := skillList(r, "skillsOffered", "offeredSkills")
	wanted := skillList(r, "skillsWanted", "requestedSkills")

	// Современные participants приоритетнее creatorId/participantId
	var creator, participant string
	if p, ok := r.Record("participants"); ok {
		creator, _ = p.String("creator")
		participant, _ = p.String("participant")
	}
	if creator == "" {
		creator, _ = r.String("creatorId")
	}
	if participant == "" {
		participant, _ = r.String("participantId")
	}

	t := models.Trade{
		ID:            r.StringOr("", "id"),
		Title:         r.StringOr("", "title"),
		Description:   r.StringOr("", "description"),
		SkillsOffered: offered,
		SkillsWanted:  wanted,
		Participants: models.Participants{
			Creator:     creator,
			Participant: participant,
		},
		Status:        TradeStatus(r.StringOr("", "status")),
		SchemaVersion: tradeSchemaVersion(r),
		CreatedAt:     r.Time("createdAt"),
		UpdatedAt:     r.Time("updatedAt"),

		OfferedSkills:   append([]models.Skill{}, offered...),
		RequestedSkills: append([]models.Skill{}, wanted...),
		CreatorID:       creator,
		ParticipantID:   participant,
	}
	return t, nil
}

// TradeStatus возвращает современный статус обмена
func TradeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if models.ValidTradeStatus(s) {
		return s
	}
	if mapped, ok := legacyStatuses[s]; ok {
		return mapped
	}
	return models.TradeStatusUnknown
}

// Skill приводит один элемент списка навыков к models.Skill
func Skill(v any) models.Skill {
	switch s := v.(type) {
	case string:
		if strings.TrimSpace(s) == "" {
			return models.Skill{Name: UnknownSkillName, Level: models.LevelIntermediate}
		}
		return models.Skill{ID: s, Name: s, Level: models.LevelIntermediate}
	}

	m, ok := asMap(v)
	if !ok {
		return models.Skill{Name: stringify(v), Level: models.LevelIntermediate}
	}

	rec := RawRecord(m)
	name, hasName := rec.NonEmptyString("name")

	var id string
	if raw, ok := rec.Lookup("id"); ok && raw != nil {
		id = stringify(raw)
	} else if hasName {
		id = name
	}

	if !hasName {
		name = UnknownSkillName
	}

	level := strings.ToLower(rec.StringOr("", "level"))
	if !models.ValidSkillLevel(level) {
		level = models.LevelIntermediate
	}

	return models.Skill{ID: id, Name: name, Level: level}
}

// skillList читает список навыков из современного поля, а при его отсутствии из устаревшего
func skillList(r RawRecord, modern, legacy string) []models.Skill {
	items, ok := r.List(modern)
	if !ok {
		items, _ = r.List(legacy)
	}

	out := make([]models.Skill, 0, len(items))
	for _, item := range items {
		out = append(out, Skill(item))
	}
	return out
}

func tradeSchemaVersion(r RawRecord) int {
	if v, ok := r.Int("schemaVersion"); ok && v > 0 {
		return v
	}
	if r.Has("skillsOffered") || r.Has("skillsWanted") {
		return models.CurrentSchemaVersion
	}
	if _, ok := r.Record("participants"); ok {
		return models.CurrentSchemaVersion
	}
	return models.LegacySchemaVersion
}
