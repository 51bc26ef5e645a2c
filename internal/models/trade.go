package models

import "time"

// CurrentSchemaVersion версия современного формата документов
const CurrentSchemaVersion = 2

// LegacySchemaVersion версия исходного формата документов
const LegacySchemaVersion = 1

// Уровни владения навыком
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
	LevelExpert       = "expert"
)

// Статусы обмена
const (
	TradeStatusDraft      = "draft"
	TradeStatusActive     = "active"
	TradeStatusInProgress = "in_progress"
	TradeStatusCompleted  = "completed"
	TradeStatusCancelled  = "cancelled"
	TradeStatusUnknown    = "unknown"
)

// Skill представляет навык, который предлагают или ищут в обмене
type Skill struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level string `json:"level"`
}

// Participants представляет стороны обмена
type Participants struct {
	Creator     string `json:"creator"`
	Participant string `json:"participant,omitempty"` // пусто, пока нет второй стороны
}

// Trade представляет предложение об обмене навыками.
// Современные и устаревшие поля после нормализации совпадают.
type Trade struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	SkillsOffered []Skill      `json:"skillsOffered"`
	SkillsWanted  []Skill      `json:"skillsWanted"`
	Participants  Participants `json:"participants"`
	Status        string       `json:"status"`
	SchemaVersion int          `json:"schemaVersion"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`

	// Устаревшие поля для старых клиентов
	OfferedSkills   []Skill `json:"offeredSkills"`
	RequestedSkills []Skill `json:"requestedSkills"`
	CreatorID       string  `json:"creatorId"`
	ParticipantID   string  `json:"participantId,omitempty"`
}

// ValidSkillLevel проверяет уровень владения навыком
func ValidSkillLevel(level string) bool {
	switch level {
	case LevelBeginner, LevelIntermediate, LevelAdvanced, LevelExpert:
		return true
	}
	return false
}

// ValidTradeStatus проверяет статус обмена
func ValidTradeStatus(status string) bool {
	switch status {
	case TradeStatusDraft, TradeStatusActive, TradeStatusInProgress,
		TradeStatusCompleted, TradeStatusCancelled, TradeStatusUnknown:
		return true
	}
	return false
}

// ToDocument возвращает документ в двойном формате для записи в хранилище
func (t Trade) ToDocument() map[string]any {
	doc := map[string]any{
		"id":              t.ID,
		"title":           t.Title,
		"description":     t.Description,
		"skillsOffered":   skillsToDocument(t.SkillsOffered),
		"skillsWanted":    skillsToDocument(t.SkillsWanted),
		"offeredSkills":   skillsToDocument(t.OfferedSkills),
		"requestedSkills": skillsToDocument(t.RequestedSkills),
		"status":          t.Status,
		"schemaVersion":   t.SchemaVersion,
		"creatorId":       t.CreatorID,
	}

	participants := map[string]any{"creator": t.Participants.Creator}
	if t.Participants.Participant != "" {
		participants["participant"] = t.Participants.Participant
		doc["participantId"] = t.ParticipantID
	}
	doc["participants"] = participants

	putTime(doc, "createdAt", t.CreatedAt)
	putTime(doc, "updatedAt", t.UpdatedAt)
	return doc
}

func skillsToDocument(skills []Skill) []any {
	out := make([]any, 0, len(skills))
	for _, s := range skills {
		out = append(out, map[string]any{"id": s.ID, "name": s.Name, "level": s.Level})
	}
	return out
}

func putTime(doc map[string]any, key string, t time.Time) {
	if !t.IsZero() {
		doc[key] = t
	}
}
