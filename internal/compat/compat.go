// Package compat общие механизмы слоя совместимости: результат чтения с явным
// признаком заглушки и стратегия запроса с переходом на устаревшие поля.
package compat

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// ErrInvalidArgument вызывающий передал некорректный параметр
var ErrInvalidArgument = errors.New("некорректный аргумент")

// ResultStatus состояние результата чтения
type ResultStatus string

const (
	StatusOK       ResultStatus = "ok"
	StatusNotFound ResultStatus = "not_found"
	StatusDegraded ResultStatus = "degraded" // документ поврежден, вместо него заглушка
)

// Result результат чтения сущности
type Result[T any] struct {
	Status ResultStatus `json:"status"`
	ID     string       `json:"id"`
	Value  T            `json:"value"`
	Cause  error        `json:"-"`
}

// OK успешно прочитанная сущность
func OK[T any](id string, v T) Result[T] {
	return Result[T]{Status: StatusOK, ID: id, Value: v}
}

// NotFound сущность не найдена
func NotFound[T any](id string) Result[T] {
	return Result[T]{Status: StatusNotFound, ID: id}
}

// Degraded заглушка вместо поврежденной сущности
func Degraded[T any](id string, placeholder T, cause error) Result[T] {
	return Result[T]{Status: StatusDegraded, ID: id, Value: placeholder, Cause: cause}
}

// Found сообщает, что в результате есть значение (настоящее или заглушка)
func (r Result[T]) Found() bool {
	return r.Status == StatusOK || r.Status == StatusDegraded
}

// Normalizer преобразует документ хранилища в сущность
type Normalizer[T any] func(doc store.Document) (T, error)

// Mapper применяет нормализатор с политикой деградации: ошибка превращается в заглушку
type Mapper[T any] struct {
	Normalize   Normalizer[T]
	Placeholder func(id string) T
	Logger      zerolog.Logger
	Entity      string
}

// One нормализует один документ
func (m Mapper[T]) One(doc store.Document) Result[T] {
	v, err := m.Normalize(doc)
	if err != nil {
		m.Logger.Warn().Err(err).Str("entity", m.Entity).Str("id", doc.ID).
			Msg("⚠️ Поврежденный документ, возвращаем заглушку")
		return Degraded(doc.ID, m.Placeholder(doc.ID), err)
	}
	return OK(doc.ID, v)
}

// All нормализует список документов, пустой вход дает пустой срез
func (m Mapper[T]) All(docs []store.Document) []Result[T] {
	out := make([]Result[T], 0, len(docs))
	for _, d := range docs {
		out = append(out, m.One(d))
	}
	return out
}

// ValidateQuery проверяет условия и лимит запроса
func ValidateQuery(where []store.Constraint, limit int) error {
	if limit < 0 {
		return fmt.Errorf("%w: отрицательный лимит %d", ErrInvalidArgument, limit)
	}
	for i, c := range where {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%w: условие %d: %v", ErrInvalidArgument, i, err)
		}
	}
	return nil
}

// MergeByID объединяет списки документов без повторов, порядок первого появления сохраняется
func MergeByID(lists ...[]store.Document) []store.Document {
	seen := map[string]struct{}{}
	out := []store.Document{}
	for _, list := range lists {
		for _, d := range list {
			if _, ok := seen[d.ID]; ok {
				continue
			}
			seen[d.ID] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}
