// Package store описывает контракт документного хранилища, с которым работают
// сервисы совместимости и движок миграции.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTransient временная ошибка хранилища (сеть, таймаут), операцию можно повторить
	ErrTransient = errors.New("временная ошибка хранилища")
	// ErrPermanentWrite хранилище отклонило запись (схема, права), повтор не поможет
	ErrPermanentWrite = errors.New("хранилище отклонило запись")
)

// Операторы условий запроса
const (
	OpEqual         = "=="
	OpNotEqual      = "!="
	OpLess          = "<"
	OpLessEqual     = "<="
	OpGreater       = ">"
	OpGreaterEqual  = ">="
	OpArrayContains = "array-contains"
	OpIn            = "in"
)

// Направления сортировки
const (
	Asc  = "asc"
	Desc = "desc"
)

// Виды операций пакетной записи
type WriteKind string

const (
	WriteSet    WriteKind = "set"
	WriteUpdate WriteKind = "update"
	WriteDelete WriteKind = "delete"
)

// Document документ хранилища
type Document struct {
	ID   string
	Data map[string]any
}

// Constraint условие фильтрации. Поле может быть путем через точку,
// для массивов путь применяется к каждому элементу.
type Constraint struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// OrderBy порядок сортировки
type OrderBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// Query запрос к коллекции. StartAfter продолжает выборку после документа
// с указанным ID при сортировке по ID.
type Query struct {
	Collection string
	Where      []Constraint
	OrderBy    []OrderBy
	StartAfter string
	Limit      int
}

// WriteOp одна операция пакетной записи
type WriteOp struct {
	Kind       WriteKind
	Collection string
	ID         string
	Data       map[string]any
}

// Store контракт документного хранилища
type Store interface {
	// Get возвращает документ или nil, если его нет
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	// BatchWrite применяет все операции атомарно
	BatchWrite(ctx context.Context, ops []WriteOp) error
	Count(ctx context.Context, collection string) (int64, error)
	Ping(ctx context.Context) error
	CollectionExists(ctx context.Context, collection string) (bool, error)
}

// ValidOperator проверяет поддержку оператора
func ValidOperator(op string) bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpArrayContains, OpIn:
		return true
	}
	return false
}

// Validate проверяет условие запроса
func (c Constraint) Validate() error {
	if c.Field == "" {
		return errors.New("пустое поле условия")
	}
	if !ValidOperator(c.Operator) {
		return fmt.Errorf("неизвестный оператор %q", c.Operator)
	}
	if c.Operator == OpIn {
		if _, ok := c.Value.([]any); !ok {
			if _, ok := c.Value.([]string); !ok {
				return fmt.Errorf("оператор in требует список значений для поля %q", c.Field)
			}
		}
	}
	return nil
}

// Validate проверяет операцию записи
func (op WriteOp) Validate() error {
	if op.Collection == "" || op.ID == "" {
		return fmt.Errorf("%w: операция %s без коллекции или ID", ErrPermanentWrite, op.Kind)
	}
	switch op.Kind {
	case WriteSet, WriteUpdate:
		if op.Data == nil {
			return fmt.Errorf("%w: операция %s без данных для %s/%s", ErrPermanentWrite, op.Kind, op.Collection, op.ID)
		}
	case WriteDelete:
	default:
		return fmt.Errorf("%w: неизвестная операция %q", ErrPermanentWrite, op.Kind)
	}
	return nil
}

// InValues возвращает значения оператора in
func InValues(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	}
	return nil
}
