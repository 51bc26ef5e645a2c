// Package normalize приводит документы старого и нового формата к единым сущностям.
// Функции пакета детерминированы и не выполняют ввод-вывод.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrNullEntity возвращается, когда на вход передан пустой документ
	ErrNullEntity = errors.New("пустая сущность")
	// ErrEmptyParticipants возвращается, когда у чата не осталось ни одного участника
	ErrEmptyParticipants = errors.New("у чата нет участников")
)

// RawRecord необработанный документ из хранилища с типизированным доступом к полям
type RawRecord map[string]any

// Has сообщает, есть ли в документе поле с непустым значением
func (r RawRecord) Has(key string) bool {
	v, ok := r.Lookup(key)
	return ok && v != nil
}

// Lookup возвращает значение по пути вида "a.b.c"
func (r RawRecord) Lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String возвращает строковое поле
func (r RawRecord) String(key string) (string, bool) {
	v, ok := r.Lookup(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringOr возвращает первое найденное строковое поле из списка ключей или def
func (r RawRecord) StringOr(def string, keys ...string) string {
	for _, k := range keys {
		if s, ok := r.String(k); ok {
			return s
		}
	}
	return def
}

// NonEmptyString возвращает первое непустое строковое поле из списка ключей
func (r RawRecord) NonEmptyString(keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := r.String(k); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// Record возвращает вложенный документ
func (r RawRecord) Record(key string) (RawRecord, bool) {
	v, ok := r.Lookup(key)
	if !ok {
		return nil, false
	}
	m, ok := asMap(v)
	return RawRecord(m), ok
}

// List возвращает поле-массив
func (r RawRecord) List(key string) ([]any, bool) {
	v, ok := r.Lookup(key)
	if !ok {
		return nil, false
	}
	return asList(v)
}

// Int возвращает целочисленное поле
func (r RawRecord) Int(key string) (int, bool) {
	v, ok := r.Lookup(key)
	if !ok {
		return 0, false
	}
	n, ok := asInt64(v)
	return int(n), ok
}

// Time возвращает поле-время в UTC. Нераспознанные значения дают нулевое время.
func (r RawRecord) Time(keys ...string) time.Time {
	for _, k := range keys {
		v, ok := r.Lookup(k)
		if !ok {
			continue
		}
		if t, ok := ParseTime(v); ok {
			return t
		}
	}
	return time.Time{}
}

// ParseTime распознает время в форматах time.Time, RFC3339, unix-миллисекунды
// и {seconds, nanoseconds}
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	}

	if ms, ok := asInt64(v); ok {
		return time.UnixMilli(ms).UTC(), true
	}

	if m, ok := asMap(v); ok {
		rec := RawRecord(m)
		secs, ok := rec.Int("seconds")
		if !ok {
			secs, ok = rec.Int("_seconds")
		}
		if !ok {
			return time.Time{}, false
		}
		nanos, ok := rec.Int("nanoseconds")
		if !ok {
			nanos, _ = rec.Int("_nanoseconds")
		}
		return time.Unix(int64(secs), int64(nanos)).UTC(), true
	}

	return time.Time{}, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, m != nil
	case RawRecord:
		return map[string]any(m), m != nil
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float32:
		return int64(n), !math.IsNaN(float64(n))
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	}
	return 0, false
}

// stringify приводит скалярное значение к строке
func stringify(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
