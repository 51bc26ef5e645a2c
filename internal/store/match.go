package store

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

// Resolve возвращает значения поля по пути через точку. Массивы на промежуточных
// шагах раскрываются поэлементно, expanded сообщает, было ли такое раскрытие.
func Resolve(data map[string]any, path string) (values []any, expanded bool) {
	current := []any{data}
	for _, part := range strings.Split(path, ".") {
		var next []any
		for _, v := range current {
			switch node := v.(type) {
			case map[string]any:
				if child, ok := node[part]; ok {
					next = append(next, child)
				}
			case []any:
				expanded = true
				for _, item := range node {
					if m, ok := item.(map[string]any); ok {
						if child, ok := m[part]; ok {
							next = append(next, child)
						}
					}
				}
			}
		}
		current = next
		if len(current) == 0 {
			return nil, expanded
		}
	}
	return current, expanded
}

// Matches проверяет документ на соответствие условию
func Matches(data map[string]any, c Constraint) bool {
	values, expanded := Resolve(data, c.Field)

	switch c.Operator {
	case OpArrayContains:
		for _, v := range values {
			if list, ok := v.([]any); ok {
				for _, item := range list {
					if Equal(item, c.Value) {
						return true
					}
				}
				continue
			}
			if list, ok := v.([]string); ok {
				for _, item := range list {
					if Equal(item, c.Value) {
						return true
					}
				}
				continue
			}
			if expanded && Equal(v, c.Value) {
				return true
			}
		}
		return false

	case OpIn:
		for _, v := range values {
			for _, candidate := range InValues(c.Value) {
				if Equal(v, candidate) {
					return true
				}
			}
		}
		return false

	case OpNotEqual:
		if len(values) == 0 {
			return false
		}
		for _, v := range values {
			if Equal(v, c.Value) {
				return false
			}
		}
		return true

	case OpEqual:
		for _, v := range values {
			if Equal(v, c.Value) {
				return true
			}
		}
		return false
	}

	for _, v := range values {
		cmp, ok := Compare(v, c.Value)
		if !ok {
			continue
		}
		switch c.Operator {
		case OpLess:
			if cmp < 0 {
				return true
			}
		case OpLessEqual:
			if cmp <= 0 {
				return true
			}
		case OpGreater:
			if cmp > 0 {
				return true
			}
		case OpGreaterEqual:
			if cmp >= 0 {
				return true
			}
		}
	}
	return false
}

// MatchesAll проверяет все условия
func MatchesAll(data map[string]any, where []Constraint) bool {
	for _, c := range where {
		if !Matches(data, c) {
			return false
		}
	}
	return true
}

// Equal сравнивает значения с приведением чисел и времени
func Equal(a, b any) bool {
	return reflect.DeepEqual(scalar(a), scalar(b))
}

// Compare упорядочивает числа, строки и время. ok=false для несравнимых значений.
func Compare(a, b any) (int, bool) {
	sa, sb := scalar(a), scalar(b)
	switch x := sa.(type) {
	case float64:
		y, ok := sb.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, ok := sb.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := sb.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func scalar(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return n.String()
		}
		return f
	case time.Time:
		return float64(n.UnixNano())
	case []string:
		out := make([]any, len(n))
		for i, s := range n {
			out[i] = s
		}
		return out
	}
	return v
}
