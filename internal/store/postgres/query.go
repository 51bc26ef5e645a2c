package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// builder собирает SQL с позиционными параметрами
type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) jsonArg(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации значения условия: %w", err)
	}
	return b.arg(string(raw)) + "::jsonb", nil
}

// tableName возвращает экранированное имя таблицы коллекции
func tableName(collection string) string {
	return pq.QuoteIdentifier(collection)
}

// pathExpr выражение jsonb для пути через точку
func (b *builder) pathExpr(parts []string) string {
	return "data #> " + b.arg(parts) + "::text[]"
}

// buildQuery переводит store.Query в SQL над таблицей (id text, data jsonb)
func buildQuery(q store.Query) (string, []any, error) {
	b := &builder{}
	var where []string

	for _, c := range q.Where {
		if err := c.Validate(); err != nil {
			return "", nil, err
		}
		clause, err := b.constraint(c)
		if err != nil {
			return "", nil, err
		}
		where = append(where, clause)
	}

	if q.StartAfter != "" {
		where = append(where, "id > "+b.arg(q.StartAfter))
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, data FROM ")
	sb.WriteString(tableName(q.Collection))
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	order := make([]string, 0, len(q.OrderBy)+1)
	for _, o := range q.OrderBy {
		dir := "ASC"
		if o.Direction == store.Desc {
			dir = "DESC"
		}
		if o.Field == "id" {
			order = append(order, "id "+dir)
			continue
		}
		order = append(order, b.pathExpr(strings.Split(o.Field, "."))+" "+dir)
	}
	order = append(order, "id ASC")
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(order, ", "))

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.arg(q.Limit))
	}

	return sb.String(), b.args, nil
}

func (b *builder) constraint(c store.Constraint) (string, error) {
	parts := strings.Split(c.Field, ".")

	switch c.Operator {
	case store.OpArrayContains:
		return b.arrayContains(parts, c.Value)

	case store.OpIn:
		values := store.InValues(c.Value)
		if len(values) == 0 {
			return "FALSE", nil
		}
		path := b.pathExpr(parts)
		alts := make([]string, 0, len(values))
		for _, v := range values {
			val, err := b.jsonArg(v)
			if err != nil {
				return "", err
			}
			alts = append(alts, path+" = "+val)
		}
		return "(" + strings.Join(alts, " OR ") + ")", nil
	}

	if c.Field == "id" {
		if s, ok := c.Value.(string); ok {
			return "id " + sqlOperator(c.Operator) + " " + b.arg(s), nil
		}
	}

	val, err := b.jsonArg(c.Value)
	if err != nil {
		return "", err
	}
	return b.pathExpr(parts) + " " + sqlOperator(c.Operator) + " " + val, nil
}

// arrayContains перебирает все варианты, где массивом является один из префиксов пути:
// для "a.b" это data#>'{a,b}' @> '[v]' или data#>'{a}' @> '[{"b": v}]'
func (b *builder) arrayContains(parts []string, value any) (string, error) {
	alts := make([]string, 0, len(parts))
	for k := len(parts); k >= 1; k-- {
		var element any = value
		for i := len(parts) - 1; i >= k; i-- {
			element = map[string]any{parts[i]: element}
		}
		val, err := b.jsonArg([]any{element})
		if err != nil {
			return "", err
		}
		alts = append(alts, b.pathExpr(parts[:k])+" @> "+val)
	}
	return "(" + strings.Join(alts, " OR ") + ")", nil
}

func sqlOperator(op string) string {
	switch op {
	case store.OpEqual:
		return "="
	case store.OpNotEqual:
		return "<>"
	}
	return op
}
