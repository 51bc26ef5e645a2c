package mongo

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/rajivgeraev/skillswap-api/internal/store"
)

var comparisonOperators = map[string]string{
	store.OpNotEqual:     "$ne",
	store.OpLess:         "$lt",
	store.OpLessEqual:    "$lte",
	store.OpGreater:      "$gt",
	store.OpGreaterEqual: "$gte",
	store.OpIn:           "$in",
}

// buildFilter переводит условия в фильтр MongoDB. Путь через точку и
// array-contains MongoDB обрабатывает сам, в том числе через массивы.
func buildFilter(q store.Query) (bson.D, error) {
	var clauses bson.A

	for _, c := range q.Where {
		if err := c.Validate(); err != nil {
			return nil, err
		}

		field := c.Field
		value := c.Value
		if field == "id" || field == "_id" {
			field = "_id"
			value = idValue(value)
		}

		switch c.Operator {
		case store.OpEqual, store.OpArrayContains:
			clauses = append(clauses, bson.D{{Key: field, Value: value}})
		case store.OpNotEqual:
			clauses = append(clauses, bson.D{{Key: field, Value: bson.D{
				{Key: "$exists", Value: true},
				{Key: "$ne", Value: value},
			}}})
		case store.OpIn:
			clauses = append(clauses, bson.D{{Key: field, Value: bson.D{
				{Key: "$in", Value: bson.A(store.InValues(value))},
			}}})
		default:
			clauses = append(clauses, bson.D{{Key: field, Value: bson.D{
				{Key: comparisonOperators[c.Operator], Value: value},
			}}})
		}
	}

	if q.StartAfter != "" {
		clauses = append(clauses, bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: docKey(q.StartAfter)}}}})
	}

	if len(clauses) == 0 {
		return bson.D{}, nil
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

func buildSort(orderBy []store.OrderBy) bson.D {
	sort := bson.D{}
	byID := false
	for _, o := range orderBy {
		field := o.Field
		if field == "id" {
			field = "_id"
		}
		if field == "_id" {
			byID = true
		}
		dir := 1
		if o.Direction == store.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: field, Value: dir})
	}
	if !byID {
		sort = append(sort, bson.E{Key: "_id", Value: 1})
	}
	return sort
}
