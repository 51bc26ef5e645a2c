package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/skillswap-api/internal/store"
)

func TestBuildQueryPagination(t *testing.T) {
	sql, args, err := buildQuery(store.Query{
		Collection: "trades",
		StartAfter: "t10",
		Limit:      50,
	})
	require.NoError(t, err)

	assert.Equal(t, `SELECT id, data FROM "trades" WHERE id > $1 ORDER BY id ASC LIMIT $2`, sql)
	assert.Equal(t, []any{"t10", 50}, args)
}

func TestBuildQueryConstraints(t *testing.T) {
	sql, args, err := buildQuery(store.Query{
		Collection: "trades",
		Where: []store.Constraint{
			{Field: "participants.creator", Operator: store.OpEqual, Value: "u1"},
			{Field: "status", Operator: store.OpIn, Value: []any{"active", "draft"}},
		},
		OrderBy: []store.OrderBy{{Field: "createdAt", Direction: store.Desc}},
	})
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT id, data FROM "trades" WHERE data #> $1::text[] = $2::jsonb`+
			` AND (data #> $3::text[] = $4::jsonb OR data #> $3::text[] = $5::jsonb)`+
			` ORDER BY data #> $6::text[] DESC, id ASC`,
		sql)
	assert.Equal(t, []string{"participants", "creator"}, args[0])
	assert.Equal(t, `"u1"`, args[1])
}

func TestBuildQueryArrayContainsExpandsPrefixes(t *testing.T) {
	sql, args, err := buildQuery(store.Query{
		Collection: "trades",
		Where: []store.Constraint{
			{Field: "skillsOffered.name", Operator: store.OpArrayContains, Value: "Go"},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "data #> $1::text[] @> $2::jsonb OR data #> $3::text[] @> $4::jsonb")
	assert.Equal(t, []string{"skillsOffered", "name"}, args[0])
	assert.Equal(t, `["Go"]`, args[1])
	assert.Equal(t, []string{"skillsOffered"}, args[2])
	assert.Equal(t, `[{"name":"Go"}]`, args[3])
}

func TestBuildQueryRejectsBadConstraint(t *testing.T) {
	_, _, err := buildQuery(store.Query{
		Collection: "trades",
		Where:      []store.Constraint{{Field: "", Operator: store.OpEqual, Value: 1}},
	})
	require.Error(t, err)
}

func TestTableNameIsQuoted(t *testing.T) {
	assert.Equal(t, `"odd""name"`, tableName(`odd"name`))
}

func TestClassify(t *testing.T) {
	serialization := &pgconn.PgError{Code: "40001"}
	assert.ErrorIs(t, classify(fmt.Errorf("commit: %w", serialization)), store.ErrTransient)

	denied := &pgconn.PgError{Code: "42501"}
	assert.ErrorIs(t, classify(denied), store.ErrPermanentWrite)

	unique := &pgconn.PgError{Code: "23505"}
	assert.ErrorIs(t, classify(unique), store.ErrPermanentWrite)

	other := errors.New("other")
	assert.Equal(t, other, classify(other))
}
