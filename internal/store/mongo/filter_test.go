package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/rajivgeraev/skillswap-api/internal/store"
)

func TestBuildFilter(t *testing.T) {
	filter, err := buildFilter(store.Query{
		Collection: "trades",
		Where: []store.Constraint{
			{Field: "skillsOffered.name", Operator: store.OpArrayContains, Value: "Go"},
			{Field: "status", Operator: store.OpIn, Value: []string{"active"}},
			{Field: "schemaVersion", Operator: store.OpLess, Value: 2},
		},
		StartAfter: "t5",
	})
	require.NoError(t, err)

	assert.Equal(t, bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "skillsOffered.name", Value: "Go"}},
		bson.D{{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{"active"}}}}},
		bson.D{{Key: "schemaVersion", Value: bson.D{{Key: "$lt", Value: 2}}}},
		bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: "t5"}}}},
	}}}, filter)
}

func TestBuildFilterEmpty(t *testing.T) {
	filter, err := buildFilter(store.Query{Collection: "trades"})
	require.NoError(t, err)
	assert.Equal(t, bson.D{}, filter)
}

func TestBuildSortAppendsID(t *testing.T) {
	assert.Equal(t,
		bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}},
		buildSort([]store.OrderBy{{Field: "createdAt", Direction: store.Desc}}))
	assert.Equal(t,
		bson.D{{Key: "_id", Value: 1}},
		buildSort([]store.OrderBy{{Field: "id", Direction: store.Asc}}))
}

func TestToDocumentConvertsDriverTypes(t *testing.T) {
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	doc := toDocument(bson.M{
		"_id":           "c1",
		"participants":  bson.A{bson.D{{Key: "id", Value: "u1"}}},
		"createdAt":     bson.NewDateTimeFromTime(at),
		"schemaVersion": int32(2),
	})

	assert.Equal(t, "c1", doc.ID)
	assert.NotContains(t, doc.Data, "_id")
	assert.Equal(t, []any{map[string]any{"id": "u1"}}, doc.Data["participants"])
	assert.Equal(t, at, doc.Data["createdAt"])
	assert.Equal(t, int64(2), doc.Data["schemaVersion"])
}

func TestObjectIDKeysSurviveRoundTrip(t *testing.T) {
	oid := bson.NewObjectID()
	doc := toDocument(bson.M{"_id": oid, "title": "legacy"})
	require.Equal(t, oid.Hex(), doc.ID)

	assert.Equal(t, oid, docKey(doc.ID))
	assert.Equal(t, "t5", docKey("t5"))
	assert.Equal(t, "zzzzzzzzzzzzzzzzzzzzzzzz", docKey("zzzzzzzzzzzzzzzzzzzzzzzz"))

	filter, err := buildFilter(store.Query{Collection: "trades", StartAfter: doc.ID})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: oid}}}},
	}}}, filter)
}

func TestIDConstraintsUseObjectIDs(t *testing.T) {
	oid := bson.NewObjectID()
	filter, err := buildFilter(store.Query{
		Collection: "trades",
		Where: []store.Constraint{
			{Field: "id", Operator: store.OpEqual, Value: oid.Hex()},
			{Field: "id", Operator: store.OpIn, Value: []string{oid.Hex(), "t1"}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{oid, "t1"}}}}},
	}}}, filter)
}
