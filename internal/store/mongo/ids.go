package mongo

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// docKey восстанавливает тип _id. Документ хранит ID строкой, а старые
// коллекции MongoDB адресуются по ObjectID, поэтому hex из 24 символов
// снова становится ObjectID.
func docKey(id string) any {
	if len(id) != 24 {
		return id
	}
	if oid, err := bson.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

// idValue переводит значение условия по _id, включая списки для in
func idValue(v any) any {
	switch t := v.(type) {
	case string:
		return docKey(t)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = docKey(s)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = idValue(item)
		}
		return out
	}
	return v
}
