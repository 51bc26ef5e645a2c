package migration

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/normalize"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// Transform преобразует документ в новый формат. Возврат ErrSkipDocument
// или nil-данных означает, что документ переписывать не нужно.
type Transform func(doc store.Document) (map[string]any, error)

// ErrSkipDocument документ уже в актуальном формате
var ErrSkipDocument = errors.New("документ уже в актуальном формате")

// ErrUnreadableMessage сообщение нельзя привести к новому формату
var ErrUnreadableMessage = errors.New("сообщение не читается")

var transforms = map[string]Transform{
	"trades":        TradeTransform,
	"conversations": ConversationTransform,
	"messages":      MessageTransform,
}

// TransformFor возвращает встроенное преобразование для коллекции
func TransformFor(collection string) (Transform, error) {
	t, ok := transforms[collection]
	if !ok {
		return nil, fmt.Errorf("нет преобразования для коллекции %q", collection)
	}
	return t, nil
}

// TransformNames имена встроенных преобразований
func TransformNames() []string {
	names := make([]string, 0, len(transforms))
	for name := range transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TradeTransform переводит обмен в двойной формат версии 2
func TradeTransform(doc store.Document) (map[string]any, error) {
	if current(doc) {
		return nil, ErrSkipDocument
	}
	t, err := normalize.Trade(doc.Data)
	if err != nil {
		return nil, err
	}
	if t.ID == "" {
		t.ID = doc.ID
	}
	t.SchemaVersion = models.CurrentSchemaVersion
	return merge(doc.Data, t.ToDocument()), nil
}

// ConversationTransform переводит чат в двойной формат версии 2
func ConversationTransform(doc store.Document) (map[string]any, error) {
	if current(doc) {
		return nil, ErrSkipDocument
	}
	conv, err := normalize.Conversation(doc.Data)
	if err != nil {
		return nil, err
	}
	if conv.ID == "" {
		conv.ID = doc.ID
	}
	conv.SchemaVersion = models.CurrentSchemaVersion
	return merge(doc.Data, conv.ToDocument()), nil
}

// MessageTransform дописывает сообщению современные поля
func MessageTransform(doc store.Document) (map[string]any, error) {
	if doc.Data == nil {
		return nil, normalize.ErrNullEntity
	}
	if current(doc) {
		return nil, ErrSkipDocument
	}

	msg := normalize.Message(doc.Data)
	if msg.Type == models.MessageSystem && msg.Content == normalize.UnreadableMessageContent {
		if raw, _ := normalize.RawRecord(doc.Data).String("content"); raw != normalize.UnreadableMessageContent {
			return nil, fmt.Errorf("%w: %s", ErrUnreadableMessage, doc.ID)
		}
	}
	if msg.ID == "" {
		msg.ID = doc.ID
	}

	out := merge(doc.Data, msg.ToDocument())
	out["schemaVersion"] = models.CurrentSchemaVersion
	return out, nil
}

func current(doc store.Document) bool {
	v, ok := normalize.RawRecord(doc.Data).Int("schemaVersion")
	return ok && v >= models.CurrentSchemaVersion
}

// merge сохраняет поля исходного документа, о которых модель не знает
func merge(raw, normalized map[string]any) map[string]any {
	out := store.CloneData(raw)
	if out == nil {
		out = make(map[string]any, len(normalized))
	}
	for k, v := range normalized {
		out[k] = v
	}
	return out
}
