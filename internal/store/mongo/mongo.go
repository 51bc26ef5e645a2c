// Package mongo хранилище документов в MongoDB
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// Store хранилище документов поверх клиента MongoDB
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger zerolog.Logger
}

// Connect подключается к MongoDB и проверяет соединение
func Connect(ctx context.Context, uri, database string, logger zerolog.Logger) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ошибка проверки соединения с MongoDB: %w", err)
	}

	logger.Info().Str("database", database).Msg("✅ Успешное подключение к MongoDB")
	return &Store{client: client, db: client.Database(database), logger: logger}, nil
}

// Close отключает клиента
func (s *Store) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("⚠️ Ошибка отключения от MongoDB")
	}
}

// Get возвращает документ или nil
func (s *Store) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": docKey(id)}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("ошибка получения %s/%s: %w", collection, id, err))
	}
	return toDocument(raw), nil
}

// Query выполняет запрос
func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(buildSort(q.OrderBy))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := s.db.Collection(q.Collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(fmt.Errorf("ошибка запроса к %s: %w", q.Collection, err))
	}
	defer cursor.Close(ctx)

	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, classify(fmt.Errorf("ошибка чтения %s: %w", q.Collection, err))
	}

	docs := make([]store.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, *toDocument(row))
	}
	return docs, nil
}

// BatchWrite применяет операции в транзакции
func (s *Store) BatchWrite(ctx context.Context, ops []store.WriteOp) error {
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
	}

	session, err := s.client.StartSession()
	if err != nil {
		return classify(fmt.Errorf("ошибка открытия сессии: %w", err))
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		for _, op := range ops {
			coll := s.db.Collection(op.Collection)
			key := docKey(op.ID)
			switch op.Kind {
			case store.WriteSet:
				doc := withoutID(op.Data)
				doc["_id"] = key
				if _, err := coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true)); err != nil {
					return nil, err
				}
			case store.WriteUpdate:
				res, err := coll.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": withoutID(op.Data)})
				if err != nil {
					return nil, err
				}
				if res.MatchedCount == 0 {
					return nil, fmt.Errorf("%w: документ %s/%s не найден для обновления", store.ErrPermanentWrite, op.Collection, op.ID)
				}
			case store.WriteDelete:
				if _, err := coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return classify(fmt.Errorf("ошибка пакетной записи: %w", err))
	}
	return nil
}

// Count возвращает количество документов
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, classify(fmt.Errorf("ошибка подсчета %s: %w", collection, err))
	}
	return n, nil
}

// Ping проверяет соединение
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return classify(fmt.Errorf("ошибка проверки соединения с MongoDB: %w", err))
	}
	return nil
}

// CollectionExists проверяет наличие коллекции
func (s *Store) CollectionExists(ctx context.Context, collection string) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{"name": collection})
	if err != nil {
		return false, classify(fmt.Errorf("ошибка проверки коллекции %s: %w", collection, err))
	}
	return len(names) > 0, nil
}

func withoutID(data map[string]any) bson.M {
	doc := bson.M{}
	for k, v := range data {
		if k == "_id" {
			continue
		}
		doc[k] = v
	}
	return doc
}

func toDocument(raw bson.M) *store.Document {
	data := fromBSON(raw).(map[string]any)
	var id string
	switch v := data["_id"].(type) {
	case string:
		id = v
	case nil:
	default:
		id = fmt.Sprint(v)
	}
	delete(data, "_id")
	return &store.Document{ID: id, Data: data}
}

// fromBSON переводит значения драйвера в обычные map/slice и time.Time
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = fromBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromBSON(item)
		}
		return out
	case bson.DateTime:
		return t.Time().UTC()
	case bson.ObjectID:
		return t.Hex()
	case int32:
		return int64(t)
	}
	return v
}

// classify помечает ошибки драйвера как временные или постоянные
func classify(err error) error {
	if err == nil || errors.Is(err, store.ErrPermanentWrite) || errors.Is(err, store.ErrTransient) {
		return err
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", store.ErrTransient, err)
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		if serverErr.HasErrorLabel("TransientTransactionError") {
			return fmt.Errorf("%w: %w", store.ErrTransient, err)
		}
		// 13 Unauthorized, 121 DocumentValidationFailure
		if serverErr.HasErrorCode(13) || serverErr.HasErrorCode(121) || mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %w", store.ErrPermanentWrite, err)
		}
	}
	return err
}
