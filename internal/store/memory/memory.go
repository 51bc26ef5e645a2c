// Package memory хранилище документов в памяти процесса. Используется в режиме
// STORE_DRIVER=memory и в тестах, поддерживает внедрение отказов.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// Hooks функции внедрения отказов. Ненулевая ошибка прерывает операцию до изменения данных.
type Hooks struct {
	OnGet        func(collection, id string) error
	OnQuery      func(q store.Query) error
	OnBatchWrite func(ops []store.WriteOp) error
	OnPing       func() error
}

// Store хранилище документов в памяти
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	hooks       Hooks
	writes      int
}

// New создает пустое хранилище
func New() *Store {
	return &Store{collections: map[string]map[string]map[string]any{}}
}

// SetHooks устанавливает функции внедрения отказов
func (s *Store) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// Seed записывает документы без проверок и хуков
func (s *Store) Seed(collection string, docs ...store.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collection(collection)
	for _, d := range docs {
		coll[d.ID] = store.CloneData(d.Data)
	}
}

// BatchWrites количество успешно примененных пакетов
func (s *Store) BatchWrites() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Get возвращает копию документа или nil
func (s *Store) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.hooks.OnGet != nil {
		if err := s.hooks.OnGet(collection, id); err != nil {
			return nil, err
		}
	}

	data, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return &store.Document{ID: id, Data: store.CloneData(data)}, nil
}

// Query выполняет запрос с фильтрацией, сортировкой и курсором
func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, c := range q.Where {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.hooks.OnQuery != nil {
		if err := s.hooks.OnQuery(q); err != nil {
			return nil, err
		}
	}

	docs := []store.Document{}
	for id, data := range s.collections[q.Collection] {
		if q.StartAfter != "" && id <= q.StartAfter {
			continue
		}
		if !store.MatchesAll(data, q.Where) {
			continue
		}
		docs = append(docs, store.Document{ID: id, Data: store.CloneData(data)})
	}

	sortDocuments(docs, q.OrderBy)

	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

// BatchWrite применяет операции атомарно: при любой ошибке данные не меняются
func (s *Store) BatchWrite(ctx context.Context, ops []store.WriteOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hooks.OnBatchWrite != nil {
		if err := s.hooks.OnBatchWrite(ops); err != nil {
			return err
		}
	}

	for _, op := range ops {
		if op.Kind != store.WriteUpdate {
			continue
		}
		if _, ok := s.collections[op.Collection][op.ID]; !ok {
			return fmt.Errorf("%w: документ %s/%s не найден для обновления", store.ErrPermanentWrite, op.Collection, op.ID)
		}
	}

	for _, op := range ops {
		coll := s.collection(op.Collection)
		switch op.Kind {
		case store.WriteSet:
			coll[op.ID] = store.CloneData(op.Data)
		case store.WriteUpdate:
			existing := coll[op.ID]
			for k, v := range op.Data {
				existing[k] = store.CloneValue(v)
			}
		case store.WriteDelete:
			delete(coll, op.ID)
		}
	}
	s.writes++
	return nil
}

// Count возвращает количество документов в коллекции
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.collections[collection])), nil
}

// Ping проверяет доступность хранилища
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hooks.OnPing != nil {
		return s.hooks.OnPing()
	}
	return nil
}

// CollectionExists сообщает, создана ли коллекция
func (s *Store) CollectionExists(ctx context.Context, collection string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection]
	return ok, nil
}

func (s *Store) collection(name string) map[string]map[string]any {
	coll, ok := s.collections[name]
	if !ok {
		coll = map[string]map[string]any{}
		s.collections[name] = coll
	}
	return coll
}

// sortDocuments сортирует по заданным полям, затем по ID
func sortDocuments(docs []store.Document, orderBy []store.OrderBy) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range orderBy {
			cmp := compareField(docs[i], docs[j], o.Field)
			if cmp == 0 {
				continue
			}
			if o.Direction == store.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return docs[i].ID < docs[j].ID
	})
}

func compareField(a, b store.Document, field string) int {
	if field == "id" || field == "__name__" {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	}

	av, _ := store.Resolve(a.Data, field)
	bv, _ := store.Resolve(b.Data, field)
	switch {
	case len(av) == 0 && len(bv) == 0:
		return 0
	case len(av) == 0:
		return -1
	case len(bv) == 0:
		return 1
	}
	cmp, _ := store.Compare(av[0], bv[0])
	return cmp
}
