package migration

import (
	"sort"
	"sync"

	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// snapshots исходные версии документов, записанных за запуск.
// По ним выполняется откат.
type snapshots struct {
	mu         sync.Mutex
	collection string
	images     map[string]map[string]any
}

func newSnapshots(collection string) *snapshots {
	return &snapshots{collection: collection, images: make(map[string]map[string]any)}
}

// add запоминает исходные данные. Первая версия документа не перезаписывается.
func (s *snapshots) add(images map[string]map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, data := range images {
		if _, ok := s.images[id]; !ok {
			s.images[id] = data
		}
	}
}

func (s *snapshots) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}

// restoreOps операции восстановления, разбитые на пакеты по size
func (s *snapshots) restoreOps(size int) [][]store.WriteOp {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.images))
	for id := range s.images {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var chunks [][]store.WriteOp
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunk := make([]store.WriteOp, 0, end-start)
		for _, id := range ids[start:end] {
			chunk = append(chunk, store.WriteOp{
				Kind:       store.WriteSet,
				Collection: s.collection,
				ID:         id,
				Data:       s.images[id],
			})
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
