package migration

import (
	"sync"
	"time"
)

// EventType тип события миграции
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventBatchCompleted EventType = "batch_completed"
	EventHealthPause    EventType = "health_pause"
	EventStopRequested  EventType = "stop_requested"
	EventRunFinished    EventType = "run_finished"
)

// Event событие хода миграции для подписчиков
type Event struct {
	Type       EventType `json:"type"`
	RunID      string    `json:"runId"`
	Collection string    `json:"collection"`
	State      State     `json:"state"`
	Batch      int       `json:"batch,omitempty"`
	Total      int64     `json:"total"`
	Processed  int64     `json:"processed"`
	Failed     int64     `json:"failed"`
	ErrorRate  float64   `json:"errorRate"`
	Message    string    `json:"message,omitempty"`
	Time       time.Time `json:"time"`
}

// publisher рассылает события подписчикам. Медленный подписчик теряет события,
// движок не ждет его.
type publisher struct {
	mu   sync.RWMutex
	next int
	subs map[int]chan Event
}

func newPublisher() *publisher {
	return &publisher{subs: make(map[int]chan Event)}
}

func (p *publisher) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	p.mu.Lock()
	id := p.next
	p.next++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

func (p *publisher) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
