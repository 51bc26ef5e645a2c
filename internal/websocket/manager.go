package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rajivgeraev/skillswap-api/internal/migration"
)

// AllCollections тема подписки на события всех коллекций
const AllCollections = "*"

// EventType определяет тип события WebSocket
type EventType string

const (
	EventConnected  EventType = "connected"
	EventSubscribed EventType = "subscribed"
	EventProgress   EventType = "progress"
	EventSubscribe  EventType = "subscribe"
)

// Event представляет структуру сообщения для WebSocket
type Event struct {
	Type       EventType       `json:"type"`
	Collection string          `json:"collection,omitempty"`
	RunID      string          `json:"run_id,omitempty"`
	OperatorID string          `json:"operator_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Manager рассылает ход миграции подключенным операторам
type Manager struct {
	clients      map[uuid.UUID]*Client
	clientsMutex sync.RWMutex
	topics       map[string]map[uuid.UUID]bool // collection -> map[clientID]bool
	topicMutex   sync.RWMutex
	logger       zerolog.Logger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewManager создает новый экземпляр Manager
func NewManager(logger zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		clients: make(map[uuid.UUID]*Client),
		topics:  make(map[string]map[uuid.UUID]bool),
		logger:  logger.With().Str("component", "progress_ws").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddClient регистрирует нового клиента
func (m *Manager) AddClient(client *Client) {
	m.clientsMutex.Lock()
	m.clients[client.ID] = client
	m.clientsMutex.Unlock()

	m.Subscribe(client.ID, client.Topic())
	m.logger.Info().Str("client_id", client.ID.String()).Str("operator", client.OperatorID).
		Msg("WebSocket клиент подключен")
}

// RemoveClient удаляет клиента
func (m *Manager) RemoveClient(clientID uuid.UUID) {
	m.clientsMutex.Lock()
	client, exists := m.clients[clientID]
	delete(m.clients, clientID)
	m.clientsMutex.Unlock()

	if !exists {
		return
	}

	m.topicMutex.Lock()
	m.unsubscribeLocked(clientID)
	m.topicMutex.Unlock()

	m.logger.Info().Str("client_id", clientID.String()).Str("operator", client.OperatorID).
		Msg("WebSocket клиент отключен")
}

// Subscribe переводит клиента на тему коллекции
func (m *Manager) Subscribe(clientID uuid.UUID, topic string) {
	if topic == "" {
		topic = AllCollections
	}

	m.topicMutex.Lock()
	defer m.topicMutex.Unlock()

	m.unsubscribeLocked(clientID)
	if _, ok := m.topics[topic]; !ok {
		m.topics[topic] = make(map[uuid.UUID]bool)
	}
	m.topics[topic][clientID] = true
}

func (m *Manager) unsubscribeLocked(clientID uuid.UUID) {
	for topic, ids := range m.topics {
		delete(ids, clientID)
		// Пустую тему удаляем
		if len(ids) == 0 {
			delete(m.topics, topic)
		}
	}
}

// ClientCount количество подключенных клиентов
func (m *Manager) ClientCount() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

// Broadcast отправляет событие миграции подписчикам коллекции и всех коллекций
func (m *Manager) Broadcast(ev migration.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		m.logger.Error().Err(err).Msg("Ошибка сериализации события")
		return
	}

	event := Event{
		Type:       EventProgress,
		Collection: ev.Collection,
		RunID:      ev.RunID,
		Timestamp:  ev.Time,
		Payload:    payload,
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		m.logger.Error().Err(err).Msg("Ошибка сериализации события")
		return
	}

	for _, client := range m.recipients(ev.Collection) {
		select {
		case client.send <- eventJSON:
			// Сообщение добавлено в очередь отправки
		default:
			// Клиент не успевает читать, закрываем соединение
			m.logger.Warn().Str("client_id", client.ID.String()).Msg("Очередь клиента заполнена, соединение закрыто")
			client.conn.Close()
			m.RemoveClient(client.ID)
		}
	}
}

func (m *Manager) recipients(collection string) []*Client {
	ids := make(map[uuid.UUID]bool)
	m.topicMutex.RLock()
	for _, topic := range []string{collection, AllCollections} {
		for id := range m.topics[topic] {
			ids[id] = true
		}
	}
	m.topicMutex.RUnlock()

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	out := make([]*Client, 0, len(ids))
	for id := range ids {
		if c, ok := m.clients[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Run пересылает события движка клиентам до закрытия канала или Shutdown
func (m *Manager) Run(events <-chan migration.Event) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.Broadcast(ev)
		}
	}
}

// Shutdown корректно завершает работу менеджера WebSocket
func (m *Manager) Shutdown() {
	m.cancel()

	m.clientsMutex.Lock()
	for _, client := range m.clients {
		client.conn.Close()
	}
	m.clients = make(map[uuid.UUID]*Client)
	m.clientsMutex.Unlock()

	m.topicMutex.Lock()
	m.topics = make(map[string]map[uuid.UUID]bool)
	m.topicMutex.Unlock()
}
