package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Максимальное время ожидания для pong от клиента
	pongWait = 60 * time.Second

	// Отправлять ping-сообщения клиенту с этим интервалом
	pingPeriod = (pongWait * 9) / 10

	// Время на запись одного сообщения
	writeWait = 10 * time.Second

	// От оператора приходят только команды подписки
	maxMessageSize = 4 * 1024

	// Размер буфера для отправляемых сообщений
	writeBufferSize = 256
)

// Client представляет собой отдельное WebSocket соединение оператора
type Client struct {
	ID         uuid.UUID
	OperatorID string
	conn       *websocket.Conn
	send       chan []byte // Буферизованный канал исходящих сообщений
	manager    *Manager
	closeChan  chan struct{}

	mu    sync.Mutex
	topic string
}

// NewClient создает новый экземпляр Client
func NewClient(operatorID, topic string, conn *websocket.Conn, manager *Manager) *Client {
	if topic == "" {
		topic = AllCollections
	}
	return &Client{
		ID:         uuid.New(),
		OperatorID: operatorID,
		conn:       conn,
		send:       make(chan []byte, writeBufferSize),
		manager:    manager,
		closeChan:  make(chan struct{}),
		topic:      topic,
	}
}

// Topic коллекция, на которую подписан клиент
func (c *Client) Topic() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topic
}

// Start запускает клиентские горутины для чтения и записи
func (c *Client) Start() {
	c.manager.AddClient(c)
	c.reply(Event{Type: EventConnected, Collection: c.Topic(), OperatorID: c.OperatorID})

	go c.readPump()
	go c.writePump()
}

// readPump обрабатывает входящие сообщения от клиента
func (c *Client) readPump() {
	defer func() {
		c.manager.RemoveClient(c.ID)
		c.conn.Close()
		close(c.closeChan)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.logger.Warn().Err(err).Str("client_id", c.ID.String()).Msg("Неожиданное закрытие соединения")
			}
			break
		}

		c.handleIncomingMessage(message)
	}
}

// writePump отправляет сообщения клиенту
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.manager.logger.Debug().Err(err).Str("client_id", c.ID.String()).Msg("Ошибка отправки сообщения")
				return
			}
		case <-ticker.C:
			// Отправляем ping для поддержания соединения
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeChan:
			return
		}
	}
}

// handleIncomingMessage обрабатывает команды оператора
func (c *Client) handleIncomingMessage(message []byte) {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		c.manager.logger.Debug().Err(err).Msg("Некорректное сообщение от клиента")
		return
	}

	switch event.Type {
	case EventSubscribe:
		topic := event.Collection
		if topic == "" {
			topic = AllCollections
		}
		c.mu.Lock()
		c.topic = topic
		c.mu.Unlock()

		c.manager.Subscribe(c.ID, topic)
		c.reply(Event{Type: EventSubscribed, Collection: topic, OperatorID: c.OperatorID})
	default:
		c.manager.logger.Debug().Str("type", string(event.Type)).Msg("Необработанный тип события")
	}
}

func (c *Client) reply(event Event) {
	event.Timestamp = time.Now().UTC()
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
