package websocket

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/rajivgeraev/skillswap-api/internal/utils"
)

// Конфигурация WebSocket-соединения
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Доступ ограничен токеном оператора
	},
}

// NewRouter возвращает маршруты потока прогресса миграции
func NewRouter(manager *Manager, jwtService *utils.JWTService) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/ws/migration", manager.handleConnections(jwtService))
	router.HandleFunc("/ws/migration/{collection}", manager.handleConnections(jwtService))
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "clients": manager.ClientCount()})
	}).Methods(http.MethodGet)

	return router
}

// handleConnections проверяет токен оператора и устанавливает WebSocket-соединение
func (m *Manager) handleConnections(jwtService *utils.JWTService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token, _ = utils.BearerToken(r.Header.Get("Authorization"))
		}
		if token == "" {
			http.Error(w, "Missing token", http.StatusUnauthorized)
			return
		}

		operatorID, err := jwtService.ExtractOperatorID(token)
		if err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			m.logger.Error().Err(err).Msg("Ошибка при установке WebSocket-соединения")
			return
		}

		client := NewClient(operatorID, mux.Vars(r)["collection"], conn, m)
		client.Start()
	}
}
