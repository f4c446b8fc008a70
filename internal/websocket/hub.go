package websocket

import (
	"bytes"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"copytrade/internal/models"
)

// Пул буферов сериализации: broadcast идет на каждое событие
// копирования, аллокации на горячем пути не нужны
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями дашбордов.
//
// Дашборды - наблюдатели: hub только рассылает (журнал, живость,
// балансы), входящих команд по WebSocket нет. Агенты работают через
// poll/ack HTTP API и от hub не зависят.
//
// Использование:
//  1. hub := NewHub()
//  2. go hub.Run()
//  3. hub.BroadcastHistory(ev) / BroadcastLiveness / BroadcastBalance
type Hub struct {
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run запускает главный цикл Hub.
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			zap.L().Debug("dashboard client connected", zap.Int("total", h.ClientCount()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			zap.L().Debug("dashboard client disconnected", zap.Int("total", h.ClientCount()))

		case message := <-h.broadcast:
			// Копируем список клиентов под коротким RLock,
			// отправляем без блокировки
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Клиент не успевает читать - отключаем
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.mu.Unlock()
				zap.L().Warn("removed slow dashboard clients", zap.Int("removed", len(toRemove)))
			}
		}
	}
}

// Broadcast сериализует сообщение и отправляет всем клиентам
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		zap.L().Error("broadcast marshal failed", zap.Error(err))
		jsonBufferPool.Put(buf)
		return
	}

	// Encode добавляет trailing newline
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.broadcast <- msgCopy
}

// BroadcastHistory рассылает новую запись журнала копирования
func (h *Hub) BroadcastHistory(ev *models.HistoryEvent) {
	h.Broadcast(&HistoryEventMessage{
		BaseMessage: newBase(MessageTypeHistoryEvent),
		Data:        ev,
	})
}

// BroadcastLiveness рассылает смену статуса агента
func (h *Hub) BroadcastLiveness(agentID, status string) {
	h.Broadcast(&LivenessUpdateMessage{
		BaseMessage: newBase(MessageTypeLivenessUpdate),
		AgentID:     agentID,
		Status:      status,
	})
}

// BroadcastBalance рассылает свежий снимок баланса агента
func (h *Hub) BroadcastBalance(agentID string, balance models.BalanceInfo) {
	h.Broadcast(&BalanceUpdateMessage{
		BaseMessage: newBase(MessageTypeBalanceUpdate),
		AgentID:     agentID,
		Balance:     balance,
	})
}

// BroadcastQueueDepth рассылает глубину очереди агента
func (h *Hub) BroadcastQueueDepth(agentID string, pending, total int) {
	h.Broadcast(&QueueUpdateMessage{
		BaseMessage: newBase(MessageTypeQueueUpdate),
		AgentID:     agentID,
		Pending:     pending,
		Total:       total,
	})
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
