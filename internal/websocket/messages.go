package websocket

import (
	"time"

	"copytrade/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeHistoryEvent - новая запись журнала копирования.
	// Отправляется на каждый исход команды: успех и ошибка.
	MessageTypeHistoryEvent MessageType = "historyEvent"

	// MessageTypeLivenessUpdate - смена статуса агента (online/offline).
	// Отправляется на heartbeat нового агента и при протухании grace-окна.
	MessageTypeLivenessUpdate MessageType = "livenessUpdate"

	// MessageTypeBalanceUpdate - свежий снимок баланса агента
	MessageTypeBalanceUpdate MessageType = "balanceUpdate"

	// MessageTypeQueueUpdate - изменение глубины очереди агента
	MessageTypeQueueUpdate MessageType = "queueUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// HistoryEventMessage - сообщение о новой записи журнала
type HistoryEventMessage struct {
	BaseMessage
	Data *models.HistoryEvent `json:"data"`
}

// LivenessUpdateMessage - сообщение о смене статуса агента
type LivenessUpdateMessage struct {
	BaseMessage
	AgentID string `json:"agent_id"`
	Status  string `json:"status"` // online, offline
}

// BalanceUpdateMessage - сообщение со снимком баланса агента
type BalanceUpdateMessage struct {
	BaseMessage
	AgentID string             `json:"agent_id"`
	Balance models.BalanceInfo `json:"balance"`
}

// QueueUpdateMessage - сообщение о глубине очереди агента
type QueueUpdateMessage struct {
	BaseMessage
	AgentID string `json:"agent_id"`
	Pending int    `json:"pending"`
	Total   int    `json:"total"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now()}
}
