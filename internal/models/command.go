package models

import "time"

// CommandPayload — уже транслированная инструкция для одного slave-агента.
// Селекторы позиции для CLOSE/MODIFY разрешаются по приоритету:
// ticket > comment (COPY_<orderRef>) > index > symbol+volume > symbol.
// Символьные селекторы (index, symbol) применяются только для MODIFY:
// закрытие подобранной по символу позиции необратимо.
type CommandPayload struct {
	Action     string  `json:"action"` // BUY, SELL, MODIFY, CLOSE, CLOSE_SYMBOL
	Symbol     string  `json:"symbol"`
	Volume     float64 `json:"volume,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	OrderType  string  `json:"order_type,omitempty"`
	Price      float64 `json:"price,omitempty"`

	// Селекторы для CLOSE/MODIFY
	Ticket  int64  `json:"ticket,omitempty"`
	Index   int    `json:"index,omitempty"`
	Comment string `json:"comment,omitempty"` // COPY_<orderRef>

	// Контекст копирования
	OrderRef string `json:"order_ref,omitempty"`
	PairID   int    `json:"pair_id,omitempty"`
	CopyFrom string `json:"copy_from,omitempty"` // master agent id
}

// QueuedCommand — команда в очереди relay для одного агента
type QueuedCommand struct {
	ID            string         `json:"queue_id"`
	TargetAgentID string         `json:"account"`
	Payload       CommandPayload `json:"payload"`
	State         string         `json:"state"`
	Attempts      int            `json:"attempts"`
	EnqueuedAt    time.Time      `json:"enqueued_at"`
	DeliveredAt   time.Time      `json:"delivered_at,omitempty"`
}

// Действия команд
const (
	ActionBuy         = "BUY"
	ActionSell        = "SELL"
	ActionModify      = "MODIFY"
	ActionClose       = "CLOSE"
	ActionCloseSymbol = "CLOSE_SYMBOL"
)

// Состояния команды в очереди
const (
	CommandStatePending   = "pending"
	CommandStateDelivered = "delivered"
	CommandStateAcked     = "acked"
	CommandStateFailed    = "failed"
)

// CopyComment формирует корреляционный комментарий slave-ордера по orderRef
func CopyComment(orderRef string) string {
	return "COPY_" + orderRef
}
