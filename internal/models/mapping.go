package models

import "time"

// OrderMapping связывает логический ордер master (orderRef) с текущим тикетом
// позиции на slave. Тикет может смениться после частичного закрытия: остаток
// позиции часто перевыставляется площадкой под новым тикетом.
// Инвариант: не более одного живого mapping на ключ (pairID, slaveAgentID, orderRef).
type OrderMapping struct {
	PairID       int       `json:"pair_id"`
	SlaveAgentID string    `json:"slave_agent_id"`
	OrderRef     string    `json:"order_ref"`
	SlaveTicket  int64     `json:"slave_ticket"`
	Symbol       string    `json:"symbol"`
	Volume       float64   `json:"volume"`
	UpdatedAt    time.Time `json:"updated_at"`
}
