package models

import "time"

// TradeEvent представляет дискретное торговое событие от master-агента.
// OrderRef — стабильный идемпотентный ключ позиции: не меняется за всю жизнь
// позиции, включая частичные закрытия.
type TradeEvent struct {
	SourceAgentID string    `json:"account"`
	OrderRef      string    `json:"order_id"`
	Kind          string    `json:"event"`
	Symbol        string    `json:"symbol"`
	Direction     string    `json:"type"`       // buy, sell
	Volume        float64   `json:"volume"`     // лоты
	TakeProfit    float64   `json:"tp"`
	StopLoss      float64   `json:"sl"`
	OrderStyle    string    `json:"order_type"` // market, limit, stop
	Price         float64   `json:"price"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Типы событий
const (
	EventOpen         = "open"
	EventClose        = "close"
	EventPartialClose = "partial_close"
	EventModify       = "modify"
)

// Направления сделки
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
)

// Типы ордеров
const (
	OrderStyleMarket = "market"
	OrderStyleLimit  = "limit"
	OrderStyleStop   = "stop"
)

// ValidEventKind проверяет известность типа события
func ValidEventKind(kind string) bool {
	switch kind {
	case EventOpen, EventClose, EventPartialClose, EventModify:
		return true
	}
	return false
}

// ValidDirection проверяет известность направления
func ValidDirection(dir string) bool {
	return dir == DirectionBuy || dir == DirectionSell
}
