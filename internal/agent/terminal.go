package agent

import (
	"errors"

	"copytrade/internal/translator"
)

// Ошибки терминала
var (
	ErrPositionNotFound = errors.New("position not found in terminal")
	ErrTerminalOffline  = errors.New("trading terminal is not available")
)

// Position - открытая позиция в торговом терминале
type Position struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"` // buy, sell
	Volume     float64 `json:"volume"`
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
	OpenPrice  float64 `json:"open_price"`
	Comment    string  `json:"comment"`
}

// AccountInfo - состояние торгового счета
type AccountInfo struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
}

// OrderRequest - заявка на открытие позиции
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"` // buy, sell
	Volume     float64 `json:"volume"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	OrderType  string  `json:"order_type,omitempty"` // market, limit, stop
	Price      float64 `json:"price,omitempty"`
	Comment    string  `json:"comment"`
}

// Terminal абстрагирует торговый терминал (MT4/MT5 bridge, брокерский API).
//
// Мост к терминалу синхронный: каждая операция либо применена в
// терминале, либо вернула ошибку. Агент поверх этого строит
// идемпотентность и reconciliation.
type Terminal interface {
	// Positions возвращает все открытые позиции счета
	Positions() ([]Position, error)

	// PlaceOrder открывает позицию, возвращает тикет
	PlaceOrder(req OrderRequest) (int64, error)

	// ClosePosition закрывает позицию целиком или частично.
	// volume <= 0 закрывает весь объем.
	ClosePosition(ticket int64, volume float64) error

	// Modify выставляет TP/SL позиции
	Modify(ticket int64, takeProfit, stopLoss float64) error

	// AccountInfo возвращает состояние счета
	AccountInfo() (AccountInfo, error)

	// Instruments возвращает спецификации символов Market Watch
	Instruments() ([]translator.Instrument, error)
}
