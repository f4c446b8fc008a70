package models

import "time"

// HistoryEvent — запись в ограниченном журнале исполненных/неудачных команд.
// Ничего не падает молча: любой исход копирования попадает сюда с
// человекочитаемой причиной.
type HistoryEvent struct {
	ID        int       `json:"id" db:"id"`
	Status    string    `json:"status" db:"status"` // success, error
	Master    string    `json:"master" db:"master_agent_id"`
	Slave     string    `json:"slave" db:"slave_agent_id"`
	Action    string    `json:"action" db:"action"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Volume    float64   `json:"volume" db:"volume"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Статусы записи истории
const (
	HistoryStatusSuccess = "success"
	HistoryStatusError   = "error"
)
