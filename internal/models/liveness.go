package models

import "time"

// AgentLivenessRecord — состояние живости агента и последний снимок баланса.
// Мутируется только heartbeat/balance отчетами; читается percent-режимом
// транслятора и внешним UI.
type AgentLivenessRecord struct {
	AgentID         string      `json:"agent_id" db:"agent_id"`
	OwnerUserID     string      `json:"owner_user_id" db:"owner_user_id"`
	LastHeartbeatAt time.Time   `json:"last_heartbeat_at" db:"last_heartbeat_at"`
	Status          string      `json:"status" db:"status"` // online, offline
	LastBalance     BalanceInfo `json:"last_balance"`
}

// BalanceInfo — снимок счета агента
type BalanceInfo struct {
	Balance    float64   `json:"balance" db:"balance"`
	Equity     float64   `json:"equity" db:"equity"`
	Margin     float64   `json:"margin" db:"margin"`
	FreeMargin float64   `json:"free_margin" db:"free_margin"`
	AsOf       time.Time `json:"as_of" db:"balance_as_of"`
}

// Статусы агента
const (
	AgentStatusOnline  = "online"
	AgentStatusOffline = "offline"
)

// HasBalance сообщает, получал ли relay хотя бы один balance push от агента
func (r *AgentLivenessRecord) HasBalance() bool {
	return !r.LastBalance.AsOf.IsZero()
}
