package models

import "time"

// CopyPair представляет связку master → slaves с настройками трансформации.
// Инвариант: пара маршрутизирует события только между агентами одного владельца.
type CopyPair struct {
	ID            int           `json:"id" db:"id"`
	OwnerUserID   string        `json:"owner_user_id" db:"owner_user_id"`
	Credential    string        `json:"credential,omitempty" db:"credential_enc"` // API ключ master EA (в БД — зашифрован)
	MasterAgentID string        `json:"master_agent_id" db:"master_agent_id"`
	Destinations  []Destination `json:"destinations"`
	Status        string        `json:"status" db:"status"` // paused, active
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// Destination — один slave-агент пары со своими настройками копирования
type Destination struct {
	ID           int                 `json:"id" db:"id"`
	PairID       int                 `json:"pair_id" db:"pair_id"`
	SlaveAgentID string              `json:"slave_agent_id" db:"slave_agent_id"`
	Settings     DestinationSettings `json:"settings"`
	Status       string              `json:"status" db:"status"` // paused, active
}

// DestinationSettings — настройки трансформации для одного направления
type DestinationSettings struct {
	SymbolMapEnabled bool    `json:"symbol_map_enabled" db:"symbol_map_enabled"`
	VolumeMode       string  `json:"volume_mode" db:"volume_mode"` // fixed, multiply, percent
	VolumeParam      float64 `json:"volume_param" db:"volume_param"`
	VolumeMapEnabled bool    `json:"volume_map_enabled" db:"volume_map_enabled"` // авто-коррекция по contract size
	CopyProtective   bool    `json:"copy_protective" db:"copy_protective"`       // копировать TP/SL
	MinVolumePolicy  string  `json:"min_volume_policy" db:"min_volume_policy"`   // warn, skip

	// Пользовательские переопределения символов: символ master → символ slave.
	// Проверяются раньше авто-резолвера.
	SymbolOverrides map[string]string `json:"symbol_overrides,omitempty"`
}

// Статусы пары и направления
const (
	PairStatusPaused = "paused"
	PairStatusActive = "active"
)

// Режимы расчета объема
const (
	VolumeModeFixed    = "fixed"
	VolumeModeMultiply = "multiply"
	VolumeModePercent  = "percent"
)

// Политики минимального объема
const (
	MinVolumeWarn = "warn" // поднять до минимума инструмента и предупредить
	MinVolumeSkip = "skip" // пропустить сделку
)

// ValidVolumeMode проверяет известность режима объема
func ValidVolumeMode(mode string) bool {
	switch mode {
	case VolumeModeFixed, VolumeModeMultiply, VolumeModePercent:
		return true
	}
	return false
}
