package service

import (
	"time"

	"copytrade/internal/models"
	"copytrade/internal/queue"
	"copytrade/internal/translator"
)

// PairRepositoryInterface определяет интерфейс репозитория пар
type PairRepositoryInterface interface {
	Create(pair *models.CopyPair, credentialHash string) error
	GetByID(id int) (*models.CopyPair, error)
	GetByCredentialHash(credentialHash string) ([]*models.CopyPair, error)
	GetByOwner(ownerUserID string) ([]*models.CopyPair, error)
	GetAll() ([]*models.CopyPair, error)
	UpdateStatus(id int, status string) error
	Delete(id int) error
	AddDestination(d *models.Destination) error
	UpdateDestination(d *models.Destination) error
	RemoveDestination(id int) error
	Count() (int, error)
}

// LivenessRepositoryInterface определяет интерфейс репозитория живости
type LivenessRepositoryInterface interface {
	UpsertHeartbeat(agentID, ownerUserID string, at time.Time) error
	UpdateBalance(agentID string, balance models.BalanceInfo) error
	GetByID(agentID string) (*models.AgentLivenessRecord, error)
	GetAll() ([]*models.AgentLivenessRecord, error)
	MarkStale(deadline time.Time) ([]string, error)
	CountOnline() (int, error)
	Delete(agentID string) error
}

// HistoryRepositoryInterface определяет интерфейс репозитория истории
type HistoryRepositoryInterface interface {
	Insert(ev *models.HistoryEvent) error
	Recent(limit int) ([]*models.HistoryEvent, error)
	Clear() (int, error)
	DeleteByAgent(agentID string) error
	Count() (int, error)
}

// QueueInterface определяет интерфейс менеджера очередей команд
type QueueInterface interface {
	Enqueue(cmd *models.QueuedCommand) *models.QueuedCommand
	Poll(agentID string, limit int) []models.QueuedCommand
	Ack(agentID, queueID string, success bool) (*models.QueuedCommand, error)
	Clear(agentID string) int
	ClearPair(pairID int) int
	Status(agentID string) queue.Snapshot
	TotalDepth() int
}

// SignalServiceInterface определяет интерфейс приема сигналов для API слоя
type SignalServiceInterface interface {
	Submit(credential string, event *models.TradeEvent) (*SubmitResult, error)
}

// PairServiceInterface определяет интерфейс администрирования пар для API слоя
type PairServiceInterface interface {
	Create(ownerUserID, masterAgentID string) (*models.CopyPair, string, error)
	Get(id int) (*models.CopyPair, error)
	List(ownerUserID string) ([]*models.CopyPair, error)
	RevealCredential(id int) (string, error)
	SetStatus(id int, status string) error
	Delete(id int) error
	AddDestination(pairID int, d *models.Destination) error
	UpdateDestination(d *models.Destination) error
	RemoveDestination(id int) error
}

// AgentServiceInterface определяет интерфейс учета агентов для API слоя
type AgentServiceInterface interface {
	Heartbeat(agentID, ownerUserID string, catalog []translator.Instrument) error
	PushBalance(agentID string, balance models.BalanceInfo) error
	BalanceUpdateNeeded(agentID string) (bool, error)
	Get(agentID string) (*models.AgentLivenessRecord, error)
	List() ([]*models.AgentLivenessRecord, error)
}

// HistoryServiceInterface определяет интерфейс журнала для API слоя
type HistoryServiceInterface interface {
	Record(ev *models.HistoryEvent)
	Recent(limit int) ([]*models.HistoryEvent, error)
	Clear() (int, error)
}

// CatalogProvider отдает последний известный каталог инструментов агента.
// Каталог приходит в метаданных heartbeat и живет только в памяти relay.
type CatalogProvider interface {
	Catalog(agentID string) ([]translator.Instrument, bool)
}

// Broadcaster - push-канал к подключенным дашбордам.
// Poll/ack-семантика агентов от него не зависит.
type Broadcaster interface {
	BroadcastHistory(ev *models.HistoryEvent)
	BroadcastLiveness(agentID, status string)
	BroadcastBalance(agentID string, balance models.BalanceInfo)
}
