package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"copytrade/internal/models"
	"copytrade/internal/translator"
	"copytrade/pkg/utils"
)

// AgentService - живость агентов и учет балансов.
//
// Heartbeat переводит агента в online и обновляет его каталог
// инструментов; фоновая проверка переводит замолчавших агентов в
// offline по grace-окну. Балансы нужны percent-режиму транслятора,
// поэтому relay подсказывает агентам, когда прислать свежий
// (balance-update-needed).
type AgentService struct {
	liveness    LivenessRepositoryInterface
	broadcaster Broadcaster
	logger      *zap.Logger

	heartbeatGrace time.Duration
	balanceMaxAge  time.Duration

	// Каталоги инструментов по агентам; живут только в памяти -
	// после рестарта relay агенты пришлют их следующим heartbeat
	mu       sync.RWMutex
	catalogs map[string][]translator.Instrument
}

// NewAgentService создает новый экземпляр AgentService
func NewAgentService(
	liveness LivenessRepositoryInterface,
	broadcaster Broadcaster,
	heartbeatGrace, balanceMaxAge time.Duration,
	logger *zap.Logger,
) *AgentService {
	return &AgentService{
		liveness:       liveness,
		broadcaster:    broadcaster,
		logger:         logger,
		heartbeatGrace: heartbeatGrace,
		balanceMaxAge:  balanceMaxAge,
		catalogs:       make(map[string][]translator.Instrument),
	}
}

// Heartbeat фиксирует признак жизни агента.
//
// catalog опционален: агент присылает спецификации инструментов
// своего терминала, relay использует их для трансляции символов
// и ограничений объёма.
func (s *AgentService) Heartbeat(agentID, ownerUserID string, catalog []translator.Instrument) error {
	if err := s.liveness.UpsertHeartbeat(agentID, ownerUserID, time.Now()); err != nil {
		return err
	}

	if len(catalog) > 0 {
		s.mu.Lock()
		s.catalogs[agentID] = catalog
		s.mu.Unlock()
	}

	if online, err := s.liveness.CountOnline(); err == nil {
		AgentsOnline.Set(float64(online))
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastLiveness(agentID, models.AgentStatusOnline)
	}
	return nil
}

// Catalog возвращает последний известный каталог агента
func (s *AgentService) Catalog(agentID string) ([]translator.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	catalog, ok := s.catalogs[agentID]
	return catalog, ok
}

// PushBalance сохраняет снимок баланса агента
func (s *AgentService) PushBalance(agentID string, balance models.BalanceInfo) error {
	if balance.AsOf.IsZero() {
		balance.AsOf = time.Now()
	}

	if err := s.liveness.UpdateBalance(agentID, balance); err != nil {
		return err
	}

	s.logger.Debug("balance updated",
		zap.String("agent", agentID),
		zap.Float64("balance", balance.Balance),
		zap.Float64("equity", balance.Equity))

	if s.broadcaster != nil {
		s.broadcaster.BroadcastBalance(agentID, balance)
	}
	return nil
}

// BalanceUpdateNeeded сообщает агенту, ждет ли relay свежий баланс:
// баланс не присылался ни разу либо старше допустимого возраста.
// Ответ агент кэширует у себя, поэтому обращение дешевое.
func (s *AgentService) BalanceUpdateNeeded(agentID string) (bool, error) {
	rec, err := s.liveness.GetByID(agentID)
	if err != nil {
		return false, err
	}

	if !rec.HasBalance() {
		return true, nil
	}
	return time.Since(rec.LastBalance.AsOf) > s.balanceMaxAge, nil
}

// Get возвращает запись живости агента
func (s *AgentService) Get(agentID string) (*models.AgentLivenessRecord, error) {
	return s.liveness.GetByID(agentID)
}

// List возвращает записи всех агентов
func (s *AgentService) List() ([]*models.AgentLivenessRecord, error) {
	records, err := s.liveness.GetAll()
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*models.AgentLivenessRecord{}
	}
	return records, nil
}

// RunStaleSweeper периодически переводит замолчавших агентов в offline.
// Блокируется до отмены контекста; запускается из main отдельной горутиной.
func (s *AgentService) RunStaleSweeper(ctx context.Context) {
	// Проверка чаще grace-окна, чтобы не передерживать мертвых агентов
	interval := s.heartbeatGrace / 3
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStale()
		}
	}
}

// sweepStale выполняет один проход проверки протухших heartbeat
func (s *AgentService) sweepStale() {
	flipped, err := s.liveness.MarkStale(time.Now().Add(-s.heartbeatGrace))
	if err != nil {
		s.logger.Error("stale sweep failed", zap.Error(err))
		return
	}

	for _, agentID := range flipped {
		s.logger.Info("agent marked offline: heartbeat grace exceeded",
			zap.String("agent", agentID),
			zap.Duration("grace", s.heartbeatGrace))
		if s.broadcaster != nil {
			s.broadcaster.BroadcastLiveness(agentID, models.AgentStatusOffline)
		}
	}

	if len(flipped) > 0 {
		if online, err := s.liveness.CountOnline(); err == nil {
			AgentsOnline.Set(float64(online))
		}
	}
}

// BalanceDrifted проверяет условие push по относительному изменению.
// Используется агентской стороной; вынесено сюда, чтобы порог жил
// рядом с остальными правилами баланса.
func BalanceDrifted(prev, current models.BalanceInfo, driftPct float64) bool {
	if prev.Balance <= 0 && prev.Equity <= 0 {
		return true
	}
	if prev.Balance > 0 && utils.Abs(current.Balance-prev.Balance)/prev.Balance*100 >= driftPct {
		return true
	}
	if prev.Equity > 0 && utils.Abs(current.Equity-prev.Equity)/prev.Equity*100 >= driftPct {
		return true
	}
	return false
}
