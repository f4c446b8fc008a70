package service

import (
	"go.uber.org/zap"

	"copytrade/internal/models"
)

// HistoryService - ограниченный журнал исходов копирования.
//
// Каждая запись дублируется в websocket-поток дашбордов; отказ push
// не влияет на запись (дашборд - наблюдатель, не участник протокола).
type HistoryService struct {
	repo        HistoryRepositoryInterface
	broadcaster Broadcaster
	logger      *zap.Logger
}

// NewHistoryService создает новый экземпляр HistoryService
func NewHistoryService(repo HistoryRepositoryInterface, broadcaster Broadcaster, logger *zap.Logger) *HistoryService {
	return &HistoryService{
		repo:        repo,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Record фиксирует исход в журнале и рассылает подписчикам.
// Ошибку БД не возвращает наружу: журнал вторичен к потоку команд.
func (s *HistoryService) Record(ev *models.HistoryEvent) {
	if err := s.repo.Insert(ev); err != nil {
		s.logger.Error("history insert failed",
			zap.String("action", ev.Action),
			zap.String("slave", ev.Slave),
			zap.Error(err))
		return
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastHistory(ev)
	}
}

// Recent возвращает последние записи журнала, новые первыми
func (s *HistoryService) Recent(limit int) ([]*models.HistoryEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	events, err := s.repo.Recent(limit)
	if err != nil {
		return nil, err
	}

	if events == nil {
		events = []*models.HistoryEvent{}
	}
	return events, nil
}

// Clear очищает журнал. Возвращает число удаленных записей.
func (s *HistoryService) Clear() (int, error) {
	n, err := s.repo.Clear()
	if err != nil {
		return 0, err
	}

	s.logger.Info("history cleared", zap.Int("removed", n))
	return n, nil
}
