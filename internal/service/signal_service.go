package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"copytrade/internal/models"
	"copytrade/internal/translator"
	"copytrade/pkg/crypto"
)

// Ошибки приема сигналов
var (
	ErrAuth               = errors.New("credential does not match an active copy pair")
	ErrOwnershipViolation = errors.New("cross-tenant routing attempt")
	ErrInvalidEvent       = errors.New("invalid trade event")
)

// SignalService - центральная логика relay: принимает торговые события
// master-агентов, изолирует их по владельцу и раскладывает транслированные
// команды по очередям slave-агентов.
//
// Сбой одного направления никогда не блокирует остальные: fan-out
// независим по каждому получателю, неудачи попадают в историю.
type SignalService struct {
	pairs    PairRepositoryInterface
	liveness LivenessRepositoryInterface
	queue    QueueInterface
	catalogs CatalogProvider
	history  HistoryServiceInterface
	logger   *zap.Logger
}

// NewSignalService создает новый экземпляр SignalService
func NewSignalService(
	pairs PairRepositoryInterface,
	liveness LivenessRepositoryInterface,
	q QueueInterface,
	catalogs CatalogProvider,
	history HistoryServiceInterface,
	logger *zap.Logger,
) *SignalService {
	return &SignalService{
		pairs:    pairs,
		liveness: liveness,
		queue:    q,
		catalogs: catalogs,
		history:  history,
		logger:   logger,
	}
}

// SubmitResult - итог приема одного события
type SubmitResult struct {
	Accepted     bool `json:"accepted"`
	PairsMatched int  `json:"pairs_matched"`
	Enqueued     int  `json:"enqueued"`
}

// Submit принимает торговое событие от master-агента.
//
// Отклоняет с ErrAuth, если credential не привязан ни к одной паре.
// Для каждой активной пары ключа и каждого активного направления
// транслирует событие и ставит команду в очередь slave-агента.
func (s *SignalService) Submit(credential string, event *models.TradeEvent) (*SubmitResult, error) {
	if err := validateEvent(event); err != nil {
		RecordRejection("validation")
		return nil, err
	}

	pairs, err := s.pairs.GetByCredentialHash(crypto.HashCredential(credential))
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		RecordRejection("auth")
		return nil, ErrAuth
	}

	RecordSignal(event.Kind)

	result := &SubmitResult{Accepted: true}
	for _, pair := range pairs {
		if pair.Status != models.PairStatusActive {
			continue
		}

		// Событие обязано прийти от master-агента пары
		if event.SourceAgentID != pair.MasterAgentID {
			RecordRejection("ownership")
			s.logger.Warn("security: event source does not match pair master",
				zap.Int("pair_id", pair.ID),
				zap.String("source_agent", event.SourceAgentID),
				zap.String("pair_master", pair.MasterAgentID))
			continue
		}

		result.PairsMatched++
		result.Enqueued += s.fanOut(pair, event)
	}

	return result, nil
}

// fanOut раскладывает событие по очередям направлений пары.
// Возвращает число поставленных команд.
func (s *SignalService) fanOut(pair *models.CopyPair, event *models.TradeEvent) int {
	enqueued := 0
	for i := range pair.Destinations {
		dest := &pair.Destinations[i]
		if dest.Status != models.PairStatusActive {
			continue
		}

		rec, err := s.liveness.GetByID(dest.SlaveAgentID)
		if err != nil || rec.Status != models.AgentStatusOnline {
			s.logger.Debug("destination skipped: agent not online",
				zap.Int("pair_id", pair.ID),
				zap.String("slave_agent", dest.SlaveAgentID))
			continue
		}

		// Изоляция по владельцу: агент чужого тенанта не получает
		// команд даже при валидном credential
		if rec.OwnerUserID != pair.OwnerUserID {
			RecordRejection("ownership")
			s.logger.Warn("security: destination agent belongs to another tenant",
				zap.Int("pair_id", pair.ID),
				zap.String("slave_agent", dest.SlaveAgentID),
				zap.String("pair_owner", pair.OwnerUserID),
				zap.String("agent_owner", rec.OwnerUserID))
			s.history.Record(&models.HistoryEvent{
				Status:  models.HistoryStatusError,
				Master:  pair.MasterAgentID,
				Slave:   dest.SlaveAgentID,
				Action:  event.Kind,
				Symbol:  event.Symbol,
				Volume:  event.Volume,
				Message: fmt.Errorf("%w: agent %s belongs to %s", ErrOwnershipViolation, dest.SlaveAgentID, rec.OwnerUserID).Error(),
			})
			continue
		}

		payload, err := s.translate(pair, dest, event)
		if err != nil {
			// Сбой трансляции роняет только это направление
			s.recordDrop(pair, dest, event, err)
			continue
		}
		if payload == nil {
			// Событие не порождает команду (например, modify при
			// выключенном копировании TP/SL)
			continue
		}

		cmd := &models.QueuedCommand{
			ID:            uuid.NewString(),
			TargetAgentID: dest.SlaveAgentID,
			Payload:       *payload,
		}
		if evicted := s.queue.Enqueue(cmd); evicted != nil {
			CommandsEvicted.Inc()
			s.logger.Warn("queue overflow: oldest pending command evicted",
				zap.String("agent", dest.SlaveAgentID),
				zap.String("evicted_id", evicted.ID),
				zap.String("evicted_action", evicted.Payload.Action))
		}
		CommandsEnqueued.WithLabelValues(payload.Action).Inc()
		QueueDepth.Set(float64(s.queue.TotalDepth()))
		enqueued++
	}
	return enqueued
}

// translate строит payload команды для одного направления.
// Возвращает (nil, nil), когда событие легально игнорируется.
func (s *SignalService) translate(pair *models.CopyPair, dest *models.Destination, event *models.TradeEvent) (*models.CommandPayload, error) {
	settings := dest.Settings

	symbol, slaveInst, err := s.resolveSymbol(dest, event.Symbol)
	if err != nil {
		return nil, err
	}

	payload := &models.CommandPayload{
		Symbol:   symbol,
		OrderRef: event.OrderRef,
		PairID:   pair.ID,
		CopyFrom: pair.MasterAgentID,
		Comment:  models.CopyComment(event.OrderRef),
	}

	switch event.Kind {
	case models.EventOpen:
		if event.Direction == models.DirectionSell {
			payload.Action = models.ActionSell
		} else {
			payload.Action = models.ActionBuy
		}
		volume, err := s.computeVolume(pair, dest, event, slaveInst)
		if err != nil {
			return nil, err
		}
		payload.Volume = volume
		payload.OrderType = event.OrderStyle
		payload.Price = event.Price
		if settings.CopyProtective {
			payload.TakeProfit = event.TakeProfit
			payload.StopLoss = event.StopLoss
		}

	case models.EventClose, models.EventPartialClose:
		payload.Action = models.ActionClose
		volume, err := s.computeVolume(pair, dest, event, slaveInst)
		if err != nil {
			return nil, err
		}
		payload.Volume = volume

	case models.EventModify:
		if !settings.CopyProtective {
			return nil, nil
		}
		payload.Action = models.ActionModify
		payload.TakeProfit = event.TakeProfit
		payload.StopLoss = event.StopLoss

	default:
		return nil, fmt.Errorf("%w: unknown event kind %q", ErrInvalidEvent, event.Kind)
	}

	return payload, nil
}

// resolveSymbol разрешает символ события против каталога получателя.
// Без каталога (агент еще не отчитался) символ проходит как есть.
func (s *SignalService) resolveSymbol(dest *models.Destination, requested string) (string, *translator.Instrument, error) {
	catalog, ok := s.catalogs.Catalog(dest.SlaveAgentID)

	if !dest.Settings.SymbolMapEnabled {
		inst := findInstrument(catalog, requested)
		return requested, inst, nil
	}

	if !ok || len(catalog) == 0 {
		s.logger.Debug("symbol map degraded: no catalog reported",
			zap.String("agent", dest.SlaveAgentID),
			zap.String("symbol", requested))
		return requested, nil, nil
	}

	names := make([]string, len(catalog))
	for i, inst := range catalog {
		names[i] = inst.Symbol
	}

	resolved, err := translator.ResolveSymbol(requested, names, dest.Settings.SymbolOverrides)
	if err != nil {
		return "", nil, err
	}

	return resolved, findInstrument(catalog, resolved), nil
}

// computeVolume рассчитывает объём получателя с учетом режима пары,
// contract size и ограничений инструмента.
func (s *SignalService) computeVolume(pair *models.CopyPair, dest *models.Destination, event *models.TradeEvent, slaveInst *translator.Instrument) (float64, error) {
	settings := dest.Settings

	var masterBalance, slaveBalance float64
	if settings.VolumeMode == models.VolumeModePercent {
		masterBalance = s.balanceOf(pair.MasterAgentID)
		slaveBalance = s.balanceOf(dest.SlaveAgentID)
	}

	volume, err := translator.ComputeVolume(settings.VolumeMode, settings.VolumeParam, event.Volume, masterBalance, slaveBalance)
	if err != nil {
		return 0, err
	}

	// Авто-коррекция по contract size: действует в multiply-режиме,
	// когда известны спецификации обоих инструментов
	if settings.VolumeMapEnabled && settings.VolumeMode == models.VolumeModeMultiply && slaveInst != nil {
		if masterCatalog, ok := s.catalogs.Catalog(pair.MasterAgentID); ok {
			if masterInst := findInstrument(masterCatalog, event.Symbol); masterInst != nil {
				adjusted := translator.AdjustContractSize(event.Volume, masterInst.ContractSize, slaveInst.ContractSize)
				if adjusted != event.Volume {
					volume = adjusted
				}
			}
		}
	}

	if slaveInst == nil {
		return volume, nil
	}

	clamped, err := translator.ClampToInstrument(volume, *slaveInst, settings.MinVolumePolicy)
	if err != nil {
		return 0, err
	}
	if clamped == slaveInst.MinVolume && volume < slaveInst.MinVolume {
		s.logger.Warn("volume raised to instrument minimum",
			zap.String("agent", dest.SlaveAgentID),
			zap.String("symbol", slaveInst.Symbol),
			zap.Float64("computed", volume),
			zap.Float64("min", slaveInst.MinVolume))
	}
	return clamped, nil
}

// balanceOf возвращает последний известный баланс агента, 0 если неизвестен
func (s *SignalService) balanceOf(agentID string) float64 {
	rec, err := s.liveness.GetByID(agentID)
	if err != nil || !rec.HasBalance() {
		return 0
	}
	return rec.LastBalance.Balance
}

// recordDrop фиксирует отброшенное направление в истории и метриках
func (s *SignalService) recordDrop(pair *models.CopyPair, dest *models.Destination, event *models.TradeEvent, cause error) {
	reason := "translation"
	switch {
	case errors.Is(cause, translator.ErrSymbolUnresolved):
		reason = "symbol_unresolved"
	case errors.Is(cause, translator.ErrVolumeUnavailable):
		reason = "volume_unavailable"
	case errors.Is(cause, translator.ErrVolumeSkipped):
		reason = "volume_skipped"
	}
	RecordTranslationFailure(reason)

	s.logger.Warn("destination dropped",
		zap.Int("pair_id", pair.ID),
		zap.String("slave_agent", dest.SlaveAgentID),
		zap.String("symbol", event.Symbol),
		zap.String("event", event.Kind),
		zap.Error(cause))

	s.history.Record(&models.HistoryEvent{
		Status:  models.HistoryStatusError,
		Master:  pair.MasterAgentID,
		Slave:   dest.SlaveAgentID,
		Action:  event.Kind,
		Symbol:  event.Symbol,
		Volume:  event.Volume,
		Message: cause.Error(),
	})
}

// validateEvent проверяет обязательные поля события
func validateEvent(event *models.TradeEvent) error {
	if event == nil {
		return fmt.Errorf("%w: empty event", ErrInvalidEvent)
	}
	if event.OrderRef == "" {
		return fmt.Errorf("%w: order_id is required", ErrInvalidEvent)
	}
	if event.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidEvent)
	}
	if !models.ValidEventKind(event.Kind) {
		return fmt.Errorf("%w: unknown event kind %q", ErrInvalidEvent, event.Kind)
	}
	if event.Kind == models.EventOpen && !models.ValidDirection(event.Direction) {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidEvent, event.Direction)
	}
	if event.Kind != models.EventModify && event.Volume <= 0 {
		return fmt.Errorf("%w: volume must be positive", ErrInvalidEvent)
	}
	return nil
}

// findInstrument ищет спецификацию инструмента в каталоге по имени
func findInstrument(catalog []translator.Instrument, symbol string) *translator.Instrument {
	for i := range catalog {
		if catalog[i].Symbol == symbol {
			return &catalog[i]
		}
	}
	return nil
}
