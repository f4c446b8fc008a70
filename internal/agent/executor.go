package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"copytrade/internal/models"
	"copytrade/pkg/utils"
)

const (
	// Лимит команд за один poll
	executorPollLimit = 10

	// Поиск перевыставленного тикета после частичного закрытия:
	// площадка может открыть остаток под новым тикетом не мгновенно
	reticketAttempts = 5
	reticketDelay    = 200 * time.Millisecond
)

// Executor - slave-сторона: забирает команды из relay, исполняет их
// в терминале и подтверждает результат.
//
// Идемпотентность открытия обеспечивается двумя уровнями: локальным
// mapping-хранилищем и корреляционным комментарием COPY_<orderRef>
// в самой позиции. Повторная доставка команды (потерянный ack) не
// приводит ко второму ордеру.
type Executor struct {
	terminal Terminal
	client   *RelayClient
	store    MappingStore
	agentID  string
	logger   *zap.Logger

	// Вызывается после исполнения торговой команды (форс-пуш баланса)
	onTrade func()
}

// NewExecutor создает executor для slave-агента
func NewExecutor(terminal Terminal, client *RelayClient, store MappingStore, agentID string, logger *zap.Logger) *Executor {
	return &Executor{
		terminal: terminal,
		client:   client,
		store:    store,
		agentID:  agentID,
		logger:   logger,
	}
}

// OnTrade регистрирует callback, вызываемый после исполнения команды
func (e *Executor) OnTrade(fn func()) { e.onTrade = fn }

// Run крутит цикл poll → execute → ack до отмены контекста
func (e *Executor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Poll(ctx); err != nil {
				e.logger.Warn("command poll failed", zap.Error(err))
			}
		}
	}
}

// Poll забирает пачку команд и исполняет их по порядку.
// Команды одного агента исполняются строго последовательно: FIFO
// очереди relay не имеет смысла без последовательного исполнения.
func (e *Executor) Poll(ctx context.Context) error {
	commands, err := e.client.Poll(ctx, e.agentID, executorPollLimit)
	if err != nil {
		return err
	}

	for i := range commands {
		cmd := &commands[i]
		ticket, execErr := e.Execute(ctx, cmd)

		success := execErr == nil
		message := ""
		if execErr != nil {
			message = execErr.Error()
			e.logger.Error("command execution failed",
				zap.String("queue_id", cmd.ID),
				zap.String("action", cmd.Payload.Action),
				zap.String("symbol", cmd.Payload.Symbol),
				zap.Error(execErr))
		} else {
			e.logger.Info("command executed",
				zap.String("queue_id", cmd.ID),
				zap.String("action", cmd.Payload.Action),
				zap.String("symbol", cmd.Payload.Symbol),
				zap.Int64("ticket", ticket))
		}

		if err := e.client.Ack(ctx, e.agentID, cmd.ID, success, message, ticket); err != nil {
			// Неподтвержденная команда вернется при следующем poll;
			// исполнение идемпотентно, поэтому просто выходим
			return err
		}

		if success && e.onTrade != nil && cmd.Payload.Action != models.ActionModify {
			e.onTrade()
		}
	}
	return nil
}

// Execute исполняет одну команду и возвращает тикет затронутой позиции
func (e *Executor) Execute(ctx context.Context, cmd *models.QueuedCommand) (int64, error) {
	switch cmd.Payload.Action {
	case models.ActionBuy, models.ActionSell:
		return e.executeOpen(cmd)
	case models.ActionClose:
		return e.executeClose(ctx, cmd)
	case models.ActionCloseSymbol:
		return 0, e.executeCloseSymbol(cmd)
	case models.ActionModify:
		return e.executeModify(cmd)
	default:
		return 0, fmt.Errorf("неизвестное действие команды: %s", cmd.Payload.Action)
	}
}

// executeOpen открывает позицию, если она еще не открыта.
// Проверка в два уровня: mapping в хранилище, затем живая позиция
// с корреляционным комментарием (хранилище могло быть утеряно).
func (e *Executor) executeOpen(cmd *models.QueuedCommand) (int64, error) {
	p := &cmd.Payload

	if m, err := e.store.Get(p.PairID, p.OrderRef); err == nil {
		e.logger.Debug("open skipped, mapping exists",
			zap.String("order_ref", p.OrderRef),
			zap.Int64("ticket", m.SlaveTicket))
		return m.SlaveTicket, nil
	} else if !errors.Is(err, ErrMappingNotFound) {
		return 0, err
	}

	if pos, found, err := e.findByComment(p.Comment, 0); err != nil {
		return 0, err
	} else if found {
		// Позиция открыта, но mapping потерян: восстанавливаем
		if err := e.rememberMapping(p, pos.Ticket, pos.Volume); err != nil {
			return 0, err
		}
		return pos.Ticket, nil
	}

	direction := models.DirectionBuy
	if p.Action == models.ActionSell {
		direction = models.DirectionSell
	}

	ticket, err := e.terminal.PlaceOrder(OrderRequest{
		Symbol:     p.Symbol,
		Direction:  direction,
		Volume:     p.Volume,
		TakeProfit: p.TakeProfit,
		StopLoss:   p.StopLoss,
		OrderType:  p.OrderType,
		Price:      p.Price,
		Comment:    p.Comment,
	})
	if err != nil {
		return 0, fmt.Errorf("открытие позиции %s: %w", p.Symbol, err)
	}

	if err := e.rememberMapping(p, ticket, p.Volume); err != nil {
		return ticket, err
	}
	return ticket, nil
}

// executeClose закрывает позицию полностью или частично.
// После частичного закрытия остаток может получить новый тикет,
// поэтому mapping обновляется результатом поиска по комментарию.
func (e *Executor) executeClose(ctx context.Context, cmd *models.QueuedCommand) (int64, error) {
	p := &cmd.Payload

	mapping, err := e.resolveMapping(p)
	if err != nil {
		return 0, err
	}

	full := p.Volume <= 0 || p.Volume >= mapping.Volume-utils.VolumeEpsilon
	closeVolume := p.Volume
	if full {
		closeVolume = 0
	}

	if err := e.terminal.ClosePosition(mapping.SlaveTicket, closeVolume); err != nil {
		if errors.Is(err, ErrPositionNotFound) {
			// Позиции уже нет (закрыта вручную или повторная
			// доставка после потерянного ack) - чистим mapping
			_ = e.store.Delete(p.PairID, p.OrderRef)
			return mapping.SlaveTicket, nil
		}
		return 0, fmt.Errorf("закрытие тикета %d: %w", mapping.SlaveTicket, err)
	}

	if full {
		if err := e.store.Delete(p.PairID, p.OrderRef); err != nil && !errors.Is(err, ErrMappingNotFound) {
			return mapping.SlaveTicket, err
		}
		return mapping.SlaveTicket, nil
	}

	return e.rediscoverTicket(ctx, p, mapping, closeVolume)
}

// rediscoverTicket ищет перевыставленный остаток после частичного
// закрытия и обновляет mapping. Если остаток сохранил прежний тикет,
// обновляется только объём.
func (e *Executor) rediscoverTicket(ctx context.Context, p *models.CommandPayload, mapping *models.OrderMapping, closed float64) (int64, error) {
	remaining := mapping.Volume - closed

	for attempt := 0; attempt < reticketAttempts; attempt++ {
		pos, found, err := e.findByComment(models.CopyComment(p.OrderRef), 0)
		if err != nil {
			return 0, err
		}
		if found {
			mapping.SlaveTicket = pos.Ticket
			mapping.Volume = pos.Volume
			if err := e.store.Put(mapping); err != nil {
				return pos.Ticket, err
			}
			return pos.Ticket, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(reticketDelay):
		}
	}

	// Остаток не найден: фиксируем расчетный объём со старым тикетом,
	// следующая команда пройдет через поиск по комментарию
	e.logger.Warn("re-issued ticket not found after partial close",
		zap.String("order_ref", p.OrderRef),
		zap.Int64("old_ticket", mapping.SlaveTicket))
	mapping.Volume = remaining
	if err := e.store.Put(mapping); err != nil {
		return mapping.SlaveTicket, err
	}
	return mapping.SlaveTicket, nil
}

// executeCloseSymbol закрывает все позиции по символу
func (e *Executor) executeCloseSymbol(cmd *models.QueuedCommand) error {
	symbol := cmd.Payload.Symbol

	positions, err := e.terminal.Positions()
	if err != nil {
		return err
	}

	closed := 0
	for _, pos := range positions {
		if pos.Symbol != symbol {
			continue
		}
		if err := e.terminal.ClosePosition(pos.Ticket, 0); err != nil && !errors.Is(err, ErrPositionNotFound) {
			return fmt.Errorf("закрытие тикета %d по символу %s: %w", pos.Ticket, symbol, err)
		}
		closed++
	}

	// Подчищаем mapping-и закрытых позиций этого символа
	mappings, err := e.store.All()
	if err != nil {
		return err
	}
	for _, m := range mappings {
		if m.Symbol == symbol {
			_ = e.store.Delete(m.PairID, m.OrderRef)
		}
	}

	e.logger.Info("symbol positions closed",
		zap.String("symbol", symbol),
		zap.Int("count", closed))
	return nil
}

// executeModify обновляет защитные уровни позиции.
// Когда ни mapping, ни комментарий не находят позицию (брокер затер
// комментарий), уровни ставятся по символьным селекторам. Для CLOSE
// такого подбора нет: закрытие не той позиции необратимо.
func (e *Executor) executeModify(cmd *models.QueuedCommand) (int64, error) {
	p := &cmd.Payload

	mapping, err := e.resolveMapping(p)
	if err == nil {
		if err := e.terminal.Modify(mapping.SlaveTicket, p.TakeProfit, p.StopLoss); err != nil {
			return 0, fmt.Errorf("модификация тикета %d: %w", mapping.SlaveTicket, err)
		}
		return mapping.SlaveTicket, nil
	}
	if !errors.Is(err, ErrMappingNotFound) {
		return 0, err
	}

	pos, found, ferr := e.resolveBySymbol(p)
	if ferr != nil {
		return 0, ferr
	}
	if !found {
		return 0, err
	}

	e.logger.Warn("modify degraded to symbol match",
		zap.String("order_ref", p.OrderRef),
		zap.String("symbol", p.Symbol),
		zap.Int64("ticket", pos.Ticket))

	if err := e.terminal.Modify(pos.Ticket, p.TakeProfit, p.StopLoss); err != nil {
		return 0, fmt.Errorf("модификация тикета %d: %w", pos.Ticket, err)
	}
	return pos.Ticket, nil
}

// resolveMapping находит mapping по приоритету селекторов:
// явный ticket, затем (pairID, orderRef) в хранилище, затем живая
// позиция с корреляционным комментарием (восстановление после утери
// хранилища)
func (e *Executor) resolveMapping(p *models.CommandPayload) (*models.OrderMapping, error) {
	if p.Ticket != 0 {
		pos, found, err := e.findTicket(p.Ticket)
		if err != nil {
			return nil, err
		}
		if found {
			return e.restoreMapping(p, pos)
		}
	}

	m, err := e.store.Get(p.PairID, p.OrderRef)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrMappingNotFound) {
		return nil, err
	}

	pos, found, ferr := e.findByComment(models.CopyComment(p.OrderRef), 0)
	if ferr != nil {
		return nil, ferr
	}
	if !found {
		return nil, fmt.Errorf("позиция для order_ref %s не найдена: %w", p.OrderRef, ErrMappingNotFound)
	}

	return e.restoreMapping(p, pos)
}

// restoreMapping собирает mapping из живой позиции и сохраняет его,
// если команда несет orderRef (иначе недостаточно ключа)
func (e *Executor) restoreMapping(p *models.CommandPayload, pos Position) (*models.OrderMapping, error) {
	m := &models.OrderMapping{
		PairID:       p.PairID,
		SlaveAgentID: e.agentID,
		OrderRef:     p.OrderRef,
		SlaveTicket:  pos.Ticket,
		Symbol:       pos.Symbol,
		Volume:       pos.Volume,
	}
	if p.OrderRef == "" {
		return m, nil
	}
	if err := e.store.Put(m); err != nil {
		return nil, err
	}
	return m, nil
}

// resolveBySymbol подбирает позицию по символьным селекторам:
// index среди позиций символа, затем совпадение объёма, затем первая
// позиция символа. Подбор неоднозначен и применяется только для MODIFY.
func (e *Executor) resolveBySymbol(p *models.CommandPayload) (Position, bool, error) {
	positions, err := e.terminal.Positions()
	if err != nil {
		return Position{}, false, err
	}

	var candidates []Position
	for _, pos := range positions {
		if pos.Symbol == p.Symbol {
			candidates = append(candidates, pos)
		}
	}
	if len(candidates) == 0 {
		return Position{}, false, nil
	}

	if p.Index > 0 && p.Index <= len(candidates) {
		return candidates[p.Index-1], true, nil
	}
	if p.Volume > 0 {
		for _, pos := range candidates {
			if utils.NearlyEqual(pos.Volume, p.Volume) {
				return pos, true, nil
			}
		}
	}
	return candidates[0], true, nil
}

// findTicket ищет живую позицию по тикету
func (e *Executor) findTicket(ticket int64) (Position, bool, error) {
	positions, err := e.terminal.Positions()
	if err != nil {
		return Position{}, false, err
	}
	for _, pos := range positions {
		if pos.Ticket == ticket {
			return pos, true, nil
		}
	}
	return Position{}, false, nil
}

func (e *Executor) rememberMapping(p *models.CommandPayload, ticket int64, volume float64) error {
	return e.store.Put(&models.OrderMapping{
		PairID:       p.PairID,
		SlaveAgentID: e.agentID,
		OrderRef:     p.OrderRef,
		SlaveTicket:  ticket,
		Symbol:       p.Symbol,
		Volume:       volume,
	})
}

// findByComment ищет живую позицию с заданным комментарием,
// пропуская excludeTicket (старый тикет при поиске перевыставления)
func (e *Executor) findByComment(comment string, excludeTicket int64) (Position, bool, error) {
	if comment == "" {
		return Position{}, false, nil
	}

	positions, err := e.terminal.Positions()
	if err != nil {
		return Position{}, false, err
	}
	for _, pos := range positions {
		if pos.Ticket != excludeTicket && pos.Comment == comment {
			return pos, true, nil
		}
	}
	return Position{}, false, nil
}
