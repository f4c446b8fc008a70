package agent

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"copytrade/internal/models"
	"copytrade/pkg/utils"
)

const (
	// Пауза после обнаружения изменений: даем терминалу закончить
	// пачку операций (частичное закрытие + перевыставление), чтобы не
	// отправить промежуточное состояние
	settleDelay = 300 * time.Millisecond

	// Минимальный интервал между проходами reconcile
	reconcileDebounce = time.Second
)

// Reconciler - master-сторона: периодически снимает позиции терминала,
// сравнивает со своим последним снимком и отправляет дискретные события
// (open/close/partial_close/modify) в relay.
//
// Снимок заменяется только после успешной отправки всех событий
// прохода: сбой сети оставляет старый снимок, следующий проход
// обнаружит те же изменения заново.
type Reconciler struct {
	terminal Terminal
	client   *RelayClient
	agentID  string
	logger   *zap.Logger

	// Последний подтвержденный снимок позиций по тикетам
	snapshot map[int64]Position

	// Защита от конкурирующих проходов
	busy atomic.Bool

	lastRun time.Time

	// Вызывается после успешной отправки событий (форс-пуш баланса)
	onTrade func()
}

// NewReconciler создает reconciler для master-агента
func NewReconciler(terminal Terminal, client *RelayClient, agentID string, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		terminal: terminal,
		client:   client,
		agentID:  agentID,
		logger:   logger,
		snapshot: make(map[int64]Position),
	}
}

// OnTrade регистрирует callback, вызываемый после отправки событий
func (r *Reconciler) OnTrade(fn func()) { r.onTrade = fn }

// Run периодически вызывает Reconcile до отмены контекста
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval < reconcileDebounce {
		interval = reconcileDebounce
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Первый проход заполняет базовый снимок без отправки событий
	if err := r.prime(); err != nil {
		r.logger.Warn("initial snapshot failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Reconcile(ctx); err != nil {
				r.logger.Warn("reconcile pass failed", zap.Error(err))
			}
		}
	}
}

// prime снимает базовый снимок при старте: существующие позиции
// не превращаются в open-события
func (r *Reconciler) prime() error {
	positions, err := r.terminal.Positions()
	if err != nil {
		return err
	}
	r.snapshot = indexPositions(positions)
	r.logger.Info("baseline snapshot taken", zap.Int("positions", len(r.snapshot)))
	return nil
}

// Reconcile выполняет один проход сравнения.
// Конкурирующий вызов при незавершенном проходе просто пропускается.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	if !r.busy.CompareAndSwap(false, true) {
		return nil
	}
	defer r.busy.Store(false)

	if time.Since(r.lastRun) < reconcileDebounce {
		return nil
	}
	r.lastRun = time.Now()

	positions, err := r.terminal.Positions()
	if err != nil {
		return err
	}
	current := indexPositions(positions)

	events := diffSnapshots(r.snapshot, current)
	if len(events) == 0 {
		return nil
	}

	// Терминал мог быть пойман посреди серии операций: выжидаем и
	// перечитываем, отправляем уже устоявшееся состояние
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(settleDelay):
	}

	positions, err = r.terminal.Positions()
	if err != nil {
		return err
	}
	current = indexPositions(positions)
	events = diffSnapshots(r.snapshot, current)

	for _, event := range events {
		event.SourceAgentID = r.agentID
		event.OccurredAt = time.Now()
		if err := r.client.SubmitEvent(ctx, event); err != nil {
			// Снимок не заменяем: следующий проход увидит
			// изменения снова
			return err
		}
		r.logger.Info("trade event submitted",
			zap.String("event", event.Kind),
			zap.String("order_ref", event.OrderRef),
			zap.String("symbol", event.Symbol),
			zap.Float64("volume", event.Volume))
	}

	r.snapshot = current
	if r.onTrade != nil {
		r.onTrade()
	}
	return nil
}

// diffSnapshots строит события перехода prev → current.
// Порядок: закрытия, частичные закрытия, открытия, модификации.
func diffSnapshots(prev, current map[int64]Position) []*models.TradeEvent {
	var closes, partials, opens, modifies []*models.TradeEvent

	for ticket, old := range prev {
		ref := orderRef(ticket)
		now, alive := current[ticket]
		if !alive {
			closes = append(closes, &models.TradeEvent{
				OrderRef: ref,
				Kind:     models.EventClose,
				Symbol:   old.Symbol,
				Volume:   old.Volume,
			})
			continue
		}

		if old.Volume-now.Volume > utils.VolumeEpsilon {
			partials = append(partials, &models.TradeEvent{
				OrderRef: ref,
				Kind:     models.EventPartialClose,
				Symbol:   old.Symbol,
				Volume:   old.Volume - now.Volume,
			})
		}

		if !utils.NearlyEqual(old.TakeProfit, now.TakeProfit) || !utils.NearlyEqual(old.StopLoss, now.StopLoss) {
			modifies = append(modifies, &models.TradeEvent{
				OrderRef:   ref,
				Kind:       models.EventModify,
				Symbol:     now.Symbol,
				TakeProfit: now.TakeProfit,
				StopLoss:   now.StopLoss,
			})
		}
	}

	for ticket, pos := range current {
		if _, existed := prev[ticket]; existed {
			continue
		}
		opens = append(opens, &models.TradeEvent{
			OrderRef:   orderRef(ticket),
			Kind:       models.EventOpen,
			Symbol:     pos.Symbol,
			Direction:  pos.Direction,
			Volume:     pos.Volume,
			TakeProfit: pos.TakeProfit,
			StopLoss:   pos.StopLoss,
			OrderStyle: models.OrderStyleMarket,
			Price:      pos.OpenPrice,
		})
	}

	events := make([]*models.TradeEvent, 0, len(closes)+len(partials)+len(opens)+len(modifies))
	events = append(events, closes...)
	events = append(events, partials...)
	events = append(events, opens...)
	events = append(events, modifies...)
	return events
}

// orderRef - стабильный идемпотентный ключ позиции master
func orderRef(ticket int64) string {
	return strconv.FormatInt(ticket, 10)
}

func indexPositions(positions []Position) map[int64]Position {
	index := make(map[int64]Position, len(positions))
	for _, pos := range positions {
		index[pos.Ticket] = pos
	}
	return index
}
