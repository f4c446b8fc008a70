package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"copytrade/internal/models"
	"copytrade/internal/service"
)

const (
	// Кэш отрицательного совета relay: чаще раза в минуту не спрашиваем
	adviceTTL = time.Minute

	// Порог относительного изменения баланса для внепланового push
	balanceDriftPct = 0.5
)

// Reporter отправляет heartbeat с каталогом инструментов и снимки
// баланса. Баланс уходит не каждым heartbeat: первый push, истечение
// потолка возраста, дрейф свыше порога, форс после сделки либо
// явный совет relay.
type Reporter struct {
	terminal    Terminal
	client      *RelayClient
	agentID     string
	ownerUserID string
	logger      *zap.Logger

	balanceMaxAge time.Duration

	lastPushed models.BalanceInfo
	lastPushAt time.Time
	hasPushed  bool

	// Последний отрицательный ответ BalanceUpdateNeeded
	adviceAskedAt time.Time

	force chan struct{}
}

// NewReporter создает reporter; balanceMaxAge - потолок возраста
// снимка, после которого push выполняется безусловно
func NewReporter(terminal Terminal, client *RelayClient, agentID, ownerUserID string, balanceMaxAge time.Duration, logger *zap.Logger) *Reporter {
	return &Reporter{
		terminal:      terminal,
		client:        client,
		agentID:       agentID,
		ownerUserID:   ownerUserID,
		balanceMaxAge: balanceMaxAge,
		logger:        logger,
		force:         make(chan struct{}, 1),
	}
}

// ForcePush помечает, что баланс нужно отправить при ближайшей
// возможности (после исполнения сделки). Не блокирует.
func (r *Reporter) ForcePush() {
	select {
	case r.force <- struct{}{}:
	default:
	}
}

// Run крутит цикл heartbeat до отмены контекста.
// Первая итерация выполняется сразу, без ожидания тика.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.beat(ctx, false)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.force:
			r.pushBalance(ctx)
		case <-ticker.C:
			forced := false
			select {
			case <-r.force:
				forced = true
			default:
			}
			r.beat(ctx, forced)
		}
	}
}

// beat отправляет один heartbeat и при необходимости баланс
func (r *Reporter) beat(ctx context.Context, forced bool) {
	catalog, err := r.terminal.Instruments()
	if err != nil {
		// Пустой каталог relay трактует как "без изменений"
		r.logger.Warn("instrument catalog unavailable", zap.Error(err))
		catalog = nil
	}

	if err := r.client.Heartbeat(ctx, r.agentID, r.ownerUserID, catalog); err != nil {
		r.logger.Warn("heartbeat failed", zap.Error(err))
		return
	}

	if forced || r.balancePushDue(ctx) {
		r.pushBalance(ctx)
	}
}

// balancePushDue решает, нужен ли push в эту итерацию
func (r *Reporter) balancePushDue(ctx context.Context) bool {
	if !r.hasPushed {
		return true
	}
	if time.Since(r.lastPushAt) >= r.balanceMaxAge {
		return true
	}

	info, err := r.terminal.AccountInfo()
	if err != nil {
		r.logger.Warn("account info unavailable", zap.Error(err))
		return false
	}
	if service.BalanceDrifted(r.lastPushed, balanceInfo(info), balanceDriftPct) {
		return true
	}

	// Локальных причин нет: изредка сверяемся с relay (например,
	// после рестарта relay его снимок мог быть утерян)
	if time.Since(r.adviceAskedAt) < adviceTTL {
		return false
	}
	needed, err := r.client.BalanceUpdateNeeded(ctx, r.agentID)
	if err != nil {
		r.logger.Debug("balance advice unavailable", zap.Error(err))
		return false
	}
	if !needed {
		r.adviceAskedAt = time.Now()
	}
	return needed
}

// pushBalance снимает счет и отправляет снимок в relay
func (r *Reporter) pushBalance(ctx context.Context) {
	info, err := r.terminal.AccountInfo()
	if err != nil {
		r.logger.Warn("account info unavailable", zap.Error(err))
		return
	}

	balance := balanceInfo(info)
	balance.AsOf = time.Now()

	if err := r.client.PushBalance(ctx, r.agentID, balance); err != nil {
		r.logger.Warn("balance push failed", zap.Error(err))
		return
	}

	r.lastPushed = balance
	r.lastPushAt = time.Now()
	r.hasPushed = true
	r.logger.Debug("balance pushed",
		zap.Float64("balance", balance.Balance),
		zap.Float64("equity", balance.Equity))
}

func balanceInfo(info AccountInfo) models.BalanceInfo {
	return models.BalanceInfo{
		Balance:    info.Balance,
		Equity:     info.Equity,
		Margin:     info.Margin,
		FreeMargin: info.FreeMargin,
	}
}
