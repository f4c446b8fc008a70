package queue

import (
	"errors"
	"sync"
	"time"

	"copytrade/internal/models"
)

// queue.go - очереди команд с доставкой at-least-once
//
// На каждого агента-получателя ведётся отдельная ограниченная FIFO
// очередь. Агенты за NAT забирают команды опросом (poll) и подтверждают
// исполнение (ack); команда удаляется только после подтверждения.
// Доставленная, но не подтверждённая в окно доставки команда снова
// становится доступной следующему опросу - одна и та же команда может
// быть выдана агенту повторно, поэтому исполнение обязано быть
// идемпотентным по orderRef.
//
// При переполнении вытесняется самая старая ещё не доставленная
// команда: протухшая торговая инструкция вреднее отброшенной.

// ErrCommandNotFound возвращается, когда подтверждаемой команды
// нет в очереди агента (уже подтверждена или вытеснена).
var ErrCommandNotFound = errors.New("command not found in agent queue")

// Snapshot - срез состояния очереди для админского интерфейса.
type Snapshot struct {
	AgentID   string `json:"agent_id"`
	Pending   int    `json:"pending"`
	Delivered int    `json:"delivered"`
	Total     int    `json:"total"`
}

// Manager управляет очередями всех агентов.
//
// Блокировка общая на карту очередей: операции над очередью короткие
// (память, без I/O), конкуренция между агентами на практике мала.
type Manager struct {
	mu              sync.Mutex
	queues          map[string][]*models.QueuedCommand
	depth           int
	deliveryTimeout time.Duration

	// Подменяется в тестах
	now func() time.Time
}

// NewManager создаёт менеджер очередей.
//
// depth - максимум команд в очереди одного агента;
// deliveryTimeout - окно, после которого доставленная без ack
// команда считается потерянной и выдаётся повторно.
func NewManager(depth int, deliveryTimeout time.Duration) *Manager {
	return &Manager{
		queues:          make(map[string][]*models.QueuedCommand),
		depth:           depth,
		deliveryTimeout: deliveryTimeout,
		now:             time.Now,
	}
}

// Enqueue добавляет команду в хвост очереди её агента.
//
// Возвращает вытесненную команду, если очередь была переполнена
// (вызывающая сторона логирует и учитывает в метриках), иначе nil.
func (m *Manager) Enqueue(cmd *models.QueuedCommand) *models.QueuedCommand {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd.State = models.CommandStatePending
	cmd.EnqueuedAt = m.now()

	q := m.queues[cmd.TargetAgentID]
	var evicted *models.QueuedCommand

	if len(q) >= m.depth {
		// Вытесняем самую старую pending-команду; доставленные не
		// трогаем - агент уже мог начать их исполнять
		for i, c := range q {
			if c.State == models.CommandStatePending {
				evicted = c
				q = append(q[:i], q[i+1:]...)
				break
			}
		}
	}

	m.queues[cmd.TargetAgentID] = append(q, cmd)
	return evicted
}

// Poll возвращает до limit команд агента в порядке FIFO.
//
// Каждая возвращённая команда помечается delivered, и для неё
// запускается отсчёт окна доставки. Доставленные ранее команды,
// чьё окно истекло, выдаются повторно (at-least-once).
func (m *Manager) Poll(agentID string, limit int) []models.QueuedCommand {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[agentID]
	if len(q) == 0 || limit <= 0 {
		return nil
	}

	now := m.now()
	out := make([]models.QueuedCommand, 0, limit)

	for _, c := range q {
		if len(out) >= limit {
			break
		}
		redeliverable := c.State == models.CommandStateDelivered &&
			now.Sub(c.DeliveredAt) > m.deliveryTimeout
		if c.State != models.CommandStatePending && !redeliverable {
			continue
		}
		c.State = models.CommandStateDelivered
		c.DeliveredAt = now
		c.Attempts++
		out = append(out, *c)
	}

	return out
}

// Ack подтверждает исполнение команды и удаляет её из очереди.
//
// success=false помечает команду failed; команда всё равно удаляется -
// слепой повтор торговой мутации удваивает риск, поэтому неуспех
// терминален и только фиксируется в истории.
func (m *Manager) Ack(agentID, queueID string, success bool) (*models.QueuedCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queues[agentID]
	for i, c := range q {
		if c.ID != queueID {
			continue
		}
		if success {
			c.State = models.CommandStateAcked
		} else {
			c.State = models.CommandStateFailed
		}
		m.queues[agentID] = append(q[:i], q[i+1:]...)
		if len(m.queues[agentID]) == 0 {
			delete(m.queues, agentID)
		}
		return c, nil
	}

	return nil, ErrCommandNotFound
}

// Clear удаляет все команды агента. Возвращает число удалённых.
func (m *Manager) Clear(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.queues[agentID])
	delete(m.queues, agentID)
	return n
}

// ClearPair удаляет команды пары из всех очередей (каскад при
// удалении пары). Возвращает число удалённых.
func (m *Manager) ClearPair(pairID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for agentID, q := range m.queues {
		kept := q[:0]
		for _, c := range q {
			if c.Payload.PairID == pairID {
				removed++
				continue
			}
			kept = append(kept, c)
		}
		if len(kept) == 0 {
			delete(m.queues, agentID)
		} else {
			m.queues[agentID] = kept
		}
	}
	return removed
}

// Status возвращает срез состояния очереди агента.
func (m *Manager) Status(agentID string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{AgentID: agentID}
	for _, c := range m.queues[agentID] {
		s.Total++
		switch c.State {
		case models.CommandStatePending:
			s.Pending++
		case models.CommandStateDelivered:
			s.Delivered++
		}
	}
	return s
}

// TotalDepth возвращает суммарное число команд во всех очередях
// (гейдж для метрик).
func (m *Manager) TotalDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, q := range m.queues {
		total += len(q)
	}
	return total
}
