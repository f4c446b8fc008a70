package agent

import (
	"sync"

	"copytrade/internal/translator"
	"copytrade/pkg/utils"
)

// fakeTerminal - in-memory терминал для тестов исполнителя и reconciler
type fakeTerminal struct {
	mu          sync.Mutex
	positions   []Position
	nextTicket  int64
	account     AccountInfo
	instruments []translator.Instrument

	positionsErr error
	orderErr     error
	closeErr     error
	accountErr   error

	// Перевыставлять остаток под новым тикетом после частичного закрытия
	reticketOnPartial bool

	placed []OrderRequest
}

func newFakeTerminal() *fakeTerminal {
	return &fakeTerminal{nextTicket: 1000}
}

func (t *fakeTerminal) addPosition(p Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions = append(t.positions, p)
}

func (t *fakeTerminal) position(ticket int64) (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.positions {
		if p.Ticket == ticket {
			return p, true
		}
	}
	return Position{}, false
}

func (t *fakeTerminal) Positions() ([]Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.positionsErr != nil {
		return nil, t.positionsErr
	}
	out := make([]Position, len(t.positions))
	copy(out, t.positions)
	return out, nil
}

func (t *fakeTerminal) PlaceOrder(req OrderRequest) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.orderErr != nil {
		return 0, t.orderErr
	}
	t.nextTicket++
	ticket := t.nextTicket
	t.placed = append(t.placed, req)
	t.positions = append(t.positions, Position{
		Ticket:     ticket,
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		Volume:     req.Volume,
		TakeProfit: req.TakeProfit,
		StopLoss:   req.StopLoss,
		OpenPrice:  req.Price,
		Comment:    req.Comment,
	})
	return ticket, nil
}

func (t *fakeTerminal) ClosePosition(ticket int64, volume float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closeErr != nil {
		return t.closeErr
	}
	for i, p := range t.positions {
		if p.Ticket != ticket {
			continue
		}
		if volume <= 0 || volume >= p.Volume-utils.VolumeEpsilon {
			t.positions = append(t.positions[:i], t.positions[i+1:]...)
			return nil
		}
		t.positions[i].Volume = p.Volume - volume
		if t.reticketOnPartial {
			t.nextTicket++
			t.positions[i].Ticket = t.nextTicket
		}
		return nil
	}
	return ErrPositionNotFound
}

func (t *fakeTerminal) Modify(ticket int64, takeProfit, stopLoss float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range t.positions {
		if p.Ticket == ticket {
			t.positions[i].TakeProfit = takeProfit
			t.positions[i].StopLoss = stopLoss
			return nil
		}
	}
	return ErrPositionNotFound
}

func (t *fakeTerminal) AccountInfo() (AccountInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accountErr != nil {
		return AccountInfo{}, t.accountErr
	}
	return t.account, nil
}

func (t *fakeTerminal) Instruments() ([]translator.Instrument, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.instruments, nil
}
