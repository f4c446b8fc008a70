package agent

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"copytrade/internal/translator"
)

// BridgeTerminal - реализация Terminal поверх локального HTTP-моста
// торгового терминала. Советник в терминале поднимает маленький REST
// на loopback; агент ходит в него короткими запросами.
//
// Мост локальный, поэтому сбои тут не ретраятся: недоступный мост
// означает закрытый терминал, и повтор через секунду бессмыслен.
type BridgeTerminal struct {
	baseURL    string
	httpClient *http.Client
}

// NewBridgeTerminal создает клиента терминального моста
func NewBridgeTerminal(baseURL string) *BridgeTerminal {
	return &BridgeTerminal{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (b *BridgeTerminal) Positions() ([]Position, error) {
	var positions []Position
	if err := b.call(http.MethodGet, "/positions", nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (b *BridgeTerminal) PlaceOrder(req OrderRequest) (int64, error) {
	var resp struct {
		Ticket int64 `json:"ticket"`
	}
	if err := b.call(http.MethodPost, "/orders", req, &resp); err != nil {
		return 0, err
	}
	return resp.Ticket, nil
}

func (b *BridgeTerminal) ClosePosition(ticket int64, volume float64) error {
	body := struct {
		Ticket int64   `json:"ticket"`
		Volume float64 `json:"volume,omitempty"`
	}{Ticket: ticket, Volume: volume}
	return b.call(http.MethodPost, "/close", body, nil)
}

func (b *BridgeTerminal) Modify(ticket int64, takeProfit, stopLoss float64) error {
	body := struct {
		Ticket     int64   `json:"ticket"`
		TakeProfit float64 `json:"take_profit"`
		StopLoss   float64 `json:"stop_loss"`
	}{Ticket: ticket, TakeProfit: takeProfit, StopLoss: stopLoss}
	return b.call(http.MethodPost, "/modify", body, nil)
}

func (b *BridgeTerminal) AccountInfo() (AccountInfo, error) {
	var info AccountInfo
	if err := b.call(http.MethodGet, "/account", nil, &info); err != nil {
		return AccountInfo{}, err
	}
	return info, nil
}

func (b *BridgeTerminal) Instruments() ([]translator.Instrument, error) {
	var instruments []translator.Instrument
	if err := b.call(http.MethodGet, "/instruments", nil, &instruments); err != nil {
		return nil, err
	}
	return instruments, nil
}

// call выполняет один запрос к мосту
func (b *BridgeTerminal) call(method, path string, body, out interface{}) error {
	req, err := newJSONRequest(method, b.baseURL+path, body)
	if err != nil {
		return err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTerminalOffline, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrPositionNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("terminal bridge %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := clientJSON.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("terminal bridge response decode: %w", err)
		}
	}
	return nil
}

// newJSONRequest собирает HTTP запрос с JSON телом
func newJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := clientJSON.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
