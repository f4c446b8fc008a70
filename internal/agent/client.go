package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"copytrade/internal/models"
	"copytrade/internal/translator"
	"copytrade/pkg/retry"
)

var clientJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки relay-клиента
var (
	ErrRelayUnauthorized = errors.New("relay rejected the pair credential")
	ErrRelayUnavailable  = errors.New("relay is not reachable")
)

// RelayClient - HTTP клиент агента к relay.
//
// Сетевые сбои ретраятся с экспоненциальным backoff; 4xx ответы
// permanent - повтор бессмысленен, пока не исправлена конфигурация.
type RelayClient struct {
	baseURL    string
	credential string // pair credential master-агента; пуст у slave
	httpClient *http.Client
	retryCfg   retry.Config
}

// NewRelayClient создает клиента relay
func NewRelayClient(baseURL, credential string) *RelayClient {
	return &RelayClient{
		baseURL:    baseURL,
		credential: credential,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retryCfg:   retry.NetworkConfig(),
	}
}

// SubmitEvent отправляет торговое событие master-агента
func (c *RelayClient) SubmitEvent(ctx context.Context, event *models.TradeEvent) error {
	return retry.Do(ctx, func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/v1/signal", event, nil, c.credential)
	}, c.retryCfg)
}

// pollResponse - ответ relay на poll
type pollResponse struct {
	Commands []models.QueuedCommand `json:"commands"`
	Count    int                    `json:"count"`
}

// Poll забирает очередные команды slave-агента.
// Не ретраится: следующий poll придет через секунду сам.
func (c *RelayClient) Poll(ctx context.Context, agentID string, limit int) ([]models.QueuedCommand, error) {
	path := fmt.Sprintf("/api/v1/commands/%s?limit=%d", agentID, limit)

	var resp pollResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp, ""); err != nil {
		return nil, err
	}
	return resp.Commands, nil
}

// ackPayload - тело подтверждения
type ackPayload struct {
	QueueID string `json:"queue_id"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Ticket  int64  `json:"ticket,omitempty"`
}

// Ack подтверждает исполнение команды. Ретраится агрессивно:
// потерянный ack приводит к повторной доставке команды.
func (c *RelayClient) Ack(ctx context.Context, agentID, queueID string, success bool, message string, ticket int64) error {
	path := fmt.Sprintf("/api/v1/commands/%s/ack", agentID)
	payload := ackPayload{QueueID: queueID, Success: success, Message: message, Ticket: ticket}

	return retry.Do(ctx, func() error {
		return c.doJSON(ctx, http.MethodPost, path, payload, nil, "")
	}, retry.AggressiveConfig())
}

// heartbeatPayload - тело heartbeat-отчета
type heartbeatPayload struct {
	AgentID     string                  `json:"agent_id"`
	OwnerUserID string                  `json:"owner_user_id"`
	Catalog     []translator.Instrument `json:"catalog,omitempty"`
}

// Heartbeat отправляет признак жизни с опциональным каталогом
func (c *RelayClient) Heartbeat(ctx context.Context, agentID, ownerUserID string, catalog []translator.Instrument) error {
	payload := heartbeatPayload{AgentID: agentID, OwnerUserID: ownerUserID, Catalog: catalog}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/agents/heartbeat", payload, nil, "")
}

// balancePayload - тело balance-отчета
type balancePayload struct {
	AgentID string             `json:"agent_id"`
	Balance models.BalanceInfo `json:"balance"`
}

// PushBalance отправляет снимок баланса
func (c *RelayClient) PushBalance(ctx context.Context, agentID string, balance models.BalanceInfo) error {
	payload := balancePayload{AgentID: agentID, Balance: balance}
	return retry.Do(ctx, func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/v1/agents/balance", payload, nil, "")
	}, retry.ConservativeConfig())
}

// BalanceUpdateNeeded спрашивает relay, ждет ли он свежий баланс
func (c *RelayClient) BalanceUpdateNeeded(ctx context.Context, agentID string) (bool, error) {
	path := fmt.Sprintf("/api/v1/agents/%s/balance-update-needed", agentID)

	var resp struct {
		Needed bool `json:"needed"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp, ""); err != nil {
		return false, err
	}
	return resp.Needed, nil
}

// doJSON выполняет один HTTP запрос с JSON телом и ответом
func (c *RelayClient) doJSON(ctx context.Context, method, path string, body, out interface{}, credential string) error {
	var reader io.Reader
	if body != nil {
		data, err := clientJSON.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return retry.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set("X-Pair-Credential", credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return retry.Permanent(ErrRelayUnauthorized)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return retry.Permanent(fmt.Errorf("relay rejected request: %d %s", resp.StatusCode, bytes.TrimSpace(data)))
	case resp.StatusCode >= 500:
		return fmt.Errorf("relay error: %d", resp.StatusCode)
	}

	if out != nil {
		if err := clientJSON.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
