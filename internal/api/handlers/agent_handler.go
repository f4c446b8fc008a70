package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"copytrade/internal/models"
	"copytrade/internal/repository"
	"copytrade/internal/service"
	"copytrade/internal/translator"
)

// AgentHandler обслуживает liveness- и balance-отчеты агентов.
//
// Endpoints:
// - POST /api/v1/agents/heartbeat - признак жизни + каталог инструментов
// - POST /api/v1/agents/balance - снимок баланса
// - GET  /api/v1/agents/{agentId}/balance-update-needed - нужен ли свежий баланс
// - GET  /api/v1/agents - список агентов (admin)
// - GET  /api/v1/agents/{agentId} - один агент (admin)
type AgentHandler struct {
	agentService service.AgentServiceInterface
}

// NewAgentHandler создает новый AgentHandler с внедрением зависимостей
func NewAgentHandler(agentService service.AgentServiceInterface) *AgentHandler {
	return &AgentHandler{agentService: agentService}
}

// heartbeatRequest - тело heartbeat-отчета
type heartbeatRequest struct {
	AgentID     string                  `json:"agent_id"`
	OwnerUserID string                  `json:"owner_user_id"`
	Catalog     []translator.Instrument `json:"catalog,omitempty"`
}

// balanceRequest - тело balance-отчета
type balanceRequest struct {
	AgentID string             `json:"agent_id"`
	Balance models.BalanceInfo `json:"balance"`
}

// Heartbeat фиксирует признак жизни агента.
//
// POST /api/v1/agents/heartbeat
//
// Request body:
//
//	{
//	  "agent_id": "slave-001",
//	  "owner_user_id": "user-a",
//	  "catalog": [
//	    {"symbol": "EURUSDm", "min_volume": 0.01, "max_volume": 100,
//	     "volume_step": 0.01, "contract_size": 100000}
//	  ]
//	}
//
// Каталог опционален: присылается на первом heartbeat и при изменении
// Market Watch терминала.
func (h *AgentHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeJSON(r, &req); err != nil || req.AgentID == "" {
		respondWithError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	if err := h.agentService.Heartbeat(req.AgentID, req.OwnerUserID, req.Catalog); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to record heartbeat")
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "ok"})
}

// PushBalance сохраняет снимок баланса агента.
//
// POST /api/v1/agents/balance
func (h *AgentHandler) PushBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := decodeJSON(r, &req); err != nil || req.AgentID == "" {
		respondWithError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	if err := h.agentService.PushBalance(req.AgentID, req.Balance); err != nil {
		if errors.Is(err, repository.ErrAgentNotFound) {
			respondWithError(w, http.StatusNotFound, "agent has never reported a heartbeat")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to store balance")
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "ok"})
}

// BalanceUpdateNeeded сообщает агенту, ждет ли relay свежий баланс.
//
// GET /api/v1/agents/{agentId}/balance-update-needed
//
// Response 200 OK:
//
//	{"needed": true}
func (h *AgentHandler) BalanceUpdateNeeded(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]

	needed, err := h.agentService.BalanceUpdateNeeded(agentID)
	if err != nil {
		if errors.Is(err, repository.ErrAgentNotFound) {
			// Неизвестный агент: баланс точно нужен
			respondWithJSON(w, http.StatusOK, map[string]bool{"needed": true})
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to check balance age")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"needed": needed})
}

// ListAgents возвращает записи всех агентов.
//
// GET /api/v1/agents
func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	records, err := h.agentService.List()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	respondWithJSON(w, http.StatusOK, records)
}

// GetAgent возвращает запись одного агента.
//
// GET /api/v1/agents/{agentId}
func (h *AgentHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]

	rec, err := h.agentService.Get(agentID)
	if err != nil {
		if errors.Is(err, repository.ErrAgentNotFound) {
			respondWithError(w, http.StatusNotFound, "agent not found")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to load agent")
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}
