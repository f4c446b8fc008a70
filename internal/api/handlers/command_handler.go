package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"copytrade/internal/models"
	"copytrade/internal/queue"
	"copytrade/internal/service"
)

// defaultPollLimit - сколько команд отдается агенту за один poll
const defaultPollLimit = 10

// CommandHandler обслуживает командные очереди slave-агентов.
//
// Endpoints:
// - GET    /api/v1/commands/{agentId} - забрать команды (помечаются delivered)
// - POST   /api/v1/commands/{agentId}/ack - подтвердить исполнение
// - GET    /api/v1/commands/{agentId}/status - глубина очереди агента
// - DELETE /api/v1/commands/{agentId} - очистить очередь агента (admin)
//
// Семантика at-least-once: команда удаляется из очереди только после
// ack; неподтвержденные доставки повторяются после таймаута.
type CommandHandler struct {
	queue   service.QueueInterface
	history service.HistoryServiceInterface
}

// NewCommandHandler создает новый CommandHandler с внедрением зависимостей
func NewCommandHandler(q service.QueueInterface, history service.HistoryServiceInterface) *CommandHandler {
	return &CommandHandler{queue: q, history: history}
}

// ackRequest - тело подтверждения команды
type ackRequest struct {
	QueueID string `json:"queue_id"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Ticket  int64  `json:"ticket,omitempty"`
}

// PollCommands отдает агенту очередные команды.
//
// GET /api/v1/commands/{agentId}?limit=10
//
// Response 200 OK:
//
//	{"commands": [...], "count": 2}
//
// Пустая очередь - нормальный ответ с count=0, не 404.
func (h *CommandHandler) PollCommands(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]

	limit := defaultPollLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	commands := h.queue.Poll(agentID, limit)
	if commands == nil {
		commands = []models.QueuedCommand{}
	}
	service.CommandsDelivered.Add(float64(len(commands)))

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"commands": commands,
		"count":    len(commands),
	})
}

// AckCommand подтверждает исполнение (или провал) команды агентом.
//
// POST /api/v1/commands/{agentId}/ack
//
// Request body:
//
//	{"queue_id": "...", "success": true, "ticket": 123456}
//
// Исход попадает в журнал: успех с тикетом, провал с причиной из message.
func (h *CommandHandler) AckCommand(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]

	var req ackRequest
	if err := decodeJSON(r, &req); err != nil || req.QueueID == "" {
		respondWithError(w, http.StatusBadRequest, "queue_id is required")
		return
	}

	cmd, err := h.queue.Ack(agentID, req.QueueID, req.Success)
	if err != nil {
		if errors.Is(err, queue.ErrCommandNotFound) {
			respondWithError(w, http.StatusNotFound, "command not found in queue")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to ack command")
		return
	}

	service.RecordAck(req.Success)
	service.QueueDepth.Set(float64(h.queue.TotalDepth()))

	status := models.HistoryStatusSuccess
	message := req.Message
	if !req.Success {
		status = models.HistoryStatusError
		if message == "" {
			message = "agent reported execution failure"
		}
	}
	h.history.Record(&models.HistoryEvent{
		Status:  status,
		Master:  cmd.Payload.CopyFrom,
		Slave:   agentID,
		Action:  cmd.Payload.Action,
		Symbol:  cmd.Payload.Symbol,
		Volume:  cmd.Payload.Volume,
		Message: message,
	})

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "acknowledged"})
}

// QueueStatus возвращает глубину очереди агента.
//
// GET /api/v1/commands/{agentId}/status
func (h *CommandHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]
	respondWithJSON(w, http.StatusOK, h.queue.Status(agentID))
}

// ClearQueue удаляет все команды агента.
//
// DELETE /api/v1/commands/{agentId}
func (h *CommandHandler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agentId"]

	removed := h.queue.Clear(agentID)
	service.QueueDepth.Set(float64(h.queue.TotalDepth()))

	respondWithJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
