package handlers

import (
	"net/http"
	"strconv"

	"copytrade/internal/service"
)

// HistoryHandler обслуживает журнал исходов копирования.
//
// Endpoints:
// - GET    /api/v1/history?limit=50 - последние записи, новые первыми
// - DELETE /api/v1/history - очистить журнал (admin)
type HistoryHandler struct {
	historyService service.HistoryServiceInterface
}

// NewHistoryHandler создает новый HistoryHandler с внедрением зависимостей
func NewHistoryHandler(historyService service.HistoryServiceInterface) *HistoryHandler {
	return &HistoryHandler{historyService: historyService}
}

// GetHistory возвращает последние записи журнала.
//
// GET /api/v1/history?limit=50
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	events, err := h.historyService.Recent(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	respondWithJSON(w, http.StatusOK, events)
}

// ClearHistory очищает журнал.
//
// DELETE /api/v1/history
func (h *HistoryHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	removed, err := h.historyService.Clear()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
