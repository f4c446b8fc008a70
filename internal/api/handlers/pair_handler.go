package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"copytrade/internal/models"
	"copytrade/internal/service"
)

// PairHandler обслуживает администрирование копи-пар.
//
// Endpoints:
// - GET    /api/v1/pairs?owner=user-a - список пар
// - POST   /api/v1/pairs - создать пару (credential возвращается один раз)
// - GET    /api/v1/pairs/{id} - получить пару
// - DELETE /api/v1/pairs/{id} - удалить пару с каскадной очисткой очередей
// - POST   /api/v1/pairs/{id}/start - активировать
// - POST   /api/v1/pairs/{id}/pause - приостановить
// - GET    /api/v1/pairs/{id}/credential - показать credential владельцу
// - POST   /api/v1/pairs/{id}/destinations - добавить направление
// - PATCH  /api/v1/pairs/{id}/destinations/{destId} - обновить направление
// - DELETE /api/v1/pairs/{id}/destinations/{destId} - удалить направление
//
// Все endpoints защищены admin-ключом.
type PairHandler struct {
	pairService service.PairServiceInterface
}

// NewPairHandler создает новый PairHandler с внедрением зависимостей
func NewPairHandler(pairService service.PairServiceInterface) *PairHandler {
	return &PairHandler{pairService: pairService}
}

// createPairRequest - тело создания пары
type createPairRequest struct {
	OwnerUserID   string `json:"owner_user_id"`
	MasterAgentID string `json:"master_agent_id"`
}

// createPairResponse - ответ с одноразовым показом credential
type createPairResponse struct {
	Pair       *models.CopyPair `json:"pair"`
	Credential string           `json:"credential"`
}

// GetPairs возвращает список пар.
//
// GET /api/v1/pairs?owner=user-a
func (h *PairHandler) GetPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.pairService.List(r.URL.Query().Get("owner"))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list pairs")
		return
	}
	respondWithJSON(w, http.StatusOK, pairs)
}

// CreatePair создает новую пару.
//
// POST /api/v1/pairs
//
// Response 201 Created:
//
//	{"pair": {...}, "credential": "ctk_..."}
//
// Credential показывается только в этом ответе; дальше доступен
// владельцу через /credential.
func (h *PairHandler) CreatePair(w http.ResponseWriter, r *http.Request) {
	var req createPairRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, credential, err := h.pairService.Create(req.OwnerUserID, req.MasterAgentID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPair) {
			respondWithError(w, http.StatusBadRequest, "owner_user_id and master_agent_id are required")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to create pair")
		return
	}

	respondWithJSON(w, http.StatusCreated, createPairResponse{Pair: pair, Credential: credential})
}

// GetPair возвращает одну пару.
//
// GET /api/v1/pairs/{id}
func (h *PairHandler) GetPair(w http.ResponseWriter, r *http.Request) {
	id, ok := pairID(w, r)
	if !ok {
		return
	}

	pair, err := h.pairService.Get(id)
	if err != nil {
		respondPairError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, pair)
}

// DeletePair удаляет пару.
//
// DELETE /api/v1/pairs/{id}
func (h *PairHandler) DeletePair(w http.ResponseWriter, r *http.Request) {
	id, ok := pairID(w, r)
	if !ok {
		return
	}

	if err := h.pairService.Delete(id); err != nil {
		respondPairError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartPair активирует пару.
//
// POST /api/v1/pairs/{id}/start
func (h *PairHandler) StartPair(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.PairStatusActive)
}

// PausePair приостанавливает пару.
//
// POST /api/v1/pairs/{id}/pause
func (h *PairHandler) PausePair(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, models.PairStatusPaused)
}

func (h *PairHandler) setStatus(w http.ResponseWriter, r *http.Request, status string) {
	id, ok := pairID(w, r)
	if !ok {
		return
	}

	if err := h.pairService.SetStatus(id, status); err != nil {
		respondPairError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: status})
}

// RevealCredential показывает открытый credential пары владельцу.
//
// GET /api/v1/pairs/{id}/credential
func (h *PairHandler) RevealCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := pairID(w, r)
	if !ok {
		return
	}

	credential, err := h.pairService.RevealCredential(id)
	if err != nil {
		respondPairError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"credential": credential})
}

// AddDestination добавляет направление к паре.
//
// POST /api/v1/pairs/{id}/destinations
func (h *PairHandler) AddDestination(w http.ResponseWriter, r *http.Request) {
	id, ok := pairID(w, r)
	if !ok {
		return
	}

	var dest models.Destination
	if err := decodeJSON(r, &dest); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.pairService.AddDestination(id, &dest); err != nil {
		respondPairError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, dest)
}

// UpdateDestination обновляет настройки направления.
//
// PATCH /api/v1/pairs/{id}/destinations/{destId}
func (h *PairHandler) UpdateDestination(w http.ResponseWriter, r *http.Request) {
	id, ok := pairID(w, r)
	if !ok {
		return
	}
	destID, err := strconv.Atoi(mux.Vars(r)["destId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid destination id")
		return
	}

	var dest models.Destination
	if err := decodeJSON(r, &dest); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dest.ID = destID
	dest.PairID = id

	if err := h.pairService.UpdateDestination(&dest); err != nil {
		respondPairError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, dest)
}

// RemoveDestination удаляет направление пары.
//
// DELETE /api/v1/pairs/{id}/destinations/{destId}
func (h *PairHandler) RemoveDestination(w http.ResponseWriter, r *http.Request) {
	destID, err := strconv.Atoi(mux.Vars(r)["destId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid destination id")
		return
	}

	if err := h.pairService.RemoveDestination(destID); err != nil {
		respondPairError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pairID извлекает и валидирует {id} из URL
func pairID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid pair id")
		return 0, false
	}
	return id, true
}

// respondPairError транслирует ошибки сервиса пар в HTTP статусы
func respondPairError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrPairNotFound):
		respondWithError(w, http.StatusNotFound, "pair not found")
	case errors.Is(err, service.ErrDestinationNotFound):
		respondWithError(w, http.StatusNotFound, "destination not found")
	case errors.Is(err, service.ErrInvalidPair):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, "pair operation failed")
	}
}
