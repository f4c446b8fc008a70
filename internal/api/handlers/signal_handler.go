package handlers

import (
	"errors"
	"net/http"

	"copytrade/internal/models"
	"copytrade/internal/service"
)

// credentialHeader - заголовок с pair credential master-агента
const credentialHeader = "X-Pair-Credential"

// SignalHandler принимает торговые события от master-агентов.
//
// Endpoints:
// - POST /api/v1/signal - принять событие (open/close/partial_close/modify)
//
// Аутентификация: pair credential в заголовке X-Pair-Credential.
// Событие раскладывается по очередям всех активных направлений пары;
// ответ сообщает, сколько команд поставлено.
type SignalHandler struct {
	signalService service.SignalServiceInterface
}

// NewSignalHandler создает новый SignalHandler с внедрением зависимостей
func NewSignalHandler(signalService service.SignalServiceInterface) *SignalHandler {
	return &SignalHandler{signalService: signalService}
}

// SubmitSignal принимает одно торговое событие.
//
// POST /api/v1/signal
//
// Request body:
//
//	{
//	  "account": "master-001",
//	  "order_id": "123456",
//	  "event": "open",
//	  "symbol": "EURUSD",
//	  "type": "buy",
//	  "volume": 0.5,
//	  "tp": 1.1050,
//	  "sl": 1.0950,
//	  "order_type": "market",
//	  "price": 1.1000
//	}
//
// Response 200 OK:
//
//	{"accepted": true, "pairs_matched": 1, "enqueued": 2}
//
// Response 401 Unauthorized: credential не привязан ни к одной паре
func (h *SignalHandler) SubmitSignal(w http.ResponseWriter, r *http.Request) {
	credential := r.Header.Get(credentialHeader)
	if credential == "" {
		respondWithError(w, http.StatusUnauthorized, "missing pair credential")
		return
	}

	var event models.TradeEvent
	if err := decodeJSON(r, &event); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.signalService.Submit(credential, &event)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAuth):
			respondWithError(w, http.StatusUnauthorized, "unknown pair credential")
		case errors.Is(err, service.ErrInvalidEvent):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "failed to process signal")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
