package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"copytrade/internal/api/handlers"
	"copytrade/internal/api/middleware"
	"copytrade/internal/service"
	"copytrade/internal/websocket"
	"copytrade/pkg/ratelimit"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	SignalService  service.SignalServiceInterface
	PairService    service.PairServiceInterface
	AgentService   service.AgentServiceInterface
	HistoryService service.HistoryServiceInterface
	Queue          service.QueueInterface

	Hub *websocket.Hub

	// bcrypt-хеш admin-ключа для защищенных маршрутов
	AdminKeyHash string

	// Admission-лимитер входящего трафика; nil отключает лимиты
	Limiter *ratelimit.MultiLimiter
}

// SetupRoutes настраивает все HTTP маршруты relay.
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /signal
//	│   └── POST / - принять событие master-агента (pair credential)
//	├── /commands/{agentId}
//	│   ├── GET / - забрать команды (poll)
//	│   ├── POST /ack - подтвердить исполнение
//	│   ├── GET /status - глубина очереди
//	│   └── DELETE / - очистить очередь (admin)
//	├── /agents/
//	│   ├── POST /heartbeat - признак жизни + каталог
//	│   ├── POST /balance - снимок баланса
//	│   ├── GET /{agentId}/balance-update-needed - нужен ли свежий баланс
//	│   ├── GET / - список агентов (admin)
//	│   └── GET /{agentId} - один агент (admin)
//	├── /pairs/ (admin)
//	│   ├── GET / POST / - список и создание
//	│   ├── GET/DELETE /{id}, POST /{id}/start|pause
//	│   ├── GET /{id}/credential - одноразовый показ ключа
//	│   └── /{id}/destinations CRUD
//	└── /history
//	    ├── GET / - журнал (admin)
//	    └── DELETE / - очистка (admin)
//
// /ws/stream - WebSocket поток дашбордов
// /metrics   - Prometheus метрики
// /health    - health check
//
// Middleware: Recovery → Logging → CORS глобально; RateLimit на
// агентских входах; AdminAuth на административных маршрутах.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	signalHandler := handlers.NewSignalHandler(deps.SignalService)
	commandHandler := handlers.NewCommandHandler(deps.Queue, deps.HistoryService)
	agentHandler := handlers.NewAgentHandler(deps.AgentService)
	pairHandler := handlers.NewPairHandler(deps.PairService)
	historyHandler := handlers.NewHistoryHandler(deps.HistoryService)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Агентские маршруты: credential/без auth, admission rate limit
	signal := api.PathPrefix("/signal").Subrouter()
	if deps.Limiter != nil {
		signal.Use(middleware.RateLimit(deps.Limiter, middleware.CategorySignal))
	}
	signal.HandleFunc("", signalHandler.SubmitSignal).Methods("POST")

	commands := api.PathPrefix("/commands").Subrouter()
	if deps.Limiter != nil {
		commands.Use(middleware.RateLimit(deps.Limiter, middleware.CategoryCommand))
	}
	commands.HandleFunc("/{agentId}", commandHandler.PollCommands).Methods("GET")
	commands.HandleFunc("/{agentId}/ack", commandHandler.AckCommand).Methods("POST")
	commands.HandleFunc("/{agentId}/status", commandHandler.QueueStatus).Methods("GET")

	api.HandleFunc("/agents/heartbeat", agentHandler.Heartbeat).Methods("POST")
	api.HandleFunc("/agents/balance", agentHandler.PushBalance).Methods("POST")
	api.HandleFunc("/agents/{agentId}/balance-update-needed", agentHandler.BalanceUpdateNeeded).Methods("GET")

	// Административные маршруты под admin-ключом
	admin := api.PathPrefix("").Subrouter()
	admin.Use(middleware.AdminAuth(deps.AdminKeyHash))

	admin.HandleFunc("/pairs", pairHandler.GetPairs).Methods("GET")
	admin.HandleFunc("/pairs", pairHandler.CreatePair).Methods("POST")
	admin.HandleFunc("/pairs/{id}", pairHandler.GetPair).Methods("GET")
	admin.HandleFunc("/pairs/{id}", pairHandler.DeletePair).Methods("DELETE")
	admin.HandleFunc("/pairs/{id}/start", pairHandler.StartPair).Methods("POST")
	admin.HandleFunc("/pairs/{id}/pause", pairHandler.PausePair).Methods("POST")
	admin.HandleFunc("/pairs/{id}/credential", pairHandler.RevealCredential).Methods("GET")
	admin.HandleFunc("/pairs/{id}/destinations", pairHandler.AddDestination).Methods("POST")
	admin.HandleFunc("/pairs/{id}/destinations/{destId}", pairHandler.UpdateDestination).Methods("PATCH")
	admin.HandleFunc("/pairs/{id}/destinations/{destId}", pairHandler.RemoveDestination).Methods("DELETE")

	admin.HandleFunc("/agents", agentHandler.ListAgents).Methods("GET")
	admin.HandleFunc("/agents/{agentId}", agentHandler.GetAgent).Methods("GET")

	admin.HandleFunc("/commands/{agentId}", commandHandler.ClearQueue).Methods("DELETE")

	admin.HandleFunc("/history", historyHandler.GetHistory).Methods("GET")
	admin.HandleFunc("/history", historyHandler.ClearHistory).Methods("DELETE")

	// WebSocket поток дашбордов
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		})
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
