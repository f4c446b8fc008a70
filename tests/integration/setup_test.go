//go:build integration

// Package integration contains integration tests for the copy-trade relay.
//
// These tests verify the full HTTP request cycle against a real Postgres:
// pair administration, signal fan-out, command poll/ack and the history
// journal. Run with:
//
//	go test -tags=integration ./tests/integration/...
//
// The database is configured with TEST_DB_* environment variables and
// defaults to a local postgres with database "copytrade_test".
package integration

import (
	"database/sql"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"copytrade/internal/api"
	"copytrade/internal/queue"
	"copytrade/internal/repository"
	"copytrade/internal/service"
	"copytrade/internal/websocket"
	"copytrade/pkg/crypto"

	_ "github.com/lib/pq"
)

// Админский ключ тестового relay; хеш считается в setupTestServer
const testAdminKey = "integration-admin-key"

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

const schema = `
CREATE TABLE IF NOT EXISTS copy_pairs (
	id              SERIAL PRIMARY KEY,
	owner_user_id   TEXT NOT NULL,
	credential_enc  TEXT NOT NULL,
	credential_hash TEXT NOT NULL,
	master_agent_id TEXT NOT NULL,
	status          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_copy_pairs_credential_hash ON copy_pairs (credential_hash);

CREATE TABLE IF NOT EXISTS pair_destinations (
	id                 SERIAL PRIMARY KEY,
	pair_id            INTEGER NOT NULL REFERENCES copy_pairs (id) ON DELETE CASCADE,
	slave_agent_id     TEXT NOT NULL,
	symbol_map_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	volume_mode        TEXT NOT NULL,
	volume_param       DOUBLE PRECISION NOT NULL DEFAULT 0,
	volume_map_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	copy_protective    BOOLEAN NOT NULL DEFAULT FALSE,
	min_volume_policy  TEXT NOT NULL,
	symbol_overrides   JSONB NOT NULL DEFAULT '{}',
	status             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_liveness (
	agent_id          TEXT PRIMARY KEY,
	owner_user_id     TEXT NOT NULL,
	last_heartbeat_at TIMESTAMPTZ NOT NULL,
	status            TEXT NOT NULL,
	balance           DOUBLE PRECISION,
	equity            DOUBLE PRECISION,
	margin            DOUBLE PRECISION,
	free_margin       DOUBLE PRECISION,
	balance_as_of     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS copy_history (
	id              SERIAL PRIMARY KEY,
	status          TEXT NOT NULL,
	master_agent_id TEXT NOT NULL,
	slave_agent_id  TEXT NOT NULL,
	action          TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	volume          DOUBLE PRECISION NOT NULL,
	message         TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
`

// TestServer инкапсулирует все компоненты relay для интеграционных тестов
type TestServer struct {
	DB     *sql.DB
	Server *httptest.Server
	Queue  *queue.Manager
	Hub    *websocket.Hub
}

func testDSN() string {
	host := envOr("TEST_DB_HOST", "localhost")
	port := envOr("TEST_DB_PORT", "5432")
	name := envOr("TEST_DB_NAME", "copytrade_test")
	user := envOr("TEST_DB_USER", "postgres")
	password := envOr("TEST_DB_PASSWORD", "postgres")
	sslMode := envOr("TEST_DB_SSL_MODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, name, sslMode)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// setupTestServer поднимает relay целиком: БД, репозитории, сервисы,
// роутер и httptest-сервер. Таблицы очищаются перед каждым тестом.
func setupTestServer(t *testing.T) *TestServer {
	t.Helper()

	db, err := sql.Open("postgres", testDSN())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("test database is not reachable: %v", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("apply schema: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE copy_pairs, pair_destinations, agent_liveness, copy_history RESTART IDENTITY CASCADE`); err != nil {
		db.Close()
		t.Fatalf("truncate tables: %v", err)
	}

	adminKeyHash, err := crypto.HashKey(testAdminKey)
	if err != nil {
		db.Close()
		t.Fatalf("hash admin key: %v", err)
	}

	logger := zap.NewNop()

	pairRepo := repository.NewPairRepository(db)
	livenessRepo := repository.NewLivenessRepository(db)
	historyRepo := repository.NewHistoryRepository(db, 1000)

	queueManager := queue.NewManager(50, 30*time.Second)

	hub := websocket.NewHub()
	go hub.Run()

	historyService := service.NewHistoryService(historyRepo, hub, logger)
	agentService := service.NewAgentService(livenessRepo, hub, 90*time.Second, 5*time.Minute, logger)
	pairService := service.NewPairService(pairRepo, queueManager, []byte(testEncryptionKey), logger)
	signalService := service.NewSignalService(pairRepo, livenessRepo, queueManager, agentService, historyService, logger)

	router := api.SetupRoutes(&api.Dependencies{
		SignalService:  signalService,
		PairService:    pairService,
		AgentService:   agentService,
		HistoryService: historyService,
		Queue:          queueManager,
		Hub:            hub,
		AdminKeyHash:   adminKeyHash,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		db.Close()
	})

	return &TestServer{DB: db, Server: srv, Queue: queueManager, Hub: hub}
}
