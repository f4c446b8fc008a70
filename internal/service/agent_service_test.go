package service

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"copytrade/internal/models"
	"copytrade/internal/translator"
)

func newTestAgentService() (*AgentService, *MockLivenessRepository, *MockBroadcaster) {
	liveness := NewMockLivenessRepository()
	broadcaster := NewMockBroadcaster()
	svc := NewAgentService(liveness, broadcaster, 90*time.Second, 5*time.Minute, zap.NewNop())
	return svc, liveness, broadcaster
}

func TestHeartbeatStoresCatalog(t *testing.T) {
	svc, liveness, broadcaster := newTestAgentService()

	catalog := []translator.Instrument{
		{Symbol: "EURUSD", MinVolume: 0.01, MaxVolume: 100, VolumeStep: 0.01, ContractSize: 100000},
	}
	if err := svc.Heartbeat("agent-1", "user-a", catalog); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	rec, err := liveness.GetByID("agent-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Status != models.AgentStatusOnline {
		t.Errorf("status = %q, want online", rec.Status)
	}

	stored, ok := svc.Catalog("agent-1")
	if !ok || len(stored) != 1 || stored[0].Symbol != "EURUSD" {
		t.Errorf("catalog not stored: %v %v", stored, ok)
	}

	if len(broadcaster.liveness) != 1 || broadcaster.liveness[0] != "agent-1:online" {
		t.Errorf("liveness broadcast = %v", broadcaster.liveness)
	}
}

func TestHeartbeatWithoutCatalogKeepsPrevious(t *testing.T) {
	svc, _, _ := newTestAgentService()

	catalog := []translator.Instrument{{Symbol: "XAUUSD"}}
	svc.Heartbeat("agent-1", "user-a", catalog)
	svc.Heartbeat("agent-1", "user-a", nil)

	stored, ok := svc.Catalog("agent-1")
	if !ok || len(stored) != 1 {
		t.Errorf("empty heartbeat must not erase the catalog: %v %v", stored, ok)
	}
}

func TestPushBalanceDefaultsTimestamp(t *testing.T) {
	svc, liveness, broadcaster := newTestAgentService()
	liveness.setOnline("agent-1", "user-a", 0)

	if err := svc.PushBalance("agent-1", models.BalanceInfo{Balance: 1500, Equity: 1480}); err != nil {
		t.Fatalf("PushBalance: %v", err)
	}

	rec, _ := liveness.GetByID("agent-1")
	if !rec.HasBalance() {
		t.Fatal("balance must be recorded")
	}
	if rec.LastBalance.AsOf.IsZero() {
		t.Error("as_of must default to now")
	}
	if len(broadcaster.balances) != 1 {
		t.Errorf("balance broadcast = %v", broadcaster.balances)
	}
}

func TestBalanceUpdateNeeded(t *testing.T) {
	svc, liveness, _ := newTestAgentService()

	liveness.setOnline("never-pushed", "user-a", 0)
	liveness.setOnline("fresh", "user-a", 0)
	liveness.records["fresh"].LastBalance = models.BalanceInfo{Balance: 100, AsOf: time.Now()}
	liveness.setOnline("stale", "user-a", 0)
	liveness.records["stale"].LastBalance = models.BalanceInfo{Balance: 100, AsOf: time.Now().Add(-10 * time.Minute)}

	tests := []struct {
		agentID string
		want    bool
	}{
		{"never-pushed", true},
		{"fresh", false},
		{"stale", true},
	}

	for _, tt := range tests {
		t.Run(tt.agentID, func(t *testing.T) {
			needed, err := svc.BalanceUpdateNeeded(tt.agentID)
			if err != nil {
				t.Fatalf("BalanceUpdateNeeded: %v", err)
			}
			if needed != tt.want {
				t.Errorf("needed = %v, want %v", needed, tt.want)
			}
		})
	}
}

func TestSweepStaleFlipsSilentAgents(t *testing.T) {
	svc, liveness, broadcaster := newTestAgentService()

	liveness.setOnline("silent", "user-a", 0)
	liveness.records["silent"].LastHeartbeatAt = time.Now().Add(-3 * time.Minute)
	liveness.setOnline("alive", "user-a", 0)

	svc.sweepStale()

	if rec, _ := liveness.GetByID("silent"); rec.Status != models.AgentStatusOffline {
		t.Errorf("silent agent status = %q, want offline", rec.Status)
	}
	if rec, _ := liveness.GetByID("alive"); rec.Status != models.AgentStatusOnline {
		t.Errorf("alive agent status = %q, want online", rec.Status)
	}
	if len(broadcaster.liveness) != 1 || broadcaster.liveness[0] != "silent:offline" {
		t.Errorf("offline broadcast = %v", broadcaster.liveness)
	}
}

func TestBalanceDrifted(t *testing.T) {
	tests := []struct {
		name    string
		prev    models.BalanceInfo
		current models.BalanceInfo
		want    bool
	}{
		{
			name:    "no prior snapshot",
			prev:    models.BalanceInfo{},
			current: models.BalanceInfo{Balance: 1000},
			want:    true,
		},
		{
			name:    "within threshold",
			prev:    models.BalanceInfo{Balance: 1000, Equity: 1000},
			current: models.BalanceInfo{Balance: 1002, Equity: 1001},
			want:    false,
		},
		{
			name:    "balance drifted",
			prev:    models.BalanceInfo{Balance: 1000, Equity: 1000},
			current: models.BalanceInfo{Balance: 1006, Equity: 1000},
			want:    true,
		},
		{
			name:    "equity drifted",
			prev:    models.BalanceInfo{Balance: 1000, Equity: 1000},
			current: models.BalanceInfo{Balance: 1000, Equity: 990},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BalanceDrifted(tt.prev, tt.current, 0.5); got != tt.want {
				t.Errorf("BalanceDrifted = %v, want %v", got, tt.want)
			}
		})
	}
}
