package service

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"copytrade/internal/models"
	"copytrade/pkg/crypto"
)

func newTestPairService() (*PairService, *MockPairRepository, *MockQueue) {
	pairs := NewMockPairRepository()
	q := NewMockQueue()
	key := make([]byte, 32)
	svc := NewPairService(pairs, q, key, zap.NewNop())
	return svc, pairs, q
}

func TestPairCreate(t *testing.T) {
	svc, _, _ := newTestPairService()

	pair, credential, err := svc.Create("user-a", "master-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if pair.ID == 0 {
		t.Error("pair id must be assigned")
	}
	if pair.Status != models.PairStatusPaused {
		t.Errorf("status = %q, new pairs must start paused", pair.Status)
	}
	if !strings.HasPrefix(credential, crypto.CredentialPrefix) {
		t.Errorf("credential %q must carry the %q prefix", credential, crypto.CredentialPrefix)
	}
	if pair.Credential != "" {
		t.Error("response must not expose the stored ciphertext")
	}
}

func TestPairCreateValidation(t *testing.T) {
	svc, _, _ := newTestPairService()

	tests := []struct {
		name   string
		owner  string
		master string
	}{
		{"empty owner", "", "master-1"},
		{"empty master", "user-a", ""},
		{"whitespace owner", "   ", "master-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.Create(tt.owner, tt.master); !errors.Is(err, ErrInvalidPair) {
				t.Errorf("expected ErrInvalidPair, got %v", err)
			}
		})
	}
}

func TestPairCredentialLookupRoundTrip(t *testing.T) {
	svc, pairs, _ := newTestPairService()

	created, credential, err := svc.Create("user-a", "master-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Хеш открытого credential находит пару при приеме сигнала
	found, err := pairs.GetByCredentialHash(crypto.HashCredential(credential))
	if err != nil {
		t.Fatalf("GetByCredentialHash: %v", err)
	}
	if len(found) != 1 || found[0].ID != created.ID {
		t.Fatalf("credential hash lookup failed: %v", found)
	}
}

func TestPairRevealCredential(t *testing.T) {
	svc, _, _ := newTestPairService()

	pair, credential, err := svc.Create("user-a", "master-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	revealed, err := svc.RevealCredential(pair.ID)
	if err != nil {
		t.Fatalf("RevealCredential: %v", err)
	}
	if revealed != credential {
		t.Errorf("revealed %q, want the original credential", revealed)
	}

	if _, err := svc.RevealCredential(9999); !errors.Is(err, ErrPairNotFound) {
		t.Errorf("expected ErrPairNotFound, got %v", err)
	}
}

func TestPairSetStatus(t *testing.T) {
	svc, _, _ := newTestPairService()

	pair, _, _ := svc.Create("user-a", "master-1")

	if err := svc.SetStatus(pair.ID, models.PairStatusActive); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, err := svc.Get(pair.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.PairStatusActive {
		t.Errorf("status = %q, want active", got.Status)
	}

	if err := svc.SetStatus(9999, models.PairStatusActive); !errors.Is(err, ErrPairNotFound) {
		t.Errorf("expected ErrPairNotFound, got %v", err)
	}
}

func TestPairDeleteClearsQueue(t *testing.T) {
	svc, _, q := newTestPairService()

	pair, _, _ := svc.Create("user-a", "master-1")

	// В очереди лежат команды удаляемой пары и чужая
	q.Enqueue(&models.QueuedCommand{ID: "c1", TargetAgentID: "slave-1", Payload: models.CommandPayload{PairID: pair.ID}})
	q.Enqueue(&models.QueuedCommand{ID: "c2", TargetAgentID: "slave-2", Payload: models.CommandPayload{PairID: pair.ID}})
	q.Enqueue(&models.QueuedCommand{ID: "c3", TargetAgentID: "slave-1", Payload: models.CommandPayload{PairID: pair.ID + 1}})

	if err := svc.Delete(pair.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := svc.Get(pair.ID); !errors.Is(err, ErrPairNotFound) {
		t.Errorf("pair must be gone, got %v", err)
	}
	if q.TotalDepth() != 1 {
		t.Errorf("queue depth = %d, only the foreign command must survive", q.TotalDepth())
	}
}

func TestPairListHidesCredentials(t *testing.T) {
	svc, _, _ := newTestPairService()

	svc.Create("user-a", "master-1")
	svc.Create("user-a", "master-2")
	svc.Create("user-b", "master-3")

	list, err := svc.List("user-a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 pairs for user-a, got %d", len(list))
	}
	for _, pair := range list {
		if pair.Credential != "" {
			t.Error("listing must not expose credentials")
		}
	}

	all, err := svc.List("")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 pairs total, got %d", len(all))
	}
}

func TestPairDestinationLifecycle(t *testing.T) {
	svc, _, _ := newTestPairService()

	pair, _, _ := svc.Create("user-a", "master-1")

	dest := &models.Destination{
		SlaveAgentID: "slave-1",
		Settings: models.DestinationSettings{
			VolumeMode:  models.VolumeModeMultiply,
			VolumeParam: 0.5,
		},
	}
	if err := svc.AddDestination(pair.ID, dest); err != nil {
		t.Fatalf("AddDestination: %v", err)
	}
	if dest.ID == 0 {
		t.Fatal("destination id must be assigned")
	}

	dest.Settings.VolumeParam = 2.0
	if err := svc.UpdateDestination(dest); err != nil {
		t.Fatalf("UpdateDestination: %v", err)
	}

	got, err := svc.Get(pair.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Destinations) != 1 || got.Destinations[0].Settings.VolumeParam != 2.0 {
		t.Fatalf("destination update not persisted: %+v", got.Destinations)
	}

	if err := svc.RemoveDestination(dest.ID); err != nil {
		t.Fatalf("RemoveDestination: %v", err)
	}
	if err := svc.RemoveDestination(dest.ID); !errors.Is(err, ErrDestinationNotFound) {
		t.Errorf("expected ErrDestinationNotFound, got %v", err)
	}
}

func TestPairDestinationValidation(t *testing.T) {
	svc, _, _ := newTestPairService()

	pair, _, _ := svc.Create("user-a", "master-1")

	if err := svc.AddDestination(pair.ID, &models.Destination{SlaveAgentID: ""}); !errors.Is(err, ErrInvalidPair) {
		t.Errorf("empty slave agent: expected ErrInvalidPair, got %v", err)
	}
	if err := svc.AddDestination(pair.ID, &models.Destination{
		SlaveAgentID: "slave-1",
		Settings:     models.DestinationSettings{VolumeMode: "martingale"},
	}); !errors.Is(err, ErrInvalidPair) {
		t.Errorf("unknown volume mode: expected ErrInvalidPair, got %v", err)
	}
	if err := svc.AddDestination(9999, &models.Destination{SlaveAgentID: "slave-1"}); !errors.Is(err, ErrPairNotFound) {
		t.Errorf("missing pair: expected ErrPairNotFound, got %v", err)
	}
}
