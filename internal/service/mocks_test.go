package service

import (
	"time"

	"copytrade/internal/models"
	"copytrade/internal/queue"
	"copytrade/internal/repository"
	"copytrade/internal/translator"
)

// ============ Mock PairRepository ============

type MockPairRepository struct {
	pairs      map[int]*models.CopyPair
	hashes     map[int]string
	createErr  error
	getErr     error
	updateErr  error
	deleteErr  error
	nextID     int
	nextDestID int
}

func NewMockPairRepository() *MockPairRepository {
	return &MockPairRepository{
		pairs:      make(map[int]*models.CopyPair),
		hashes:     make(map[int]string),
		nextID:     1,
		nextDestID: 1,
	}
}

func (m *MockPairRepository) Create(pair *models.CopyPair, credentialHash string) error {
	if m.createErr != nil {
		return m.createErr
	}
	pair.ID = m.nextID
	m.nextID++
	pair.CreatedAt = time.Now()
	pair.UpdatedAt = pair.CreatedAt
	if pair.Status == "" {
		pair.Status = models.PairStatusPaused
	}
	stored := *pair
	m.pairs[pair.ID] = &stored
	m.hashes[pair.ID] = credentialHash
	return nil
}

func (m *MockPairRepository) GetByID(id int) (*models.CopyPair, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if pair, exists := m.pairs[id]; exists {
		copied := *pair
		return &copied, nil
	}
	return nil, repository.ErrPairNotFound
}

func (m *MockPairRepository) GetByCredentialHash(credentialHash string) ([]*models.CopyPair, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.CopyPair, 0)
	for id, hash := range m.hashes {
		if hash == credentialHash {
			copied := *m.pairs[id]
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *MockPairRepository) GetByOwner(ownerUserID string) ([]*models.CopyPair, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.CopyPair, 0)
	for _, pair := range m.pairs {
		if pair.OwnerUserID == ownerUserID {
			copied := *pair
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *MockPairRepository) GetAll() ([]*models.CopyPair, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.CopyPair, 0, len(m.pairs))
	for _, pair := range m.pairs {
		copied := *pair
		result = append(result, &copied)
	}
	return result, nil
}

func (m *MockPairRepository) UpdateStatus(id int, status string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	pair, exists := m.pairs[id]
	if !exists {
		return repository.ErrPairNotFound
	}
	pair.Status = status
	pair.UpdatedAt = time.Now()
	return nil
}

func (m *MockPairRepository) Delete(id int) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.pairs[id]; !exists {
		return repository.ErrPairNotFound
	}
	delete(m.pairs, id)
	delete(m.hashes, id)
	return nil
}

func (m *MockPairRepository) AddDestination(d *models.Destination) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	pair, exists := m.pairs[d.PairID]
	if !exists {
		return repository.ErrPairNotFound
	}
	d.ID = m.nextDestID
	m.nextDestID++
	if d.Status == "" {
		d.Status = models.PairStatusActive
	}
	pair.Destinations = append(pair.Destinations, *d)
	return nil
}

func (m *MockPairRepository) UpdateDestination(d *models.Destination) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, pair := range m.pairs {
		for i := range pair.Destinations {
			if pair.Destinations[i].ID == d.ID {
				d.PairID = pair.ID
				pair.Destinations[i] = *d
				return nil
			}
		}
	}
	return repository.ErrDestinationNotFound
}

func (m *MockPairRepository) RemoveDestination(id int) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for _, pair := range m.pairs {
		for i := range pair.Destinations {
			if pair.Destinations[i].ID == id {
				pair.Destinations = append(pair.Destinations[:i], pair.Destinations[i+1:]...)
				return nil
			}
		}
	}
	return repository.ErrDestinationNotFound
}

func (m *MockPairRepository) Count() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.pairs), nil
}

// ============ Mock LivenessRepository ============

type MockLivenessRepository struct {
	records    map[string]*models.AgentLivenessRecord
	upsertErr  error
	getErr     error
	updateErr  error
	markErr    error
	deleteErr  error
}

func NewMockLivenessRepository() *MockLivenessRepository {
	return &MockLivenessRepository{
		records: make(map[string]*models.AgentLivenessRecord),
	}
}

// setOnline — шорткат для тестов: агент онлайн с заданным балансом
func (m *MockLivenessRepository) setOnline(agentID, ownerUserID string, balance float64) {
	rec := &models.AgentLivenessRecord{
		AgentID:         agentID,
		OwnerUserID:     ownerUserID,
		LastHeartbeatAt: time.Now(),
		Status:          models.AgentStatusOnline,
	}
	if balance > 0 {
		rec.LastBalance = models.BalanceInfo{Balance: balance, Equity: balance, AsOf: time.Now()}
	}
	m.records[agentID] = rec
}

func (m *MockLivenessRepository) UpsertHeartbeat(agentID, ownerUserID string, at time.Time) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	rec, exists := m.records[agentID]
	if !exists {
		rec = &models.AgentLivenessRecord{AgentID: agentID, OwnerUserID: ownerUserID}
		m.records[agentID] = rec
	}
	rec.LastHeartbeatAt = at
	rec.Status = models.AgentStatusOnline
	return nil
}

func (m *MockLivenessRepository) UpdateBalance(agentID string, balance models.BalanceInfo) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	rec, exists := m.records[agentID]
	if !exists {
		return repository.ErrAgentNotFound
	}
	rec.LastBalance = balance
	return nil
}

func (m *MockLivenessRepository) GetByID(agentID string) (*models.AgentLivenessRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if rec, exists := m.records[agentID]; exists {
		copied := *rec
		return &copied, nil
	}
	return nil, repository.ErrAgentNotFound
}

func (m *MockLivenessRepository) GetAll() ([]*models.AgentLivenessRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.AgentLivenessRecord, 0, len(m.records))
	for _, rec := range m.records {
		copied := *rec
		result = append(result, &copied)
	}
	return result, nil
}

func (m *MockLivenessRepository) MarkStale(deadline time.Time) ([]string, error) {
	if m.markErr != nil {
		return nil, m.markErr
	}
	var flipped []string
	for id, rec := range m.records {
		if rec.Status == models.AgentStatusOnline && rec.LastHeartbeatAt.Before(deadline) {
			rec.Status = models.AgentStatusOffline
			flipped = append(flipped, id)
		}
	}
	return flipped, nil
}

func (m *MockLivenessRepository) CountOnline() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	n := 0
	for _, rec := range m.records {
		if rec.Status == models.AgentStatusOnline {
			n++
		}
	}
	return n, nil
}

func (m *MockLivenessRepository) Delete(agentID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.records[agentID]; !exists {
		return repository.ErrAgentNotFound
	}
	delete(m.records, agentID)
	return nil
}

// ============ Mock HistoryRepository ============

type MockHistoryRepository struct {
	events    []*models.HistoryEvent
	insertErr error
	getErr    error
	clearErr  error
	nextID    int
}

func NewMockHistoryRepository() *MockHistoryRepository {
	return &MockHistoryRepository{nextID: 1}
}

func (m *MockHistoryRepository) Insert(ev *models.HistoryEvent) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	ev.ID = m.nextID
	m.nextID++
	ev.CreatedAt = time.Now()
	m.events = append(m.events, ev)
	return nil
}

func (m *MockHistoryRepository) Recent(limit int) ([]*models.HistoryEvent, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.HistoryEvent, 0, limit)
	for i := len(m.events) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, m.events[i])
	}
	return result, nil
}

func (m *MockHistoryRepository) Clear() (int, error) {
	if m.clearErr != nil {
		return 0, m.clearErr
	}
	n := len(m.events)
	m.events = nil
	return n, nil
}

func (m *MockHistoryRepository) DeleteByAgent(agentID string) error {
	kept := m.events[:0]
	for _, ev := range m.events {
		if ev.Master != agentID && ev.Slave != agentID {
			kept = append(kept, ev)
		}
	}
	m.events = kept
	return nil
}

func (m *MockHistoryRepository) Count() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.events), nil
}

// ============ Mock Queue ============

type MockQueue struct {
	enqueued    []*models.QueuedCommand
	evictNext   *models.QueuedCommand
	clearedPair []int
}

func NewMockQueue() *MockQueue {
	return &MockQueue{}
}

func (m *MockQueue) Enqueue(cmd *models.QueuedCommand) *models.QueuedCommand {
	m.enqueued = append(m.enqueued, cmd)
	evicted := m.evictNext
	m.evictNext = nil
	return evicted
}

func (m *MockQueue) Poll(agentID string, limit int) []models.QueuedCommand {
	var result []models.QueuedCommand
	for _, cmd := range m.enqueued {
		if cmd.TargetAgentID == agentID && (limit <= 0 || len(result) < limit) {
			result = append(result, *cmd)
		}
	}
	return result
}

func (m *MockQueue) Ack(agentID, queueID string, success bool) (*models.QueuedCommand, error) {
	for i, cmd := range m.enqueued {
		if cmd.TargetAgentID == agentID && cmd.ID == queueID {
			m.enqueued = append(m.enqueued[:i], m.enqueued[i+1:]...)
			return cmd, nil
		}
	}
	return nil, queue.ErrCommandNotFound
}

func (m *MockQueue) Clear(agentID string) int {
	kept := m.enqueued[:0]
	removed := 0
	for _, cmd := range m.enqueued {
		if cmd.TargetAgentID == agentID {
			removed++
			continue
		}
		kept = append(kept, cmd)
	}
	m.enqueued = kept
	return removed
}

func (m *MockQueue) ClearPair(pairID int) int {
	kept := m.enqueued[:0]
	removed := 0
	for _, cmd := range m.enqueued {
		if cmd.Payload.PairID == pairID {
			removed++
			continue
		}
		kept = append(kept, cmd)
	}
	m.enqueued = kept
	return removed
}

func (m *MockQueue) Status(agentID string) queue.Snapshot {
	snap := queue.Snapshot{AgentID: agentID}
	for _, cmd := range m.enqueued {
		if cmd.TargetAgentID == agentID {
			snap.Total++
			snap.Pending++
		}
	}
	return snap
}

func (m *MockQueue) TotalDepth() int {
	return len(m.enqueued)
}

// commandsFor возвращает команды, поставленные конкретному агенту
func (m *MockQueue) commandsFor(agentID string) []*models.QueuedCommand {
	var result []*models.QueuedCommand
	for _, cmd := range m.enqueued {
		if cmd.TargetAgentID == agentID {
			result = append(result, cmd)
		}
	}
	return result
}

// ============ Mock CatalogProvider ============

type MockCatalogProvider struct {
	catalogs map[string][]translator.Instrument
}

func NewMockCatalogProvider() *MockCatalogProvider {
	return &MockCatalogProvider{catalogs: make(map[string][]translator.Instrument)}
}

func (m *MockCatalogProvider) set(agentID string, catalog []translator.Instrument) {
	m.catalogs[agentID] = catalog
}

func (m *MockCatalogProvider) Catalog(agentID string) ([]translator.Instrument, bool) {
	catalog, ok := m.catalogs[agentID]
	return catalog, ok
}

// ============ Mock Broadcaster ============

type MockBroadcaster struct {
	history  []*models.HistoryEvent
	liveness []string // "agentID:status"
	balances []string // agentID
}

func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (m *MockBroadcaster) BroadcastHistory(ev *models.HistoryEvent) {
	m.history = append(m.history, ev)
}

func (m *MockBroadcaster) BroadcastLiveness(agentID, status string) {
	m.liveness = append(m.liveness, agentID+":"+status)
}

func (m *MockBroadcaster) BroadcastBalance(agentID string, balance models.BalanceInfo) {
	m.balances = append(m.balances, agentID)
}
