package handlers

import (
	"errors"
	"sync"

	"copytrade/internal/models"
	"copytrade/internal/queue"
	"copytrade/internal/repository"
	"copytrade/internal/service"
	"copytrade/internal/translator"
)

// ErrMockInternal имитирует отказ нижележащего слоя
var ErrMockInternal = errors.New("mock internal error")

// ============ Mock SignalService ============

type MockSignalService struct {
	submitErr  error
	lastEvent  *models.TradeEvent
	lastCred   string
	nextResult *service.SubmitResult
}

func NewMockSignalService() *MockSignalService {
	return &MockSignalService{
		nextResult: &service.SubmitResult{Accepted: true, PairsMatched: 1, Enqueued: 1},
	}
}

func (m *MockSignalService) Submit(credential string, event *models.TradeEvent) (*service.SubmitResult, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.lastCred = credential
	m.lastEvent = event
	return m.nextResult, nil
}

// ============ Mock PairService ============

type MockPairService struct {
	pairs      map[int]*models.CopyPair
	creds      map[int]string
	createErr  error
	getErr     error
	statusErr  error
	deleteErr  error
	destErr    error
	nextID     int
	nextDestID int
	mu         sync.Mutex
}

func NewMockPairService() *MockPairService {
	return &MockPairService{
		pairs:  make(map[int]*models.CopyPair),
		creds:  make(map[int]string),
		nextID: 1,
	}
}

func (m *MockPairService) Create(ownerUserID, masterAgentID string) (*models.CopyPair, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, "", m.createErr
	}
	if ownerUserID == "" || masterAgentID == "" {
		return nil, "", service.ErrInvalidPair
	}

	pair := &models.CopyPair{
		ID:            m.nextID,
		OwnerUserID:   ownerUserID,
		MasterAgentID: masterAgentID,
		Status:        models.PairStatusPaused,
	}
	credential := "ctk_mock"
	m.pairs[pair.ID] = pair
	m.creds[pair.ID] = credential
	m.nextID++
	return pair, credential, nil
}

func (m *MockPairService) Get(id int) (*models.CopyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	if pair, exists := m.pairs[id]; exists {
		return pair, nil
	}
	return nil, service.ErrPairNotFound
}

func (m *MockPairService) List(ownerUserID string) ([]*models.CopyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.CopyPair, 0, len(m.pairs))
	for _, pair := range m.pairs {
		if ownerUserID == "" || pair.OwnerUserID == ownerUserID {
			result = append(result, pair)
		}
	}
	return result, nil
}

func (m *MockPairService) RevealCredential(id int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if credential, exists := m.creds[id]; exists {
		return credential, nil
	}
	return "", service.ErrPairNotFound
}

func (m *MockPairService) SetStatus(id int, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.statusErr != nil {
		return m.statusErr
	}
	pair, exists := m.pairs[id]
	if !exists {
		return service.ErrPairNotFound
	}
	pair.Status = status
	return nil
}

func (m *MockPairService) Delete(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.pairs[id]; !exists {
		return service.ErrPairNotFound
	}
	delete(m.pairs, id)
	return nil
}

func (m *MockPairService) AddDestination(pairID int, d *models.Destination) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destErr != nil {
		return m.destErr
	}
	pair, exists := m.pairs[pairID]
	if !exists {
		return service.ErrPairNotFound
	}
	m.nextDestID++
	d.ID = m.nextDestID
	d.PairID = pairID
	pair.Destinations = append(pair.Destinations, *d)
	return nil
}

func (m *MockPairService) UpdateDestination(d *models.Destination) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destErr != nil {
		return m.destErr
	}
	for _, pair := range m.pairs {
		for i := range pair.Destinations {
			if pair.Destinations[i].ID == d.ID {
				pair.Destinations[i] = *d
				return nil
			}
		}
	}
	return service.ErrDestinationNotFound
}

func (m *MockPairService) RemoveDestination(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destErr != nil {
		return m.destErr
	}
	for _, pair := range m.pairs {
		for i := range pair.Destinations {
			if pair.Destinations[i].ID == id {
				pair.Destinations = append(pair.Destinations[:i], pair.Destinations[i+1:]...)
				return nil
			}
		}
	}
	return service.ErrDestinationNotFound
}

// ============ Mock AgentService ============

type MockAgentService struct {
	records      map[string]*models.AgentLivenessRecord
	catalogs     map[string][]translator.Instrument
	heartbeatErr error
	balanceErr   error
	getErr       error
	needed       bool
	mu           sync.Mutex
}

func NewMockAgentService() *MockAgentService {
	return &MockAgentService{
		records:  make(map[string]*models.AgentLivenessRecord),
		catalogs: make(map[string][]translator.Instrument),
	}
}

func (m *MockAgentService) Heartbeat(agentID, ownerUserID string, catalog []translator.Instrument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.heartbeatErr != nil {
		return m.heartbeatErr
	}
	m.records[agentID] = &models.AgentLivenessRecord{
		AgentID:     agentID,
		OwnerUserID: ownerUserID,
		Status:      models.AgentStatusOnline,
	}
	if len(catalog) > 0 {
		m.catalogs[agentID] = catalog
	}
	return nil
}

func (m *MockAgentService) PushBalance(agentID string, balance models.BalanceInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.balanceErr != nil {
		return m.balanceErr
	}
	rec, exists := m.records[agentID]
	if !exists {
		return repository.ErrAgentNotFound
	}
	rec.LastBalance = balance
	return nil
}

func (m *MockAgentService) BalanceUpdateNeeded(agentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[agentID]; !exists {
		return false, repository.ErrAgentNotFound
	}
	return m.needed, nil
}

func (m *MockAgentService) Get(agentID string) (*models.AgentLivenessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	if rec, exists := m.records[agentID]; exists {
		return rec, nil
	}
	return nil, repository.ErrAgentNotFound
}

func (m *MockAgentService) List() ([]*models.AgentLivenessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.AgentLivenessRecord, 0, len(m.records))
	for _, rec := range m.records {
		result = append(result, rec)
	}
	return result, nil
}

// ============ Mock HistoryService ============

type MockHistoryService struct {
	events    []*models.HistoryEvent
	recentErr error
	clearErr  error
	mu        sync.Mutex
}

func NewMockHistoryService() *MockHistoryService {
	return &MockHistoryService{}
}

func (m *MockHistoryService) Record(ev *models.HistoryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *MockHistoryService) Recent(limit int) ([]*models.HistoryEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.recentErr != nil {
		return nil, m.recentErr
	}
	result := make([]*models.HistoryEvent, 0, limit)
	for i := len(m.events) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		result = append(result, m.events[i])
	}
	return result, nil
}

func (m *MockHistoryService) Clear() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clearErr != nil {
		return 0, m.clearErr
	}
	n := len(m.events)
	m.events = nil
	return n, nil
}

// ============ Mock Queue ============

type MockQueue struct {
	commands map[string][]*models.QueuedCommand
	mu       sync.Mutex
}

func NewMockQueue() *MockQueue {
	return &MockQueue{commands: make(map[string][]*models.QueuedCommand)}
}

func (m *MockQueue) Enqueue(cmd *models.QueuedCommand) *models.QueuedCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[cmd.TargetAgentID] = append(m.commands[cmd.TargetAgentID], cmd)
	return nil
}

func (m *MockQueue) Poll(agentID string, limit int) []models.QueuedCommand {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.QueuedCommand
	for _, cmd := range m.commands[agentID] {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, *cmd)
	}
	return result
}

func (m *MockQueue) Ack(agentID, queueID string, success bool) (*models.QueuedCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmds := m.commands[agentID]
	for i, cmd := range cmds {
		if cmd.ID == queueID {
			m.commands[agentID] = append(cmds[:i], cmds[i+1:]...)
			return cmd, nil
		}
	}
	return nil, queue.ErrCommandNotFound
}

func (m *MockQueue) Clear(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.commands[agentID])
	delete(m.commands, agentID)
	return n
}

func (m *MockQueue) ClearPair(pairID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for agentID, cmds := range m.commands {
		kept := cmds[:0]
		for _, cmd := range cmds {
			if cmd.Payload.PairID == pairID {
				removed++
				continue
			}
			kept = append(kept, cmd)
		}
		m.commands[agentID] = kept
	}
	return removed
}

func (m *MockQueue) Status(agentID string) queue.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.commands[agentID])
	return queue.Snapshot{AgentID: agentID, Pending: n, Total: n}
}

func (m *MockQueue) TotalDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, cmds := range m.commands {
		total += len(cmds)
	}
	return total
}
