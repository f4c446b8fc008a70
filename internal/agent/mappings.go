package agent

import (
	"errors"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	bolt "go.etcd.io/bbolt"

	"copytrade/internal/models"
)

// ErrMappingNotFound - нет живого mapping для orderRef
var ErrMappingNotFound = errors.New("order mapping not found")

var mappingJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// MappingStore хранит соответствия orderRef → тикет slave-позиции.
//
// Инвариант: не более одного живого mapping на ключ (pairID, orderRef).
// Персистентная реализация переживает рестарт агента: без нее
// close/modify команды после рестарта не найдут свои позиции.
type MappingStore interface {
	Put(m *models.OrderMapping) error
	Get(pairID int, orderRef string) (*models.OrderMapping, error)
	Delete(pairID int, orderRef string) error
	All() ([]*models.OrderMapping, error)
	Close() error
}

// ============ In-memory реализация ============

// MemoryMappingStore - хранилище в памяти, для тестов и terminal-only
// запусков без персистентности
type MemoryMappingStore struct {
	mu       sync.RWMutex
	mappings map[string]*models.OrderMapping
}

// NewMemoryMappingStore создает пустое in-memory хранилище
func NewMemoryMappingStore() *MemoryMappingStore {
	return &MemoryMappingStore{mappings: make(map[string]*models.OrderMapping)}
}

func mappingKey(pairID int, orderRef string) string {
	return fmt.Sprintf("%d/%s", pairID, orderRef)
}

func (s *MemoryMappingStore) Put(m *models.OrderMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.UpdatedAt = time.Now()
	copied := *m
	s.mappings[mappingKey(m.PairID, m.OrderRef)] = &copied
	return nil
}

func (s *MemoryMappingStore) Get(pairID int, orderRef string) (*models.OrderMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mappings[mappingKey(pairID, orderRef)]
	if !ok {
		return nil, ErrMappingNotFound
	}
	copied := *m
	return &copied, nil
}

func (s *MemoryMappingStore) Delete(pairID int, orderRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := mappingKey(pairID, orderRef)
	if _, ok := s.mappings[key]; !ok {
		return ErrMappingNotFound
	}
	delete(s.mappings, key)
	return nil
}

func (s *MemoryMappingStore) All() ([]*models.OrderMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.OrderMapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		copied := *m
		result = append(result, &copied)
	}
	return result, nil
}

func (s *MemoryMappingStore) Close() error { return nil }

// ============ Bolt реализация ============

var mappingsBucket = []byte("order_mappings")

// BoltMappingStore - персистентное хранилище mapping на bbolt.
// Один файл на агента; ключ внутри bucket - pairID/orderRef.
type BoltMappingStore struct {
	db *bolt.DB
}

// NewBoltMappingStore открывает (создает) файл хранилища
func NewBoltMappingStore(path string) (*BoltMappingStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open mapping store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(mappingsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init mapping bucket: %w", err)
	}

	return &BoltMappingStore{db: db}, nil
}

func (s *BoltMappingStore) Put(m *models.OrderMapping) error {
	m.UpdatedAt = time.Now()

	data, err := mappingJSON.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(mappingsBucket).Put([]byte(mappingKey(m.PairID, m.OrderRef)), data)
	})
}

func (s *BoltMappingStore) Get(pairID int, orderRef string) (*models.OrderMapping, error) {
	var m models.OrderMapping
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(mappingsBucket).Get([]byte(mappingKey(pairID, orderRef)))
		if data == nil {
			return ErrMappingNotFound
		}
		return mappingJSON.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *BoltMappingStore) Delete(pairID int, orderRef string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(mappingsBucket)
		key := []byte(mappingKey(pairID, orderRef))
		if bucket.Get(key) == nil {
			return ErrMappingNotFound
		}
		return bucket.Delete(key)
	})
}

func (s *BoltMappingStore) All() ([]*models.OrderMapping, error) {
	var result []*models.OrderMapping
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(mappingsBucket).ForEach(func(_, data []byte) error {
			var m models.OrderMapping
			if err := mappingJSON.Unmarshal(data, &m); err != nil {
				return err
			}
			result = append(result, &m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BoltMappingStore) Close() error {
	return s.db.Close()
}
