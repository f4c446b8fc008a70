package service

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"copytrade/internal/models"
	"copytrade/internal/repository"
	"copytrade/pkg/crypto"
)

// Ошибки сервиса пар
var (
	ErrPairNotFound        = errors.New("copy pair not found")
	ErrDestinationNotFound = errors.New("pair destination not found")
	ErrInvalidPair         = errors.New("invalid pair parameters")
)

// PairService - администрирование копи-пар.
//
// При создании пары генерируется её credential: владельцу он
// возвращается один раз в открытом виде, в БД попадает только
// AES-шифртекст и SHA-256 для поиска при приеме сигнала.
type PairService struct {
	pairs         PairRepositoryInterface
	queue         QueueInterface
	encryptionKey []byte
	logger        *zap.Logger
}

// NewPairService создает новый экземпляр PairService
func NewPairService(pairs PairRepositoryInterface, q QueueInterface, encryptionKey []byte, logger *zap.Logger) *PairService {
	return &PairService{
		pairs:         pairs,
		queue:         q,
		encryptionKey: encryptionKey,
		logger:        logger,
	}
}

// Create создает пару и возвращает её вместе с открытым credential.
// Credential больше нигде не показывается - владелец прошивает его
// в master EA сразу.
func (s *PairService) Create(ownerUserID, masterAgentID string) (*models.CopyPair, string, error) {
	ownerUserID = strings.TrimSpace(ownerUserID)
	masterAgentID = strings.TrimSpace(masterAgentID)
	if ownerUserID == "" || masterAgentID == "" {
		return nil, "", ErrInvalidPair
	}

	credential, err := crypto.GenerateCredential()
	if err != nil {
		return nil, "", err
	}

	encrypted, err := crypto.Encrypt(credential, s.encryptionKey)
	if err != nil {
		return nil, "", err
	}

	pair := &models.CopyPair{
		OwnerUserID:   ownerUserID,
		MasterAgentID: masterAgentID,
		Credential:    encrypted,
		Status:        models.PairStatusPaused,
	}

	if err := s.pairs.Create(pair, crypto.HashCredential(credential)); err != nil {
		return nil, "", err
	}

	s.logger.Info("copy pair created",
		zap.Int("pair_id", pair.ID),
		zap.String("owner", ownerUserID),
		zap.String("master", masterAgentID))

	// В ответе наружу шифртекст не нужен
	pair.Credential = ""
	return pair, credential, nil
}

// Get возвращает пару по ID (без credential)
func (s *PairService) Get(id int) (*models.CopyPair, error) {
	pair, err := s.pairs.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrPairNotFound) {
			return nil, ErrPairNotFound
		}
		return nil, err
	}

	pair.Credential = ""
	return pair, nil
}

// List возвращает пары владельца; при пустом owner - все пары
func (s *PairService) List(ownerUserID string) ([]*models.CopyPair, error) {
	var (
		pairs []*models.CopyPair
		err   error
	)
	if ownerUserID == "" {
		pairs, err = s.pairs.GetAll()
	} else {
		pairs, err = s.pairs.GetByOwner(ownerUserID)
	}
	if err != nil {
		return nil, err
	}

	if pairs == nil {
		pairs = []*models.CopyPair{}
	}
	for _, pair := range pairs {
		pair.Credential = ""
	}
	return pairs, nil
}

// RevealCredential расшифровывает и возвращает credential пары.
// Отдельная операция, чтобы показ ключа был явным действием владельца.
func (s *PairService) RevealCredential(id int) (string, error) {
	pair, err := s.pairs.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrPairNotFound) {
			return "", ErrPairNotFound
		}
		return "", err
	}

	return crypto.Decrypt(pair.Credential, s.encryptionKey)
}

// SetStatus переключает статус пары (paused/active)
func (s *PairService) SetStatus(id int, status string) error {
	err := s.pairs.UpdateStatus(id, status)
	if err != nil {
		if errors.Is(err, repository.ErrPairNotFound) {
			return ErrPairNotFound
		}
		return err
	}

	s.logger.Info("pair status changed", zap.Int("pair_id", id), zap.String("status", status))
	return nil
}

// Delete удаляет пару и каскадно чистит её команды в очередях
func (s *PairService) Delete(id int) error {
	if err := s.pairs.Delete(id); err != nil {
		if errors.Is(err, repository.ErrPairNotFound) {
			return ErrPairNotFound
		}
		return err
	}

	removed := s.queue.ClearPair(id)
	s.logger.Info("pair deleted",
		zap.Int("pair_id", id),
		zap.Int("queued_commands_removed", removed))
	return nil
}

// AddDestination добавляет slave-направление к паре
func (s *PairService) AddDestination(pairID int, d *models.Destination) error {
	if d == nil || strings.TrimSpace(d.SlaveAgentID) == "" {
		return ErrInvalidPair
	}
	if d.Settings.VolumeMode != "" && !models.ValidVolumeMode(d.Settings.VolumeMode) {
		return ErrInvalidPair
	}

	// Пара должна существовать
	if _, err := s.pairs.GetByID(pairID); err != nil {
		if errors.Is(err, repository.ErrPairNotFound) {
			return ErrPairNotFound
		}
		return err
	}

	d.PairID = pairID
	return s.pairs.AddDestination(d)
}

// UpdateDestination обновляет настройки направления
func (s *PairService) UpdateDestination(d *models.Destination) error {
	if d == nil || d.ID == 0 {
		return ErrInvalidPair
	}
	if d.Settings.VolumeMode != "" && !models.ValidVolumeMode(d.Settings.VolumeMode) {
		return ErrInvalidPair
	}

	err := s.pairs.UpdateDestination(d)
	if err != nil {
		if errors.Is(err, repository.ErrDestinationNotFound) {
			return ErrDestinationNotFound
		}
		return err
	}
	return nil
}

// RemoveDestination удаляет направление пары
func (s *PairService) RemoveDestination(id int) error {
	err := s.pairs.RemoveDestination(id)
	if err != nil {
		if errors.Is(err, repository.ErrDestinationNotFound) {
			return ErrDestinationNotFound
		}
		return err
	}
	return nil
}
