package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"copytrade/internal/models"
)

// Ошибки репозитория пар
var (
	ErrPairNotFound        = errors.New("copy pair not found")
	ErrPairExists          = errors.New("copy pair already exists")
	ErrDestinationNotFound = errors.New("pair destination not found")
)

// PairRepository - работа с таблицами copy_pairs и pair_destinations
//
// Credential пары хранится зашифрованным (credential_enc), а для поиска
// при приеме сигнала рядом лежит его SHA-256 (credential_hash):
// открытый ключ в БД не появляется никогда.
type PairRepository struct {
	db *sql.DB
}

// NewPairRepository создает новый экземпляр репозитория
func NewPairRepository(db *sql.DB) *PairRepository {
	return &PairRepository{db: db}
}

// Create создает пару. pair.Credential должен содержать уже зашифрованное
// значение; credentialHash - SHA-256 открытого ключа для поиска.
func (r *PairRepository) Create(pair *models.CopyPair, credentialHash string) error {
	query := `
		INSERT INTO copy_pairs (owner_user_id, credential_enc, credential_hash, master_agent_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	now := time.Now()
	pair.CreatedAt = now
	pair.UpdatedAt = now

	if pair.Status == "" {
		pair.Status = models.PairStatusPaused
	}

	err := r.db.QueryRow(
		query,
		pair.OwnerUserID,
		pair.Credential,
		credentialHash,
		pair.MasterAgentID,
		pair.Status,
		pair.CreatedAt,
		pair.UpdatedAt,
	).Scan(&pair.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrPairExists
		}
		return err
	}

	return nil
}

// GetByID возвращает пару по ID вместе с направлениями
func (r *PairRepository) GetByID(id int) (*models.CopyPair, error) {
	query := `
		SELECT id, owner_user_id, credential_enc, master_agent_id, status, created_at, updated_at
		FROM copy_pairs
		WHERE id = $1`

	pair := &models.CopyPair{}
	err := r.db.QueryRow(query, id).Scan(
		&pair.ID,
		&pair.OwnerUserID,
		&pair.Credential,
		&pair.MasterAgentID,
		&pair.Status,
		&pair.CreatedAt,
		&pair.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPairNotFound
		}
		return nil, err
	}

	if err := r.loadDestinations(pair); err != nil {
		return nil, err
	}

	return pair, nil
}

// GetByCredentialHash возвращает все пары, привязанные к ключу.
// Основной путь приема сигнала: один master может вести несколько пар.
func (r *PairRepository) GetByCredentialHash(credentialHash string) ([]*models.CopyPair, error) {
	query := `
		SELECT id, owner_user_id, credential_enc, master_agent_id, status, created_at, updated_at
		FROM copy_pairs
		WHERE credential_hash = $1
		ORDER BY id`

	return r.queryPairs(query, credentialHash)
}

// GetByOwner возвращает пары одного владельца
func (r *PairRepository) GetByOwner(ownerUserID string) ([]*models.CopyPair, error) {
	query := `
		SELECT id, owner_user_id, credential_enc, master_agent_id, status, created_at, updated_at
		FROM copy_pairs
		WHERE owner_user_id = $1
		ORDER BY created_at DESC`

	return r.queryPairs(query, ownerUserID)
}

// GetAll возвращает все пары
func (r *PairRepository) GetAll() ([]*models.CopyPair, error) {
	query := `
		SELECT id, owner_user_id, credential_enc, master_agent_id, status, created_at, updated_at
		FROM copy_pairs
		ORDER BY created_at DESC`

	return r.queryPairs(query)
}

// UpdateStatus переключает статус пары (paused/active)
func (r *PairRepository) UpdateStatus(id int, status string) error {
	if status != models.PairStatusPaused && status != models.PairStatusActive {
		return errors.New("invalid status: must be 'paused' or 'active'")
	}

	query := `
		UPDATE copy_pairs
		SET status = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, status, time.Now(), id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrPairNotFound
	}

	return nil
}

// Delete удаляет пару. Направления удаляются каскадом (FK ON DELETE CASCADE);
// очереди и история чистятся на уровне сервиса.
func (r *PairRepository) Delete(id int) error {
	query := `DELETE FROM copy_pairs WHERE id = $1`

	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrPairNotFound
	}

	return nil
}

// AddDestination добавляет slave-направление к паре
func (r *PairRepository) AddDestination(d *models.Destination) error {
	query := `
		INSERT INTO pair_destinations (pair_id, slave_agent_id, symbol_map_enabled, volume_mode, volume_param, volume_map_enabled, copy_protective, min_volume_policy, symbol_overrides, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	if d.Status == "" {
		d.Status = models.PairStatusActive
	}
	if d.Settings.VolumeMode == "" {
		d.Settings.VolumeMode = models.VolumeModeMultiply
	}
	if d.Settings.MinVolumePolicy == "" {
		d.Settings.MinVolumePolicy = models.MinVolumeWarn
	}

	overrides, err := marshalOverrides(d.Settings.SymbolOverrides)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(
		query,
		d.PairID,
		d.SlaveAgentID,
		d.Settings.SymbolMapEnabled,
		d.Settings.VolumeMode,
		d.Settings.VolumeParam,
		d.Settings.VolumeMapEnabled,
		d.Settings.CopyProtective,
		d.Settings.MinVolumePolicy,
		overrides,
		d.Status,
	).Scan(&d.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrPairExists
		}
		return err
	}

	return nil
}

// UpdateDestination обновляет настройки направления
func (r *PairRepository) UpdateDestination(d *models.Destination) error {
	query := `
		UPDATE pair_destinations
		SET symbol_map_enabled = $1, volume_mode = $2, volume_param = $3, volume_map_enabled = $4, copy_protective = $5, min_volume_policy = $6, symbol_overrides = $7, status = $8
		WHERE id = $9`

	overrides, err := marshalOverrides(d.Settings.SymbolOverrides)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(
		query,
		d.Settings.SymbolMapEnabled,
		d.Settings.VolumeMode,
		d.Settings.VolumeParam,
		d.Settings.VolumeMapEnabled,
		d.Settings.CopyProtective,
		d.Settings.MinVolumePolicy,
		overrides,
		d.Status,
		d.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrDestinationNotFound
	}

	return nil
}

// RemoveDestination удаляет направление пары
func (r *PairRepository) RemoveDestination(id int) error {
	query := `DELETE FROM pair_destinations WHERE id = $1`

	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrDestinationNotFound
	}

	return nil
}

// Count возвращает общее количество пар
func (r *PairRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM copy_pairs`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// queryPairs выполняет запрос списка пар и подгружает направления
func (r *PairRepository) queryPairs(query string, args ...interface{}) ([]*models.CopyPair, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []*models.CopyPair
	for rows.Next() {
		pair := &models.CopyPair{}
		err := rows.Scan(
			&pair.ID,
			&pair.OwnerUserID,
			&pair.Credential,
			&pair.MasterAgentID,
			&pair.Status,
			&pair.CreatedAt,
			&pair.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	for _, pair := range pairs {
		if err := r.loadDestinations(pair); err != nil {
			return nil, err
		}
	}

	return pairs, nil
}

// loadDestinations подгружает направления пары
func (r *PairRepository) loadDestinations(pair *models.CopyPair) error {
	query := `
		SELECT id, pair_id, slave_agent_id, symbol_map_enabled, volume_mode, volume_param, volume_map_enabled, copy_protective, min_volume_policy, symbol_overrides, status
		FROM pair_destinations
		WHERE pair_id = $1
		ORDER BY id`

	rows, err := r.db.Query(query, pair.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	pair.Destinations = nil
	for rows.Next() {
		d := models.Destination{}
		var overrides []byte
		err := rows.Scan(
			&d.ID,
			&d.PairID,
			&d.SlaveAgentID,
			&d.Settings.SymbolMapEnabled,
			&d.Settings.VolumeMode,
			&d.Settings.VolumeParam,
			&d.Settings.VolumeMapEnabled,
			&d.Settings.CopyProtective,
			&d.Settings.MinVolumePolicy,
			&overrides,
			&d.Status,
		)
		if err != nil {
			return err
		}
		if len(overrides) > 0 {
			if err := json.Unmarshal(overrides, &d.Settings.SymbolOverrides); err != nil {
				return err
			}
		}
		pair.Destinations = append(pair.Destinations, d)
	}

	return rows.Err()
}

// marshalOverrides сериализует переопределения символов для JSONB-колонки
func marshalOverrides(overrides map[string]string) ([]byte, error) {
	if len(overrides) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(overrides)
}

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
