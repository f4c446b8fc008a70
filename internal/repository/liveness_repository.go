package repository

import (
	"database/sql"
	"errors"
	"time"

	"copytrade/internal/models"
)

// Ошибки репозитория живости
var (
	ErrAgentNotFound = errors.New("agent liveness record not found")
)

// LivenessRepository - работа с таблицей agent_liveness
//
// Запись мутируется только отчетами агентов (heartbeat, balance push)
// и фоновой проверкой протухших heartbeat. Percent-режим транслятора
// читает отсюда последние балансы master и slave.
type LivenessRepository struct {
	db *sql.DB
}

// NewLivenessRepository создает новый экземпляр репозитория
func NewLivenessRepository(db *sql.DB) *LivenessRepository {
	return &LivenessRepository{db: db}
}

// UpsertHeartbeat фиксирует heartbeat агента и переводит его в online.
// Первая запись для агента создается здесь же.
func (r *LivenessRepository) UpsertHeartbeat(agentID, ownerUserID string, at time.Time) error {
	query := `
		INSERT INTO agent_liveness (agent_id, owner_user_id, last_heartbeat_at, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (agent_id)
		DO UPDATE SET last_heartbeat_at = $3, status = $4, owner_user_id = $2`

	_, err := r.db.Exec(query, agentID, ownerUserID, at, models.AgentStatusOnline)
	return err
}

// UpdateBalance сохраняет снимок баланса агента
func (r *LivenessRepository) UpdateBalance(agentID string, balance models.BalanceInfo) error {
	query := `
		UPDATE agent_liveness
		SET balance = $1, equity = $2, margin = $3, free_margin = $4, balance_as_of = $5
		WHERE agent_id = $6`

	result, err := r.db.Exec(
		query,
		balance.Balance,
		balance.Equity,
		balance.Margin,
		balance.FreeMargin,
		balance.AsOf,
		agentID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAgentNotFound
	}

	return nil
}

// GetByID возвращает запись живости агента
func (r *LivenessRepository) GetByID(agentID string) (*models.AgentLivenessRecord, error) {
	query := `
		SELECT agent_id, owner_user_id, last_heartbeat_at, status,
		       COALESCE(balance, 0), COALESCE(equity, 0), COALESCE(margin, 0), COALESCE(free_margin, 0),
		       balance_as_of
		FROM agent_liveness
		WHERE agent_id = $1`

	rec := &models.AgentLivenessRecord{}
	var balanceAsOf sql.NullTime
	err := r.db.QueryRow(query, agentID).Scan(
		&rec.AgentID,
		&rec.OwnerUserID,
		&rec.LastHeartbeatAt,
		&rec.Status,
		&rec.LastBalance.Balance,
		&rec.LastBalance.Equity,
		&rec.LastBalance.Margin,
		&rec.LastBalance.FreeMargin,
		&balanceAsOf,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}

	if balanceAsOf.Valid {
		rec.LastBalance.AsOf = balanceAsOf.Time
	}

	return rec, nil
}

// GetAll возвращает записи всех агентов
func (r *LivenessRepository) GetAll() ([]*models.AgentLivenessRecord, error) {
	query := `
		SELECT agent_id, owner_user_id, last_heartbeat_at, status,
		       COALESCE(balance, 0), COALESCE(equity, 0), COALESCE(margin, 0), COALESCE(free_margin, 0),
		       balance_as_of
		FROM agent_liveness
		ORDER BY agent_id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.AgentLivenessRecord
	for rows.Next() {
		rec := &models.AgentLivenessRecord{}
		var balanceAsOf sql.NullTime
		err := rows.Scan(
			&rec.AgentID,
			&rec.OwnerUserID,
			&rec.LastHeartbeatAt,
			&rec.Status,
			&rec.LastBalance.Balance,
			&rec.LastBalance.Equity,
			&rec.LastBalance.Margin,
			&rec.LastBalance.FreeMargin,
			&balanceAsOf,
		)
		if err != nil {
			return nil, err
		}
		if balanceAsOf.Valid {
			rec.LastBalance.AsOf = balanceAsOf.Time
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// MarkStale переводит в offline агентов без heartbeat дольше grace-окна.
// Возвращает идентификаторы переключенных агентов.
func (r *LivenessRepository) MarkStale(deadline time.Time) ([]string, error) {
	query := `
		UPDATE agent_liveness
		SET status = $1
		WHERE status = $2 AND last_heartbeat_at < $3
		RETURNING agent_id`

	rows, err := r.db.Query(query, models.AgentStatusOffline, models.AgentStatusOnline, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agentIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		agentIDs = append(agentIDs, id)
	}

	return agentIDs, rows.Err()
}

// CountOnline возвращает количество агентов в статусе online
func (r *LivenessRepository) CountOnline() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM agent_liveness WHERE status = $1`, models.AgentStatusOnline).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Delete удаляет запись агента (каскад при удалении аккаунта)
func (r *LivenessRepository) Delete(agentID string) error {
	result, err := r.db.Exec(`DELETE FROM agent_liveness WHERE agent_id = $1`, agentID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAgentNotFound
	}

	return nil
}
