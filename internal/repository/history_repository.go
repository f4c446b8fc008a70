package repository

import (
	"database/sql"
	"time"

	"copytrade/internal/models"
)

// HistoryRepository - работа с таблицей copy_history
//
// Журнал ограничен по числу записей (retention): после каждой вставки
// старые записи за пределами окна удаляются. Долгосрочная аналитика
// сознательно не хранится.
type HistoryRepository struct {
	db        *sql.DB
	retention int
}

// NewHistoryRepository создает новый экземпляр репозитория
func NewHistoryRepository(db *sql.DB, retention int) *HistoryRepository {
	return &HistoryRepository{db: db, retention: retention}
}

// Insert добавляет запись и обрезает журнал до retention
func (r *HistoryRepository) Insert(ev *models.HistoryEvent) error {
	query := `
		INSERT INTO copy_history (status, master_agent_id, slave_agent_id, action, symbol, volume, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	err := r.db.QueryRow(
		query,
		ev.Status,
		ev.Master,
		ev.Slave,
		ev.Action,
		ev.Symbol,
		ev.Volume,
		ev.Message,
		ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		return err
	}

	return r.trim()
}

// Recent возвращает последние записи, новые первыми
func (r *HistoryRepository) Recent(limit int) ([]*models.HistoryEvent, error) {
	query := `
		SELECT id, status, master_agent_id, slave_agent_id, action, symbol, volume, message, created_at
		FROM copy_history
		ORDER BY id DESC
		LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.HistoryEvent
	for rows.Next() {
		ev := &models.HistoryEvent{}
		err := rows.Scan(
			&ev.ID,
			&ev.Status,
			&ev.Master,
			&ev.Slave,
			&ev.Action,
			&ev.Symbol,
			&ev.Volume,
			&ev.Message,
			&ev.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// Clear очищает весь журнал. Возвращает число удаленных записей.
func (r *HistoryRepository) Clear() (int, error) {
	result, err := r.db.Exec(`DELETE FROM copy_history`)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(rowsAffected), nil
}

// DeleteByAgent удаляет записи агента (каскад при удалении аккаунта)
func (r *HistoryRepository) DeleteByAgent(agentID string) error {
	_, err := r.db.Exec(
		`DELETE FROM copy_history WHERE master_agent_id = $1 OR slave_agent_id = $1`,
		agentID,
	)
	return err
}

// Count возвращает число записей в журнале
func (r *HistoryRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM copy_history`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// trim удаляет записи за пределами окна retention
func (r *HistoryRepository) trim() error {
	if r.retention <= 0 {
		return nil
	}

	query := `
		DELETE FROM copy_history
		WHERE id NOT IN (SELECT id FROM copy_history ORDER BY id DESC LIMIT $1)`

	_, err := r.db.Exec(query, r.retention)
	return err
}
