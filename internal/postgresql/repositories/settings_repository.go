package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// ============================================================================
// SettingsRepository - настройки групп
// ============================================================================

// SettingsRepository управляет флагами модерации групп (таблица group_settings).
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository создаёт новый репозиторий настроек
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// AntilinkEnabled возвращает флаг antilink. Нет записи = выключено.
func (r *SettingsRepository) AntilinkEnabled(ctx context.Context, groupID string) (bool, error) {
	var enabled bool
	err := r.db.QueryRowContext(ctx, `
		SELECT antilink FROM group_settings WHERE group_id = $1
	`, groupID).Scan(&enabled)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get antilink flag: %w", err)
	}
	return enabled, nil
}

// SetAntilink сохраняет флаг antilink (upsert).
func (r *SettingsRepository) SetAntilink(ctx context.Context, groupID string, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO group_settings (group_id, antilink)
		VALUES ($1, $2)
		ON CONFLICT (group_id) DO UPDATE
		SET antilink = EXCLUDED.antilink,
		    updated_at = NOW()
	`, groupID, enabled)
	if err != nil {
		return fmt.Errorf("set antilink flag: %w", err)
	}
	return nil
}
