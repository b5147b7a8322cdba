package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flybasist/gcbot/internal/store"
)

// ReplyRepository — кастомные автоответы групп.
type ReplyRepository struct {
	db *sql.DB
}

// NewReplyRepository создаёт репозиторий автоответов.
func NewReplyRepository(db *sql.DB) *ReplyRepository {
	return &ReplyRepository{db: db}
}

// List возвращает таблицу trigger -> reply для группы.
func (r *ReplyRepository) List(ctx context.Context, groupID string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT trigger, reply FROM custom_replies WHERE group_id = $1
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	replies := make(map[string]string)
	for rows.Next() {
		var trigger, reply string
		if err := rows.Scan(&trigger, &reply); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		replies[trigger] = reply
	}
	return replies, rows.Err()
}

// Set создаёт или перезаписывает автоответ.
func (r *ReplyRepository) Set(ctx context.Context, groupID, trigger, reply string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO custom_replies (group_id, trigger, reply)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id, trigger) DO UPDATE
		SET reply = EXCLUDED.reply,
		    updated_at = NOW()
	`, groupID, trigger, reply)
	if err != nil {
		return fmt.Errorf("set reply: %w", err)
	}
	return nil
}

// Delete удаляет автоответ, ErrNotFound если его не было.
func (r *ReplyRepository) Delete(ctx context.Context, groupID, trigger string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM custom_replies WHERE group_id = $1 AND trigger = $2
	`, groupID, trigger)
	if err != nil {
		return fmt.Errorf("delete reply: %w", err)
	}
	return expectAffected(res)
}

// expectAffected превращает «0 строк затронуто» в store.ErrNotFound.
func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
