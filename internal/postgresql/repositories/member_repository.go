package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flybasist/gcbot/internal/store"
)

// MemberRepository — участники, которых бот видел в группах.
type MemberRepository struct {
	db *sql.DB
}

// NewMemberRepository создаёт репозиторий участников.
func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Touch создаёт или обновляет запись участника.
// Русский комментарий: Неизменившаяся запись обновляется не чаще store.MemberTouchInterval,
// условие в DO UPDATE ... WHERE не даёт писать строку на каждое сообщение.
func (r *MemberRepository) Touch(ctx context.Context, m store.Member) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO members (group_id, user_id, name, username, seen_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_id, user_id) DO UPDATE
		SET name = EXCLUDED.name,
		    username = EXCLUDED.username,
		    seen_at = EXCLUDED.seen_at
		WHERE members.name <> EXCLUDED.name
		   OR members.username <> EXCLUDED.username
		   OR EXCLUDED.seen_at - members.seen_at >= $6::bigint * INTERVAL '1 second'
	`, m.GroupID, m.UserID, m.Name, m.Username, m.SeenAt, int64(store.MemberTouchInterval/time.Second))
	if err != nil {
		return fmt.Errorf("touch member: %w", err)
	}
	return nil
}

// List возвращает участников группы, отсортированных по user_id.
func (r *MemberRepository) List(ctx context.Context, groupID string) ([]store.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT group_id, user_id, name, username, seen_at
		FROM members WHERE group_id = $1 ORDER BY user_id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []store.Member
	for rows.Next() {
		var m store.Member
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Name, &m.Username, &m.SeenAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
