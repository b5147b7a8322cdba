package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/store"
)

// ============================================================================
// ProjectRepository - проекты и топ-10
// ============================================================================

// PostgreSQL error codes
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// ProjectRepository управляет таблицами projects и top_entries.
// Русский комментарий: Уникальность id и ссылки в группе держат ограничения таблицы,
// а лимит топа — транзакция с advisory lock на группу.
type ProjectRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProjectRepository создаёт репозиторий проектов.
func NewProjectRepository(db *sql.DB, logger *zap.Logger) *ProjectRepository {
	return &ProjectRepository{db: db, logger: logger}
}

const projectColumns = `id, group_id, link, name, submitter_id, submitter_name, created_at`

func scanProject(row interface{ Scan(...interface{}) error }) (*store.Project, error) {
	var p store.Project
	if err := row.Scan(&p.ID, &p.GroupID, &p.Link, &p.Name, &p.SubmitterID, &p.SubmitterName, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create вставляет проект. Коллизия id -> ErrExists, повтор ссылки -> ErrDuplicateLink.
func (r *ProjectRepository) Create(ctx context.Context, p store.Project) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.GroupID, p.Link, p.Name, p.SubmitterID, p.SubmitterName, p.CreatedAt)
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		if pqErr.Constraint == "projects_pkey" {
			return store.ErrExists
		}
		return store.ErrDuplicateLink
	}
	return fmt.Errorf("create project: %w", err)
}

// Get возвращает проект по id.
func (r *ProjectRepository) Get(ctx context.Context, id string) (*store.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// GetByLink ищет проект группы по ссылке.
func (r *ProjectRepository) GetByLink(ctx context.Context, groupID, link string) (*store.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE group_id = $1 AND link = $2
	`, groupID, link))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project by link: %w", err)
	}
	return p, nil
}

// List возвращает проекты группы в порядке создания.
func (r *ProjectRepository) List(ctx context.Context, groupID string) ([]store.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE group_id = $1 ORDER BY created_at, id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []store.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Delete удаляет проект, записи топа удаляются каскадом (ON DELETE CASCADE).
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return expectAffected(res)
}

// AddTop добавляет проект в топ группы с проверкой вместимости.
// Русский комментарий: pg_advisory_xact_lock сериализует добавления в топ одной группы,
// иначе два параллельных запроса оба увидят 9 записей и вставят 11-ю.
func (r *ProjectRepository) AddTop(ctx context.Context, e store.TopEntry, capacity int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "top:"+e.GroupID); err != nil {
		return fmt.Errorf("lock top list: %w", err)
	}

	var projectGroup string
	err = tx.QueryRowContext(ctx, `SELECT group_id FROM projects WHERE id = $1`, e.ProjectID).Scan(&projectGroup)
	if err == sql.ErrNoRows || (err == nil && projectGroup != e.GroupID) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check project: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM top_entries WHERE group_id = $1`, e.GroupID).Scan(&count); err != nil {
		return fmt.Errorf("count top entries: %w", err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM top_entries WHERE group_id = $1 AND project_id = $2)
	`, e.GroupID, e.ProjectID).Scan(&exists); err != nil {
		return fmt.Errorf("check top entry: %w", err)
	}
	if exists {
		return store.ErrExists
	}
	if count >= capacity {
		return store.ErrTopListFull
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO top_entries (group_id, project_id, added_by, added_at, added_via_link)
		VALUES ($1, $2, $3, $4, $5)
	`, e.GroupID, e.ProjectID, e.AddedBy, e.AddedAt, e.AddedViaLink)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			// Проект удалили между проверкой и вставкой
			return store.ErrNotFound
		}
		return fmt.Errorf("insert top entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit top entry: %w", err)
	}
	r.logger.Debug("top entry added",
		zap.String("chat_id", e.GroupID),
		zap.String("project_id", e.ProjectID),
		zap.Int("size", count+1))
	return nil
}

// RemoveTop убирает проект из топа.
func (r *ProjectRepository) RemoveTop(ctx context.Context, groupID, projectID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM top_entries WHERE group_id = $1 AND project_id = $2
	`, groupID, projectID)
	if err != nil {
		return fmt.Errorf("remove top entry: %w", err)
	}
	return expectAffected(res)
}

// Top возвращает топ группы в порядке добавления.
func (r *ProjectRepository) Top(ctx context.Context, groupID string) ([]store.TopEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT project_id, group_id, added_by, added_at, added_via_link
		FROM top_entries WHERE group_id = $1 ORDER BY added_at, project_id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list top entries: %w", err)
	}
	defer rows.Close()

	var out []store.TopEntry
	for rows.Next() {
		var e store.TopEntry
		if err := rows.Scan(&e.ProjectID, &e.GroupID, &e.AddedBy, &e.AddedAt, &e.AddedViaLink); err != nil {
			return nil, fmt.Errorf("scan top entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
