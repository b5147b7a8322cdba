package repositories

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/store"
)

// Store собирает все репозитории в store.Repository.
// Русский комментарий: Модули не знают про PostgreSQL — они получают этот Store
// через интерфейс, так же как json- и bolt-хранилища.
type Store struct {
	db       *sql.DB
	settings *SettingsRepository
	replies  *ReplyRepository
	limits   *LimitRepository
	projects *ProjectRepository
	members  *MemberRepository
}

var _ store.Repository = (*Store)(nil)

// NewStore создаёт Store поверх открытого соединения. Close закрывает db.
func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{
		db:       db,
		settings: NewSettingsRepository(db),
		replies:  NewReplyRepository(db),
		limits:   NewLimitRepository(db, logger),
		projects: NewProjectRepository(db, logger),
		members:  NewMemberRepository(db),
	}
}

func (s *Store) AntilinkEnabled(ctx context.Context, groupID string) (bool, error) {
	return s.settings.AntilinkEnabled(ctx, groupID)
}

func (s *Store) SetAntilink(ctx context.Context, groupID string, enabled bool) error {
	return s.settings.SetAntilink(ctx, groupID, enabled)
}

func (s *Store) Replies(ctx context.Context, groupID string) (map[string]string, error) {
	return s.replies.List(ctx, groupID)
}

func (s *Store) SetReply(ctx context.Context, groupID, trigger, reply string) error {
	return s.replies.Set(ctx, groupID, trigger, reply)
}

func (s *Store) DeleteReply(ctx context.Context, groupID, trigger string) error {
	return s.replies.Delete(ctx, groupID, trigger)
}

func (s *Store) HitRateCounter(ctx context.Context, userID string, now time.Time, window time.Duration, limit int) (store.RateCounter, bool, error) {
	return s.limits.CheckAndIncrement(ctx, userID, now, window, limit)
}

func (s *Store) CreateProject(ctx context.Context, p store.Project) error {
	return s.projects.Create(ctx, p)
}

func (s *Store) Project(ctx context.Context, id string) (*store.Project, error) {
	return s.projects.Get(ctx, id)
}

func (s *Store) ProjectByLink(ctx context.Context, groupID, link string) (*store.Project, error) {
	return s.projects.GetByLink(ctx, groupID, link)
}

func (s *Store) Projects(ctx context.Context, groupID string) ([]store.Project, error) {
	return s.projects.List(ctx, groupID)
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.projects.Delete(ctx, id)
}

func (s *Store) AddTopEntry(ctx context.Context, e store.TopEntry, capacity int) error {
	return s.projects.AddTop(ctx, e, capacity)
}

func (s *Store) RemoveTopEntry(ctx context.Context, groupID, projectID string) error {
	return s.projects.RemoveTop(ctx, groupID, projectID)
}

func (s *Store) TopEntries(ctx context.Context, groupID string) ([]store.TopEntry, error) {
	return s.projects.Top(ctx, groupID)
}

func (s *Store) TouchMember(ctx context.Context, m store.Member) error {
	return s.members.Touch(ctx, m)
}

func (s *Store) Members(ctx context.Context, groupID string) ([]store.Member, error) {
	return s.members.List(ctx, groupID)
}

func (s *Store) Close() error {
	return s.db.Close()
}
