// Package store описывает постоянное хранилище бота.
// Русский комментарий: Модули работают только с интерфейсом Repository.
// Реализации: jsonstore (один JSON-документ на диске), boltstore (bbolt)
// и postgresql/repositories (PostgreSQL через lib/pq).
package store

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Сентинел-ошибки хранилища. Реализации обязаны возвращать именно их (или обёртку через %w).
var (
	ErrNotFound      = errors.New("store: not found")
	ErrExists        = errors.New("store: already exists")
	ErrDuplicateLink = errors.New("store: link already tracked")
	ErrTopListFull   = errors.New("store: top list is full")
)

// TopListCapacity — максимальный размер топ-листа группы.
const TopListCapacity = 10

// Project — отслеживаемый проект (ссылка, отправленная в группу).
type Project struct {
	ID            string    `json:"id"`
	GroupID       string    `json:"group_id"`
	Link          string    `json:"link"`
	Name          string    `json:"name"`
	SubmitterID   string    `json:"submitter_id"`
	SubmitterName string    `json:"submitter_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// TopEntry — запись топ-листа, ссылается на проект.
type TopEntry struct {
	ProjectID    string    `json:"project_id"`
	GroupID      string    `json:"group_id"`
	AddedBy      string    `json:"added_by"`
	AddedAt      time.Time `json:"added_at"`
	AddedViaLink bool      `json:"added_via_link"`
}

// RateCounter — счётчик использования для пользователя.
type RateCounter struct {
	UserID    string    `json:"user_id"`
	Count     int       `json:"count"`
	LastReset time.Time `json:"last_reset"`
}

// Member — участник, которого бот видел в группе.
// Русский комментарий: Telegram не отдаёт список участников, поэтому для !tagall
// бот запоминает всех, кто писал в группу или вступил в неё.
type Member struct {
	GroupID  string    `json:"group_id"`
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Username string    `json:"username"`
	SeenAt   time.Time `json:"seen_at"`
}

// MemberTouchInterval — как часто переписывать seen_at участника, у которого ничего не поменялось.
const MemberTouchInterval = 10 * time.Minute

// MemberChanged сообщает, нужно ли записывать m поверх prev.
// Русский комментарий: TouchMember вызывается на каждое сообщение, поэтому без изменений
// имени или username запись обновляется не чаще MemberTouchInterval.
func MemberChanged(prev *Member, m Member) bool {
	if prev == nil {
		return true
	}
	if prev.Name != m.Name || prev.Username != m.Username {
		return true
	}
	return m.SeenAt.Sub(prev.SeenAt) >= MemberTouchInterval
}

// Repository — доменный интерфейс хранилища.
// Русский комментарий: Все мутации атомарны на уровне реализации.
// Модули не делают check-then-act: вставка проекта и добавление в топ — атомарные примитивы.
type Repository interface {
	// AntilinkEnabled возвращает флаг модерации ссылок (отсутствие записи = выключено)
	AntilinkEnabled(ctx context.Context, groupID string) (bool, error)
	SetAntilink(ctx context.Context, groupID string, enabled bool) error

	// Replies возвращает таблицу trigger -> reply (триггеры в нижнем регистре)
	Replies(ctx context.Context, groupID string) (map[string]string, error)
	SetReply(ctx context.Context, groupID, trigger, reply string) error
	// DeleteReply возвращает ErrNotFound, если триггера нет
	DeleteReply(ctx context.Context, groupID, trigger string) error

	// HitRateCounter атомарно проверяет и увеличивает счётчик.
	// Если now - LastReset > window, счётчик сбрасывается. Если Count >= limit,
	// запрос отклоняется (allowed=false) и счётчик не меняется. limit <= 0 = без лимита.
	HitRateCounter(ctx context.Context, userID string, now time.Time, window time.Duration, limit int) (RateCounter, bool, error)

	// CreateProject вставляет проект, если id свободен (ErrExists) и ссылка в группе новая (ErrDuplicateLink)
	CreateProject(ctx context.Context, p Project) error
	Project(ctx context.Context, id string) (*Project, error)
	ProjectByLink(ctx context.Context, groupID, link string) (*Project, error)
	// Projects возвращает проекты группы в порядке создания
	Projects(ctx context.Context, groupID string) ([]Project, error)
	// DeleteProject удаляет проект и каскадно все его записи в топе
	DeleteProject(ctx context.Context, id string) error

	// AddTopEntry добавляет проект в топ группы. ErrTopListFull при capacity записях,
	// ErrExists если проект уже в топе, ErrNotFound если проекта нет.
	AddTopEntry(ctx context.Context, e TopEntry, capacity int) error
	RemoveTopEntry(ctx context.Context, groupID, projectID string) error
	// TopEntries возвращает топ группы в порядке добавления
	TopEntries(ctx context.Context, groupID string) ([]TopEntry, error)

	// TouchMember записывает участника. Если запись не изменилась (MemberChanged = false),
	// хранилище не трогается.
	TouchMember(ctx context.Context, m Member) error
	Members(ctx context.Context, groupID string) ([]Member, error)

	Close() error
}

// Backuper реализуют хранилища, которые умеют снимать копию себя на диск.
type Backuper interface {
	// Backup пишет копию в dir и возвращает путь к файлу
	Backup(ctx context.Context, dir string) (string, error)
}

// ApplyRateHit — общая логика счётчика для файловых реализаций.
func ApplyRateHit(c RateCounter, now time.Time, window time.Duration, limit int) (RateCounter, bool) {
	if c.LastReset.IsZero() || now.Sub(c.LastReset) > window {
		c.Count = 0
		c.LastReset = now
	}
	if limit > 0 && c.Count >= limit {
		return c, false
	}
	c.Count++
	return c, true
}

// SortProjects сортирует проекты по времени создания (стабильно).
func SortProjects(ps []Project) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].CreatedAt.Before(ps[j].CreatedAt) })
}

// SortTopEntries сортирует топ по времени добавления (стабильно).
func SortTopEntries(es []TopEntry) {
	sort.SliceStable(es, func(i, j int) bool { return es[i].AddedAt.Before(es[j].AddedAt) })
}
