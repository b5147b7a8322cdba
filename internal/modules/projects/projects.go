// Package projects — трекинг проектов и таблица очков группы.
// Русский комментарий: Очки не хранятся, а пересчитываются на каждый !rank:
// +100 автору за каждый проект, +500 автору проекта за попадание в топ-10.
package projects

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/events"
	"github.com/flybasist/gcbot/internal/store"
)

// Очки за действия.
const (
	PointsSubmission = 100
	PointsTopAdmit   = 500
)

// maxIDDraws — сколько раз пробуем новый случайный id при коллизии.
const maxIDDraws = 20

// ErrIDSpaceExhausted — не удалось подобрать свободный id.
var ErrIDSpaceExhausted = errors.New("could not allocate project id")

// Module — трекинг проектов.
type Module struct {
	repo      store.Repository
	bus       *events.Bus
	logger    *zap.Logger
	linkHosts []string

	draw func() int
	now  func() time.Time
}

// New создаёт модуль. linkHosts — хосты, ссылки на которые считаются проектами.
func New(repo store.Repository, linkHosts []string, bus *events.Bus, logger *zap.Logger) *Module {
	return &Module{
		repo:      repo,
		bus:       bus,
		logger:    logger,
		linkHosts: linkHosts,
		draw:      func() int { return 10000 + rand.IntN(90000) },
		now:       time.Now,
	}
}

func (m *Module) Name() string { return "projects" }

func (m *Module) Commands() []core.BotCommand {
	return []core.BotCommand{
		{Command: "projects", Description: "Tracked projects", Handler: m.handleList},
		{Command: "addproject", Description: "<link> [name] – Track a project (admins)", AdminOnly: true, Handler: m.handleAdd},
		{Command: "delproject", Description: "<id> – Stop tracking (admins)", AdminOnly: true, Handler: m.handleDelete},
		{Command: "top", Description: "Top 10 projects", Handler: m.handleTop},
		{Command: "topadd", Description: "<id|link> – Add to top 10 (admins)", AdminOnly: true, Handler: m.handleTopAdd},
		{Command: "topdel", Description: "<id> – Remove from top 10 (admins)", AdminOnly: true, Handler: m.handleTopDel},
		{Command: "rank", Description: "Points ranking", Handler: m.handleRank},
	}
}

func (m *Module) Shutdown() error { return nil }

// Watch отслеживает ссылки на проекты в обычных сообщениях.
func (m *Module) Watch(mc *core.MessageContext) {
	links := qualifyingLinks(mc.Message.Text, m.linkHosts)
	for _, link := range links {
		p, err := m.create(mc, link, "")
		if errors.Is(err, store.ErrDuplicateLink) {
			continue
		}
		if err != nil {
			m.logger.Error("failed to track project",
				zap.String("chat_id", mc.Message.GroupID),
				zap.String("link", link),
				zap.Error(err))
			continue
		}
		sender := mc.Message.Sender()
		text := fmt.Sprintf("🆕 Project #%s tracked (+%d to %s)", p.ID, PointsSubmission, sender.Handle())
		if err := mc.ReplyMention(text, sender); err != nil {
			m.logger.Warn("failed to announce project", zap.String("chat_id", mc.Message.GroupID), zap.Error(err))
		}
	}
}

// create вставляет проект со случайным id.
// Русский комментарий: Уникальность id гарантирует хранилище (insert-if-absent),
// модуль только перевыбирает id при ErrExists.
func (m *Module) create(mc *core.MessageContext, link, name string) (*store.Project, error) {
	_, u, ok := parseLink(link)
	if !ok {
		return nil, fmt.Errorf("invalid link %q", link)
	}
	if name == "" {
		name = displayName(u)
	}

	p := store.Project{
		GroupID:       mc.Message.GroupID,
		Link:          link,
		Name:          name,
		SubmitterID:   mc.Message.SenderID,
		SubmitterName: mc.Message.Sender().Handle(),
		CreatedAt:     m.now().UTC(),
	}

	for i := 0; i < maxIDDraws; i++ {
		p.ID = fmt.Sprintf("%05d", m.draw())
		err := m.repo.CreateProject(mc.Context(), p)
		if errors.Is(err, store.ErrExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		m.logger.Info("project tracked",
			zap.String("chat_id", p.GroupID),
			zap.String("user_id", p.SubmitterID),
			zap.String("project_id", p.ID))
		m.bus.Emit(mc.Context(), events.TypeProjectCreated, p.GroupID, p.SubmitterID,
			map[string]string{"project_id": p.ID, "link": p.Link})
		return &p, nil
	}
	return nil, ErrIDSpaceExhausted
}

func (m *Module) handleList(mc *core.MessageContext) error {
	ps, err := m.repo.Projects(mc.Context(), mc.Message.GroupID)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	if len(ps) == 0 {
		return mc.Reply("No projects tracked yet.")
	}

	var b strings.Builder
	b.WriteString("📁 Tracked Projects")
	for _, p := range ps {
		fmt.Fprintf(&b, "\n#%s %s → %s (by %s)", p.ID, p.Name, p.Link, p.SubmitterName)
	}
	return mc.Reply(b.String())
}

func (m *Module) handleAdd(mc *core.MessageContext) error {
	rawLink, name, _ := strings.Cut(strings.TrimSpace(mc.Args), " ")
	link, _, ok := parseLink(rawLink)
	if !ok {
		return mc.Reply("Usage: !addproject <link> [name]")
	}

	p, err := m.create(mc, link, strings.TrimSpace(name))
	if errors.Is(err, store.ErrDuplicateLink) {
		if existing, lerr := m.repo.ProjectByLink(mc.Context(), mc.Message.GroupID, link); lerr == nil {
			return mc.Reply(fmt.Sprintf("Already tracked: #%s", existing.ID))
		}
		return mc.Reply("Already tracked: " + link)
	}
	if err != nil {
		return fmt.Errorf("add project: %w", err)
	}
	return mc.Reply(fmt.Sprintf("✅ Project #%s added: %s", p.ID, p.Link))
}

func (m *Module) handleDelete(mc *core.MessageContext) error {
	id, ok := parseID(mc.Args)
	if !ok {
		return mc.Reply("Usage: !delproject <id>")
	}
	p, err := m.repo.Project(mc.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && p.GroupID != mc.Message.GroupID) {
		return mc.Reply("Not found: #" + id)
	}
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}

	err = m.repo.DeleteProject(mc.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return mc.Reply("Not found: #" + id)
	}
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	m.bus.Emit(mc.Context(), events.TypeProjectDeleted, mc.Message.GroupID, mc.Message.SenderID,
		map[string]string{"project_id": id})
	return mc.Reply(fmt.Sprintf("🗑️ Project #%s deleted", id))
}

func (m *Module) handleTop(mc *core.MessageContext) error {
	entries, err := m.repo.TopEntries(mc.Context(), mc.Message.GroupID)
	if err != nil {
		return fmt.Errorf("list top: %w", err)
	}
	if len(entries) == 0 {
		return mc.Reply("Top list is empty.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔝 Top %d", store.TopListCapacity)
	for i, e := range entries {
		p, err := m.repo.Project(mc.Context(), e.ProjectID)
		if err != nil {
			m.logger.Warn("top entry without project", zap.String("project_id", e.ProjectID), zap.Error(err))
			fmt.Fprintf(&b, "\n%d. #%s", i+1, e.ProjectID)
			continue
		}
		fmt.Fprintf(&b, "\n%d. #%s %s → %s", i+1, p.ID, p.Name, p.Link)
	}
	return mc.Reply(b.String())
}

func (m *Module) handleTopAdd(mc *core.MessageContext) error {
	arg := strings.TrimSpace(mc.Args)
	var (
		p       *store.Project
		viaLink bool
		err     error
	)

	if id, ok := parseID(arg); ok {
		p, err = m.repo.Project(mc.Context(), id)
		if errors.Is(err, store.ErrNotFound) || (err == nil && p.GroupID != mc.Message.GroupID) {
			return mc.Reply("Not found: #" + id)
		}
	} else if link, _, ok := parseLink(arg); ok {
		// Ссылка: проект создаётся, если его ещё нет, и сразу идёт в топ
		viaLink = true
		p, err = m.repo.ProjectByLink(mc.Context(), mc.Message.GroupID, link)
		if errors.Is(err, store.ErrNotFound) {
			p, err = m.create(mc, link, "")
		}
	} else {
		return mc.Reply("Usage: !topadd <id|link>")
	}
	if err != nil {
		return fmt.Errorf("resolve project: %w", err)
	}

	err = m.repo.AddTopEntry(mc.Context(), store.TopEntry{
		ProjectID:    p.ID,
		GroupID:      mc.Message.GroupID,
		AddedBy:      mc.Message.SenderID,
		AddedAt:      m.now().UTC(),
		AddedViaLink: viaLink,
	}, store.TopListCapacity)
	switch {
	case errors.Is(err, store.ErrTopListFull):
		return mc.Reply(fmt.Sprintf("⛔ Top list is full (%d/%d). Remove one with !topdel <id>.", store.TopListCapacity, store.TopListCapacity))
	case errors.Is(err, store.ErrExists):
		return mc.Reply("Already in top: #" + p.ID)
	case errors.Is(err, store.ErrNotFound):
		return mc.Reply("Not found: #" + p.ID)
	case err != nil:
		return fmt.Errorf("add top entry: %w", err)
	}

	m.bus.Emit(mc.Context(), events.TypeTopAdmitted, mc.Message.GroupID, p.SubmitterID,
		map[string]string{"project_id": p.ID, "added_by": mc.Message.SenderID})
	return mc.Reply(fmt.Sprintf("⭐ #%s added to top %d (+%d to %s)", p.ID, store.TopListCapacity, PointsTopAdmit, p.SubmitterName))
}

func (m *Module) handleTopDel(mc *core.MessageContext) error {
	id, ok := parseID(mc.Args)
	if !ok {
		return mc.Reply("Usage: !topdel <id>")
	}
	err := m.repo.RemoveTopEntry(mc.Context(), mc.Message.GroupID, id)
	if errors.Is(err, store.ErrNotFound) {
		return mc.Reply("Not found: #" + id)
	}
	if err != nil {
		return fmt.Errorf("remove top entry: %w", err)
	}
	m.bus.Emit(mc.Context(), events.TypeTopRemoved, mc.Message.GroupID, mc.Message.SenderID,
		map[string]string{"project_id": id})
	return mc.Reply(fmt.Sprintf("🗑️ #%s removed from top", id))
}

// Score — очки одного пользователя.
type Score struct {
	UserID   string
	Name     string
	Projects int
	TopHits  int
}

// Points — сумма очков.
func (s Score) Points() int {
	return s.Projects*PointsSubmission + s.TopHits*PointsTopAdmit
}

// Ranking пересчитывает таблицу очков группы по проектам и топу.
func Ranking(ctx context.Context, repo store.Repository, groupID string) ([]Score, error) {
	ps, err := repo.Projects(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	entries, err := repo.TopEntries(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list top: %w", err)
	}

	byUser := make(map[string]*Score)
	owner := make(map[string]string, len(ps))
	for _, p := range ps {
		s, ok := byUser[p.SubmitterID]
		if !ok {
			s = &Score{UserID: p.SubmitterID, Name: p.SubmitterName}
			byUser[p.SubmitterID] = s
		}
		s.Projects++
		owner[p.ID] = p.SubmitterID
	}
	for _, e := range entries {
		if uid, ok := owner[e.ProjectID]; ok {
			byUser[uid].TopHits++
		}
	}

	scores := make([]Score, 0, len(byUser))
	for _, s := range byUser {
		scores = append(scores, *s)
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Points() != scores[j].Points() {
			return scores[i].Points() > scores[j].Points()
		}
		if scores[i].Name != scores[j].Name {
			return scores[i].Name < scores[j].Name
		}
		return scores[i].UserID < scores[j].UserID
	})
	return scores, nil
}

func (m *Module) handleRank(mc *core.MessageContext) error {
	scores, err := Ranking(mc.Context(), m.repo, mc.Message.GroupID)
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		return mc.Reply("No points yet.")
	}

	var b strings.Builder
	b.WriteString("🏆 Points Ranking")
	for i, s := range scores {
		fmt.Fprintf(&b, "\n%d. %s: %d pts (%d projects, %d in top)", i+1, s.Name, s.Points(), s.Projects, s.TopHits)
	}
	return mc.Reply(b.String())
}

func parseID(raw string) (string, bool) {
	match := projectIDPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return "", false
	}
	return match[1], true
}
