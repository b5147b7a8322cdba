// Package replies — кастомные автоответы группы (!crp).
package replies

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/dispatcher"
	"github.com/flybasist/gcbot/internal/store"
)

const (
	msgMenu      = "📌 Custom Reply Commands\n!crp set trigger=reply\n!crp del trigger\n!crp list"
	msgSetUsage  = "Usage: !crp set trigger=reply"
	msgDelUsage  = "Usage: !crp del trigger"
	msgSaved     = "✅ Saved custom reply for %s"
	msgDeleted   = "🗑️ Deleted custom reply for %s"
	msgNotFound  = "Not found: %s"
	msgEmpty     = "No custom replies yet. Add with !crp set trigger=reply"
	msgListTitle = "📒 Custom Replies"
)

// Module — модуль автоответов.
type Module struct {
	repo   store.Repository
	logger *zap.Logger
}

// New создаёт модуль автоответов.
func New(repo store.Repository, logger *zap.Logger) *Module {
	return &Module{repo: repo, logger: logger}
}

func (m *Module) Name() string { return "replies" }

func (m *Module) Commands() []core.BotCommand {
	return []core.BotCommand{
		{Command: "crp", Description: "set|del|list – Custom replies", Handler: m.handleCRP},
	}
}

func (m *Module) Shutdown() error { return nil }

// Match ищет автоответ по точному (после trim и lower) совпадению текста с триггером.
// Русский комментарий: Ошибка хранилища не должна ломать обработку — просто нет совпадения.
func (m *Module) Match(ctx context.Context, groupID, text string) (string, bool) {
	trigger := dispatcher.NormalizeTrigger(text)
	if trigger == "" {
		return "", false
	}
	table, err := m.repo.Replies(ctx, groupID)
	if err != nil {
		m.logger.Error("failed to load custom replies", zap.String("chat_id", groupID), zap.Error(err))
		return "", false
	}
	reply, ok := table[trigger]
	return reply, ok
}

// handleCRP разбирает подкоманды !crp.
// Русский комментарий: list доступен всем, set и del только админам,
// поэтому проверка прав здесь, а не в таблице команд.
func (m *Module) handleCRP(mc *core.MessageContext) error {
	sub, rest := splitSub(mc.Args)

	switch sub {
	case "set":
		if !mc.IsSenderAdmin() {
			return mc.Reply(core.AdminOnlyReply)
		}
		return m.set(mc, rest)
	case "del":
		if !mc.IsSenderAdmin() {
			return mc.Reply(core.AdminOnlyReply)
		}
		return m.del(mc, rest)
	case "list":
		return m.list(mc)
	default:
		return mc.Reply(msgMenu)
	}
}

func (m *Module) set(mc *core.MessageContext, raw string) error {
	eq := strings.Index(raw, "=")
	if eq < 0 {
		return mc.Reply(msgSetUsage)
	}
	trigger := dispatcher.NormalizeTrigger(raw[:eq])
	reply := strings.TrimSpace(raw[eq+1:])
	if trigger == "" || reply == "" {
		return mc.Reply(msgSetUsage)
	}

	if err := m.repo.SetReply(mc.Context(), mc.Message.GroupID, trigger, reply); err != nil {
		return fmt.Errorf("save custom reply: %w", err)
	}
	m.logger.Info("custom reply saved",
		zap.String("chat_id", mc.Message.GroupID),
		zap.String("user_id", mc.Message.SenderID),
		zap.String("trigger", trigger))
	return mc.Reply(fmt.Sprintf(msgSaved, trigger))
}

func (m *Module) del(mc *core.MessageContext, raw string) error {
	trigger := dispatcher.NormalizeTrigger(raw)
	if trigger == "" {
		return mc.Reply(msgDelUsage)
	}

	err := m.repo.DeleteReply(mc.Context(), mc.Message.GroupID, trigger)
	if errors.Is(err, store.ErrNotFound) {
		return mc.Reply(fmt.Sprintf(msgNotFound, trigger))
	}
	if err != nil {
		return fmt.Errorf("delete custom reply: %w", err)
	}
	return mc.Reply(fmt.Sprintf(msgDeleted, trigger))
}

func (m *Module) list(mc *core.MessageContext) error {
	table, err := m.repo.Replies(mc.Context(), mc.Message.GroupID)
	if err != nil {
		return fmt.Errorf("load custom replies: %w", err)
	}
	if len(table) == 0 {
		return mc.Reply(msgEmpty)
	}

	triggers := make([]string, 0, len(table))
	for k := range table {
		triggers = append(triggers, k)
	}
	sort.Strings(triggers)

	var b strings.Builder
	b.WriteString(msgListTitle)
	for _, k := range triggers {
		fmt.Fprintf(&b, "\n• %s → %s", k, table[k])
	}
	return mc.Reply(b.String())
}

// splitSub отделяет подкоманду (в нижнем регистре) от остатка строки.
func splitSub(args string) (string, string) {
	args = strings.TrimSpace(args)
	idx := strings.IndexAny(args, " \t\n")
	if idx < 0 {
		return strings.ToLower(args), ""
	}
	return strings.ToLower(args[:idx]), strings.TrimSpace(args[idx+1:])
}
