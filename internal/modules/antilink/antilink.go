// Package antilink удаляет ссылки от не-админов в группах, где включена модерация.
// Русский комментарий: Порядок эскалации фиксированный:
// уведомление -> удаление сообщения -> удаление участника (если бот админ) -> просьба к живому админу.
package antilink

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/events"
	"github.com/flybasist/gcbot/internal/metrics"
	"github.com/flybasist/gcbot/internal/store"
)

// Тексты ответов.
const (
	msgDetected     = "⚠️ Link detected. Removing message from %s."
	msgDeleted      = "✅ Message deleted."
	msgRemoved      = "🚫 %s removed for posting links."
	msgManual       = "⚠️ Could not delete message automatically. Please remove the message/sender manually."
	msgRemoveFailed = "⚠️ Could not delete or remove user; please remove manually."
	msgToggled      = "🛡️ Antilink is now %s"
	msgToggleUsage  = "Usage: !antilink on | !antilink off"

	reactionFlagged = "👀"
)

var (
	// Инвайт-ссылки в чаты (WhatsApp и Telegram)
	invitePattern = regexp.MustCompile(`(?i)(chat\.whatsapp\.com/[A-Za-z0-9_-]+|t\.me/(\+|joinchat/)[A-Za-z0-9_-]+)`)
	// Любой URL со схемой
	genericPattern = regexp.MustCompile(`(?i)https?://[^\s]+`)
)

// DetectLink проверяет, содержит ли текст инвайт-ссылку или URL.
func DetectLink(text string) bool {
	if text == "" {
		return false
	}
	return invitePattern.MatchString(text) || genericPattern.MatchString(text)
}

// Module — модуль модерации ссылок.
type Module struct {
	repo    store.Repository
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New создаёт модуль antilink.
func New(repo store.Repository, bus *events.Bus, m *metrics.Metrics, logger *zap.Logger) *Module {
	return &Module{repo: repo, bus: bus, metrics: m, logger: logger}
}

func (m *Module) Name() string { return "antilink" }

func (m *Module) Commands() []core.BotCommand {
	return []core.BotCommand{
		{Command: "antilink", Description: "on|off – Delete links (admins)", AdminOnly: true, Handler: m.handleToggle},
	}
}

func (m *Module) Shutdown() error { return nil }

// Moderate применяет модерацию к сообщению. true = сообщение обработано, дальше не передаём.
func (m *Module) Moderate(mc *core.MessageContext) bool {
	msg := mc.Message
	if !DetectLink(msg.Text) {
		return false
	}

	enabled, err := m.repo.AntilinkEnabled(mc.Context(), msg.GroupID)
	if err != nil {
		m.logger.Error("failed to read antilink flag", zap.String("chat_id", msg.GroupID), zap.Error(err))
		return false
	}
	if !enabled || mc.IsSenderAdmin() {
		return false
	}

	m.enforce(mc)
	return true
}

// enforce выполняет цепочку эскалации. Ошибки только логируются.
func (m *Module) enforce(mc *core.MessageContext) {
	ctx := mc.Context()
	msg := mc.Message
	sender := msg.Sender()
	log := m.logger.With(
		zap.String("chat_id", msg.GroupID),
		zap.String("user_id", msg.SenderID),
		zap.String("message_id", msg.ID))

	// 1. Уведомление (сбой не мешает удалению)
	if err := mc.ReplyMention(fmt.Sprintf(msgDetected, sender.Handle()), sender); err != nil {
		log.Warn("failed to send link notice", zap.Error(err))
	}

	// 2. Удаление сообщения
	deleteErr := mc.Transport.DeleteMessage(ctx, msg.GroupID, msg.ID)
	if deleteErr == nil {
		m.metrics.ObserveModeration("deleted")
		m.bus.Emit(ctx, events.TypeAntilinkDeleted, msg.GroupID, msg.SenderID, nil)
		if err := mc.Reply(msgDeleted); err != nil {
			log.Warn("failed to confirm deletion", zap.Error(err))
		}
		return
	}
	log.Warn("delete message failed", zap.Error(deleteErr))

	// 3. Удаление участника, если бот админ, иначе просим людей
	if !mc.IsSelfAdmin() {
		m.metrics.ObserveModeration("manual")
		m.bus.Emit(ctx, events.TypeAntilinkManual, msg.GroupID, msg.SenderID, map[string]string{"reason": "bot is not admin"})
		flagForAdmins(mc, msgManual, log)
		return
	}

	if err := mc.Transport.RemoveParticipant(ctx, msg.GroupID, msg.SenderID); err != nil {
		log.Error("remove participant failed", zap.Error(err))
		m.metrics.ObserveModeration("manual")
		m.bus.Emit(ctx, events.TypeAntilinkManual, msg.GroupID, msg.SenderID, map[string]string{"reason": "remove failed"})
		flagForAdmins(mc, msgRemoveFailed, log)
		return
	}

	m.metrics.ObserveModeration("removed")
	m.bus.Emit(ctx, events.TypeAntilinkRemoved, msg.GroupID, msg.SenderID, nil)
	if err := mc.ReplyMention(fmt.Sprintf(msgRemoved, sender.Handle()), sender); err != nil {
		log.Warn("failed to announce removal", zap.Error(err))
	}
}

// flagForAdmins просит админов убрать сообщение вручную: ответ привязан к нарушителю,
// а реакция помечает само сообщение.
func flagForAdmins(mc *core.MessageContext, text string, log *zap.Logger) {
	if err := mc.Quote(text); err != nil {
		log.Error("failed to ask admins for manual removal", zap.Error(err))
	}
	if err := mc.Transport.React(mc.Context(), mc.Message.GroupID, mc.Message.ID, reactionFlagged); err != nil {
		log.Warn("failed to flag message", zap.Error(err))
	}
}

// handleToggle — !antilink on|off (только админы).
func (m *Module) handleToggle(mc *core.MessageContext) error {
	arg := strings.ToLower(strings.TrimSpace(mc.Args))
	if arg != "on" && arg != "off" {
		return mc.Reply(msgToggleUsage)
	}

	enabled := arg == "on"
	if err := m.repo.SetAntilink(mc.Context(), mc.Message.GroupID, enabled); err != nil {
		return fmt.Errorf("save antilink flag: %w", err)
	}

	m.bus.Emit(mc.Context(), events.TypeAntilinkToggled, mc.Message.GroupID, mc.Message.SenderID,
		map[string]string{"enabled": arg})
	return mc.Reply(fmt.Sprintf(msgToggled, strings.ToUpper(arg)))
}
