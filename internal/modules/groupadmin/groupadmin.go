// Package groupadmin — команды управления группой: !tagall, !lock, !unlock и !help.
package groupadmin

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/events"
)

const (
	tagHeader   = "📢 Tagging All Members:\n\n"
	msgLocked   = "🔒 Group locked (admins only can send messages)"
	msgUnlocked = "🔓 Group unlocked (everyone can chat)"
	msgNoOne    = "No members to tag yet."

	// mentionsPerMessage ограничивает число упоминаний в одном сообщении.
	// Русский комментарий: Telegram подсвечивает не больше 50 text_mention в одном сообщении.
	mentionsPerMessage = 50
)

// Options — что показывать в меню помощи.
type Options struct {
	PriceSigil      string
	ProjectTracking bool
}

// Module — команды администрирования группы.
type Module struct {
	opts   Options
	bus    *events.Bus
	logger *zap.Logger
}

// New создаёт модуль.
func New(opts Options, bus *events.Bus, logger *zap.Logger) *Module {
	return &Module{opts: opts, bus: bus, logger: logger}
}

func (m *Module) Name() string { return "groupadmin" }

func (m *Module) Commands() []core.BotCommand {
	return []core.BotCommand{
		{Command: "tagall", Description: "Mention all", Handler: m.handleTagAll},
		{Command: "lock", Description: "Lock group (admins)", AdminOnly: true, Handler: m.handleLock},
		{Command: "unlock", Description: "Unlock group (admins)", AdminOnly: true, Handler: m.handleUnlock},
		{Command: "help", Description: "Show this menu", Handler: m.handleHelp},
	}
}

func (m *Module) Shutdown() error { return nil }

// handleTagAll упоминает всех известных участников группы, кроме самого бота.
func (m *Module) handleTagAll(mc *core.MessageContext) error {
	var targets []core.Participant
	for _, p := range mc.GroupInfo().Participants {
		if p.ID == mc.Session.SelfID {
			continue
		}
		targets = append(targets, p)
	}
	if len(targets) == 0 {
		return mc.Reply(msgNoOne)
	}

	for start := 0; start < len(targets); start += mentionsPerMessage {
		end := start + mentionsPerMessage
		if end > len(targets) {
			end = len(targets)
		}
		chunk := targets[start:end]

		handles := make([]string, 0, len(chunk))
		for _, p := range chunk {
			handles = append(handles, p.Handle())
		}
		if err := mc.ReplyMention(tagHeader+strings.Join(handles, " "), chunk...); err != nil {
			return fmt.Errorf("send tagall chunk: %w", err)
		}
	}

	m.logger.Info("tagged all members",
		zap.String("chat_id", mc.Message.GroupID),
		zap.Int("count", len(targets)))
	return nil
}

func (m *Module) handleLock(mc *core.MessageContext) error {
	return m.setLocked(mc, true, msgLocked)
}

func (m *Module) handleUnlock(mc *core.MessageContext) error {
	return m.setLocked(mc, false, msgUnlocked)
}

func (m *Module) setLocked(mc *core.MessageContext, locked bool, reply string) error {
	if err := mc.Transport.SetLocked(mc.Context(), mc.Message.GroupID, locked); err != nil {
		return fmt.Errorf("set group locked=%v: %w", locked, err)
	}
	m.bus.Emit(mc.Context(), events.TypeGroupLocked, mc.Message.GroupID, mc.Message.SenderID,
		map[string]string{"locked": fmt.Sprint(locked)})
	return mc.Reply(reply)
}

func (m *Module) handleHelp(mc *core.MessageContext) error {
	return mc.Reply(m.helpText())
}

func (m *Module) helpText() string {
	lines := []string{
		"🤖 Bot Menu",
		"!tagall – Mention all",
		"!lock – Lock group (admins)",
		"!unlock – Unlock group (admins)",
		"!antilink on|off – Delete links (admins)",
		"!crp set a=b – Save custom reply",
		"!crp del a – Remove custom reply",
		"!crp list – View replies",
		"!T <contract> – Token info (name, symbol, price, native price, market cap)",
	}
	if m.opts.PriceSigil != "" {
		lines = append(lines, m.opts.PriceSigil+"SYMBOL – Token info by ticker")
	}
	if m.opts.ProjectTracking {
		lines = append(lines,
			"!projects – Tracked projects",
			"!addproject <link> [name] – Track a project (admins)",
			"!delproject <id> – Stop tracking (admins)",
			"!top – Top 10 projects",
			"!topadd <id|link> – Add to top 10 (admins)",
			"!topdel <id> – Remove from top 10 (admins)",
			"!rank – Points ranking",
		)
	}
	return strings.Join(lines, "\n")
}
