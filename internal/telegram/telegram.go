// Package telegram — транспорт core.Transport поверх telebot.v3 (Long Polling).
// Русский комментарий: Telegram не отдаёт список участников группы, поэтому
// GroupInfo = администраторы (AdminsOf, кэш go-cache) + участники, которых бот видел (store).
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/store"
)

// MemberStore — то, что адаптеру нужно от хранилища.
type MemberStore interface {
	TouchMember(ctx context.Context, m store.Member) error
	Members(ctx context.Context, groupID string) ([]store.Member, error)
}

// Options — настройки адаптера.
type Options struct {
	Token          string
	PollingTimeout time.Duration
	MetadataTTL    time.Duration // <= 0: AdminsOf на каждый запрос
}

// MessageHandler получает каждое входящее групповое сообщение.
type MessageHandler func(mc *core.MessageContext)

// Adapter — транспорт Telegram.
type Adapter struct {
	bot     *tele.Bot
	members MemberStore
	admins  *adminCache
	logger  *zap.Logger
	session core.Session

	connected atomic.Bool
	stopOnce  sync.Once
	fatalOnce sync.Once
	fatal     chan error
}

// New создаёт бота и проверяет токен (getMe).
func New(opts Options, members MemberStore, logger *zap.Logger) (*Adapter, error) {
	a := &Adapter{
		members: members,
		admins:  newAdminCache(opts.MetadataTTL),
		logger:  logger,
		fatal:   make(chan error, 1),
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:   opts.Token,
		Poller:  &tele.LongPoller{Timeout: opts.PollingTimeout},
		OnError: a.onError,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	a.bot = bot
	a.session = core.Session{SelfID: chatKey(bot.Me.ID), SelfName: bot.Me.Username}

	logger.Info("bot created successfully",
		zap.String("bot_username", bot.Me.Username),
		zap.Int64("bot_id", bot.Me.ID))
	return a, nil
}

// Session — идентичность бота.
func (a *Adapter) Session() core.Session { return a.session }

// Connected сообщает, идёт ли polling.
func (a *Adapter) Connected() bool { return a.connected.Load() }

// Fatal закрывается с ошибкой, после которой работать дальше нельзя (отозванный токен).
func (a *Adapter) Fatal() <-chan error { return a.fatal }

// Start регистрирует обработчики и запускает polling. Останавливается по ctx.
func (a *Adapter) Start(ctx context.Context, handle MessageHandler) {
	onMessage := func(c tele.Context) error {
		msg, ok := convertMessage(c.Message())
		if !ok || !msg.IsGroup {
			return nil
		}
		a.touch(ctx, msg.GroupID, c.Sender())

		handle(&core.MessageContext{
			Ctx:       ctx,
			Message:   msg,
			Transport: a,
			Session:   a.session,
			Logger:    a.logger,
		})
		return nil
	}

	a.bot.Handle(tele.OnText, onMessage)
	a.bot.Handle(tele.OnPhoto, onMessage)
	a.bot.Handle(tele.OnUserJoined, func(c tele.Context) error {
		m := c.Message()
		if m == nil || !isGroupChat(m.Chat) {
			return nil
		}
		groupID := chatKey(m.Chat.ID)
		if m.UserJoined != nil {
			a.touch(ctx, groupID, m.UserJoined)
		}
		for i := range m.UsersJoined {
			a.touch(ctx, groupID, &m.UsersJoined[i])
		}
		return nil
	})

	a.connected.Store(true)
	go func() {
		a.logger.Info("bot started, polling for updates...")
		a.bot.Start()
		a.connected.Store(false)
	}()

	go func() {
		<-ctx.Done()
		a.Stop()
	}()
}

// Stop останавливает polling. Повторные вызовы ничего не делают.
func (a *Adapter) Stop() {
	a.stopOnce.Do(func() {
		if a.connected.Load() {
			a.logger.Info("stopping telegram polling")
			a.bot.Stop()
		}
	})
}

func (a *Adapter) touch(ctx context.Context, groupID string, u *tele.User) {
	if u == nil || u.IsBot {
		return
	}
	err := a.members.TouchMember(ctx, store.Member{
		GroupID:  groupID,
		UserID:   chatKey(u.ID),
		Name:     displayName(u),
		Username: u.Username,
		SeenAt:   time.Now().UTC(),
	})
	if err != nil {
		a.logger.Warn("failed to record member", zap.String("chat_id", groupID), zap.Error(err))
	}
}

// onError — ошибки polling и обработчиков.
// Русский комментарий: 401 означает отозванный токен, переподключаться бессмысленно.
func (a *Adapter) onError(err error, c tele.Context) {
	if errors.Is(err, tele.ErrUnauthorized) || strings.Contains(err.Error(), "Unauthorized") {
		a.logger.Error("telegram rejected bot token, stopping", zap.Error(err))
		a.fatalOnce.Do(func() {
			a.fatal <- err
			close(a.fatal)
		})
		return
	}
	fields := []zap.Field{zap.Error(err)}
	if c != nil && c.Chat() != nil {
		fields = append(fields, zap.Int64("chat_id", c.Chat().ID))
	}
	a.logger.Error("telegram error", fields...)
}

func (a *Adapter) SendText(_ context.Context, groupID string, msg core.OutgoingText) error {
	id, err := parseChatID(groupID)
	if err != nil {
		return err
	}
	opts := &tele.SendOptions{Entities: mentionEntities(msg.Text, msg.Mentions)}
	if msg.ReplyTo != "" {
		if mid, err := strconv.Atoi(msg.ReplyTo); err == nil {
			opts.ReplyTo = &tele.Message{ID: mid}
			opts.AllowWithoutReply = true
		}
	}
	_, err = a.bot.Send(tele.ChatID(id), msg.Text, opts)
	return err
}

func (a *Adapter) SendImage(_ context.Context, groupID string, image []byte, caption string) error {
	id, err := parseChatID(groupID)
	if err != nil {
		return err
	}
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(image)), Caption: caption}
	_, err = a.bot.Send(tele.ChatID(id), photo)
	return err
}

type reactionPayload struct {
	ChatID    string          `json:"chat_id"`
	MessageID string          `json:"message_id"`
	Reaction  []reactionEmoji `json:"reaction"`
}

type reactionEmoji struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

// React ставит реакцию через сырой вызов setMessageReaction (в telebot.v3 нет обёртки).
func (a *Adapter) React(_ context.Context, groupID, messageID, emoji string) error {
	_, err := a.bot.Raw("setMessageReaction", reactionPayload{
		ChatID:    groupID,
		MessageID: messageID,
		Reaction:  []reactionEmoji{{Type: "emoji", Emoji: emoji}},
	})
	return err
}

func (a *Adapter) DeleteMessage(_ context.Context, groupID, messageID string) error {
	id, err := parseChatID(groupID)
	if err != nil {
		return err
	}
	return a.bot.Delete(&tele.StoredMessage{ChatID: id, MessageID: messageID})
}

func (a *Adapter) SetLocked(_ context.Context, groupID string, locked bool) error {
	id, err := parseChatID(groupID)
	if err != nil {
		return err
	}
	rights := tele.Rights{}
	if !locked {
		rights = tele.Rights{
			CanSendMessages: true,
			CanSendMedia:    true,
			CanSendPolls:    true,
			CanSendOther:    true,
			CanAddPreviews:  true,
			CanInviteUsers:  true,
		}
	}
	return a.bot.SetGroupPermissions(&tele.Chat{ID: id}, rights)
}

// RemoveParticipant выгоняет участника: ban + unban, чтобы он мог вернуться по ссылке.
func (a *Adapter) RemoveParticipant(_ context.Context, groupID, userID string) error {
	chatID, err := parseChatID(groupID)
	if err != nil {
		return err
	}
	uid, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return err
	}
	chat := &tele.Chat{ID: chatID}
	user := &tele.User{ID: uid}
	if err := a.bot.Ban(chat, &tele.ChatMember{User: user}); err != nil {
		return err
	}
	if err := a.bot.Unban(chat, user); err != nil {
		a.logger.Warn("failed to unban removed member", zap.String("chat_id", groupID), zap.Error(err))
	}
	return nil
}

func (a *Adapter) GroupInfo(ctx context.Context, groupID string) (*core.GroupInfo, error) {
	chatID, err := parseChatID(groupID)
	if err != nil {
		return nil, err
	}

	admins, ok := a.admins.get(groupID)
	if !ok {
		admins, err = a.bot.AdminsOf(&tele.Chat{ID: chatID})
		if err != nil {
			return nil, fmt.Errorf("get admins: %w", err)
		}
		a.admins.set(groupID, admins)
	}

	members, err := a.members.Members(ctx, groupID)
	if err != nil {
		a.logger.Warn("failed to load known members", zap.String("chat_id", groupID), zap.Error(err))
	}

	return &core.GroupInfo{ID: groupID, Participants: mergeParticipants(admins, members)}, nil
}

var _ core.Transport = (*Adapter)(nil)
