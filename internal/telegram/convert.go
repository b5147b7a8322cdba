package telegram

import (
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	tele "gopkg.in/telebot.v3"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/store"
)

func chatKey(id int64) string { return strconv.FormatInt(id, 10) }

func parseChatID(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func displayName(u *tele.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

func isGroupChat(c *tele.Chat) bool {
	return c != nil && (c.Type == tele.ChatGroup || c.Type == tele.ChatSuperGroup)
}

// convertMessage переводит сообщение telebot в core.Message.
// Текст берётся из text или caption, ботов и сервисные сообщения пропускаем.
func convertMessage(m *tele.Message) (*core.Message, bool) {
	if m == nil || m.Sender == nil || m.Chat == nil || m.Sender.IsBot {
		return nil, false
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	return &core.Message{
		ID:         strconv.Itoa(m.ID),
		GroupID:    chatKey(m.Chat.ID),
		SenderID:   chatKey(m.Sender.ID),
		SenderName: displayName(m.Sender),
		Username:   m.Sender.Username,
		Text:       text,
		IsGroup:    isGroupChat(m.Chat),
		Time:       time.Unix(m.Unixtime, 0),
	}, true
}

func roleOf(status tele.MemberStatus) core.Role {
	switch status {
	case tele.Creator:
		return core.RoleCreator
	case tele.Administrator:
		return core.RoleAdmin
	default:
		return core.RoleMember
	}
}

// mergeParticipants объединяет админов (из Telegram) и известных участников (из store).
// Роль админа из Telegram важнее записи в store.
func mergeParticipants(admins []tele.ChatMember, members []store.Member) []core.Participant {
	byID := make(map[string]core.Participant, len(admins)+len(members))
	for _, m := range members {
		byID[m.UserID] = core.Participant{ID: m.UserID, Name: m.Name, Username: m.Username, Role: core.RoleMember}
	}
	for _, a := range admins {
		if a.User == nil {
			continue
		}
		id := chatKey(a.User.ID)
		byID[id] = core.Participant{
			ID:       id,
			Name:     displayName(a.User),
			Username: a.User.Username,
			Role:     roleOf(a.Role),
		}
	}

	out := make([]core.Participant, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// mentionEntities строит text_mention для участников без username.
// Русский комментарий: Смещения в Telegram считаются в UTF-16 code units.
// Участники с username подсвечиваются самим Telegram по @username.
func mentionEntities(text string, mentions []core.Participant) tele.Entities {
	var entities tele.Entities
	cursor := 0
	for _, p := range mentions {
		if p.Username != "" {
			continue
		}
		id, err := strconv.ParseInt(p.ID, 10, 64)
		if err != nil {
			continue
		}
		handle := p.Handle()
		idx := strings.Index(text[cursor:], handle)
		if idx < 0 {
			continue
		}
		start := cursor + idx
		entities = append(entities, tele.MessageEntity{
			Type:   tele.EntityTMention,
			Offset: utf16Len(text[:start]),
			Length: utf16Len(handle),
			User:   &tele.User{ID: id, FirstName: p.Name},
		})
		cursor = start + len(handle)
	}
	return entities
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
