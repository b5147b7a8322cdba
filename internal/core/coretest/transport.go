// Package coretest содержит фейковый транспорт для тестов модулей.
package coretest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/core"
)

// ErrInjected — ошибка, которую фейк возвращает по запросу теста.
var ErrInjected = errors.New("injected transport failure")

// Sent — одно отправленное сообщение.
type Sent struct {
	GroupID  string
	Text     string
	Mentions []core.Participant
	Image    []byte
	ReplyTo  string
}

// Transport записывает все исходящие вызовы.
type Transport struct {
	mu sync.Mutex

	Groups map[string]*core.GroupInfo

	Sent      []Sent
	Deleted   []string
	Removed   []string
	Reactions []string
	Locked    map[string]bool

	FailDelete    bool
	FailRemove    bool
	FailSendImage bool
	FailGroupInfo bool
}

// New создаёт фейк с одной группой.
func New(groupID string, participants ...core.Participant) *Transport {
	return &Transport{
		Groups: map[string]*core.GroupInfo{
			groupID: {ID: groupID, Title: "test group", Participants: participants},
		},
		Locked: make(map[string]bool),
	}
}

func (t *Transport) SendText(_ context.Context, groupID string, msg core.OutgoingText) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Sent = append(t.Sent, Sent{GroupID: groupID, Text: msg.Text, Mentions: msg.Mentions, ReplyTo: msg.ReplyTo})
	return nil
}

func (t *Transport) SendImage(_ context.Context, groupID string, image []byte, caption string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailSendImage {
		return ErrInjected
	}
	t.Sent = append(t.Sent, Sent{GroupID: groupID, Text: caption, Image: image})
	return nil
}

func (t *Transport) React(_ context.Context, _, messageID, emoji string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Reactions = append(t.Reactions, messageID+":"+emoji)
	return nil
}

func (t *Transport) DeleteMessage(_ context.Context, _, messageID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailDelete {
		return ErrInjected
	}
	t.Deleted = append(t.Deleted, messageID)
	return nil
}

func (t *Transport) SetLocked(_ context.Context, groupID string, locked bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Locked[groupID] = locked
	return nil
}

func (t *Transport) RemoveParticipant(_ context.Context, _, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailRemove {
		return ErrInjected
	}
	t.Removed = append(t.Removed, userID)
	return nil
}

func (t *Transport) GroupInfo(_ context.Context, groupID string) (*core.GroupInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailGroupInfo {
		return nil, ErrInjected
	}
	info, ok := t.Groups[groupID]
	if !ok {
		return nil, errors.New("group not found")
	}
	cp := *info
	cp.Participants = append([]core.Participant(nil), info.Participants...)
	return &cp, nil
}

// Last возвращает последнее отправленное сообщение.
func (t *Transport) Last() (Sent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Sent) == 0 {
		return Sent{}, false
	}
	return t.Sent[len(t.Sent)-1], true
}

// Texts возвращает тексты всех отправленных сообщений.
func (t *Transport) Texts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.Sent))
	for _, s := range t.Sent {
		out = append(out, s.Text)
	}
	return out
}

// LastText возвращает текст последнего сообщения или пустую строку.
func (t *Transport) LastText() string {
	texts := t.Texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// Contains проверяет, что хотя бы одно сообщение содержит подстроку.
func (t *Transport) Contains(substr string) bool {
	for _, text := range t.Texts() {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

// Reset очищает записанные вызовы.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Sent = nil
	t.Deleted = nil
	t.Removed = nil
	t.Reactions = nil
}

// Context собирает MessageContext для сообщения text от пользователя sender.
func (t *Transport) Context(groupID string, sender core.Participant, text string) *core.MessageContext {
	return &core.MessageContext{
		Ctx: context.Background(),
		Message: &core.Message{
			ID:         "m-" + sender.ID,
			GroupID:    groupID,
			SenderID:   sender.ID,
			SenderName: sender.Name,
			Username:   sender.Username,
			Text:       text,
			IsGroup:    true,
		},
		Transport: t,
		Session:   core.Session{SelfID: "bot", SelfName: "gcbot"},
		Logger:    zap.NewNop(),
	}
}
