package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Transport — всё, что боту нужно от мессенджера.
// Русский комментарий: Модули не знают про telebot — они работают только через этот интерфейс.
// Реализация для Telegram лежит в internal/telegram, фейк для тестов — в core/coretest.
type Transport interface {
	// SendText отправляет текст в группу (с упоминаниями, если они есть)
	SendText(ctx context.Context, groupID string, msg OutgoingText) error
	// SendImage отправляет картинку с подписью
	SendImage(ctx context.Context, groupID string, image []byte, caption string) error
	// React ставит реакцию-эмодзи на сообщение
	React(ctx context.Context, groupID, messageID, emoji string) error
	// DeleteMessage удаляет сообщение для всех
	DeleteMessage(ctx context.Context, groupID, messageID string) error
	// SetLocked переключает режим «писать могут только админы»
	SetLocked(ctx context.Context, groupID string, locked bool) error
	// RemoveParticipant удаляет участника из группы
	RemoveParticipant(ctx context.Context, groupID, userID string) error
	// GroupInfo возвращает метаданные группы (участники и их роли)
	GroupInfo(ctx context.Context, groupID string) (*GroupInfo, error)
}

// Role — роль участника в группе.
type Role string

const (
	RoleMember  Role = "member"
	RoleAdmin   Role = "admin"
	RoleCreator Role = "creator"
)

// Participant — участник группы.
type Participant struct {
	ID       string
	Name     string // Отображаемое имя (first name)
	Username string // Username без @, может быть пустым
	Role     Role
}

// Handle возвращает строку для упоминания: @username или @Name.
func (p Participant) Handle() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	if p.Name != "" {
		return "@" + p.Name
	}
	return "@" + p.ID
}

// GroupInfo — метаданные группы.
type GroupInfo struct {
	ID           string
	Title        string
	Participants []Participant
}

// Message — входящее сообщение, уже разобранное транспортом.
type Message struct {
	ID         string
	GroupID    string
	SenderID   string
	SenderName string
	Username   string
	Text       string // Текст или подпись к медиа
	IsGroup    bool
	Time       time.Time
}

// Sender возвращает отправителя как Participant (роль неизвестна).
func (m *Message) Sender() Participant {
	return Participant{ID: m.SenderID, Name: m.SenderName, Username: m.Username}
}

// OutgoingText — исходящее текстовое сообщение.
// Русский комментарий: Упоминания передаются отдельно — транспорт сам решает,
// как их отрисовать (в Telegram — text_mention entities для пользователей без username).
type OutgoingText struct {
	Text     string
	Mentions []Participant
	ReplyTo  string // ID сообщения для reply, пусто = без reply
}

// Session — идентичность бота в текущем подключении.
// Русский комментарий: Вместо глобальных переменных с ID/именем бота
// сессия явно передаётся в каждый обработчик через MessageContext.
type Session struct {
	SelfID   string
	SelfName string
}

// Module интерфейс, который должен реализовать каждый модуль бота.
// Русский комментарий: Каждая фича (antilink, replies, price и т.д.) = отдельный модуль.
// Модуль регистрирует свои команды в диспетчере и получает сообщения через OnMessage.
type Module interface {
	// Name возвращает имя модуля для логов и метрик
	Name() string

	// Commands возвращает команды, которые обрабатывает модуль
	Commands() []BotCommand

	// Shutdown вызывается при graceful shutdown для очистки ресурсов
	Shutdown() error
}

// Initializer — опциональный интерфейс для модулей с фоновыми задачами.
type Initializer interface {
	Init(ctx context.Context) error
}

// BotCommand описывает команду бота.
type BotCommand struct {
	Command     string      // Ключевое слово без префикса (например: "tagall")
	Description string      // Описание для !help
	AdminOnly   bool        // Требует прав администратора
	Handler     HandlerFunc // Обработчик
}

// MessageContext — контекст входящего сообщения для модулей.
// Русский комментарий: Обёртка над Message с транспортом, сессией и логгером.
// Метаданные группы подгружаются лениво и кэшируются на время обработки одного сообщения.
type MessageContext struct {
	Ctx       context.Context
	Message   *Message
	Transport Transport
	Session   Session
	Logger    *zap.Logger

	// Command и Args заполняются диспетчером для командных сообщений
	Command string
	Args    string

	// StopPropagation останавливает дальнейшую обработку сообщения
	StopPropagation bool

	groupInfo *GroupInfo
}

// Context возвращает context.Context сообщения (никогда не nil).
func (mc *MessageContext) Context() context.Context {
	if mc.Ctx == nil {
		return context.Background()
	}
	return mc.Ctx
}

// GroupInfo возвращает метаданные группы.
// Русский комментарий: Ошибка получения метаданных не фатальна — как и в исходном боте,
// считаем что участников нет, и проверки прав просто не проходят.
func (mc *MessageContext) GroupInfo() *GroupInfo {
	if mc.groupInfo != nil {
		return mc.groupInfo
	}
	info, err := mc.Transport.GroupInfo(mc.Context(), mc.Message.GroupID)
	if err != nil || info == nil {
		mc.Logger.Warn("failed to fetch group metadata",
			zap.String("chat_id", mc.Message.GroupID),
			zap.Error(err))
		info = &GroupInfo{ID: mc.Message.GroupID}
	}
	mc.groupInfo = info
	return info
}

// IsSenderAdmin проверяет права отправителя.
func (mc *MessageContext) IsSenderAdmin() bool {
	return IsAdmin(mc.GroupInfo(), mc.Message.SenderID)
}

// IsSelfAdmin проверяет, является ли админом сам бот.
func (mc *MessageContext) IsSelfAdmin() bool {
	return IsAdmin(mc.GroupInfo(), mc.Session.SelfID)
}

// Reply отправляет текст в группу без упоминаний.
func (mc *MessageContext) Reply(text string) error {
	return mc.Transport.SendText(mc.Context(), mc.Message.GroupID, OutgoingText{Text: text})
}

// Quote отвечает на входящее сообщение (reply), чтобы ответ был привязан к запросу.
func (mc *MessageContext) Quote(text string) error {
	return mc.Transport.SendText(mc.Context(), mc.Message.GroupID, OutgoingText{Text: text, ReplyTo: mc.Message.ID})
}

// ReplyMention отправляет текст с упоминаниями.
func (mc *MessageContext) ReplyMention(text string, mentions ...Participant) error {
	return mc.Transport.SendText(mc.Context(), mc.Message.GroupID, OutgoingText{Text: text, Mentions: mentions})
}
