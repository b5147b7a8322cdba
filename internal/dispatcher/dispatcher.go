// Package dispatcher — классификатор входящих сообщений и таблица команд.
// Русский комментарий: Явный порядок правил, первое сработавшее правило побеждает:
//  1. Модерация ссылок (antilink) — прерывает обработку
//  2. Кастомный автоответ по точному триггеру — прерывает обработку
//  3. Ценовой запрос через сигил ($SYM)
//  4. Команда с префиксом (! или /)
//  5. Всё остальное игнорируется
//
// Наблюдатели (трекинг проектов) видят все некомандные сообщения после модерации
// и ничего не прерывают.
package dispatcher

import (
	"context"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/metrics"
)

// Moderator решает, нужно ли модерировать сообщение. true = сообщение обработано.
type Moderator interface {
	Moderate(mc *core.MessageContext) bool
}

// ReplyMatcher ищет автоответ для текста.
type ReplyMatcher interface {
	Match(ctx context.Context, groupID, text string) (string, bool)
}

// Watcher наблюдает за некомандными сообщениями.
type Watcher interface {
	Watch(mc *core.MessageContext)
}

// Options — настройки диспетчера.
type Options struct {
	Parser Parser
	// PriceCommand — ключ команды, которой передаётся ценовой запрос через сигил
	PriceCommand string
}

// Dispatcher маршрутизирует сообщения.
type Dispatcher struct {
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics

	moderator  Moderator
	replies    ReplyMatcher
	watchers   []Watcher
	middleware []core.Middleware

	mu       sync.RWMutex
	commands map[string]core.HandlerFunc
}

// New создаёт диспетчер. Middleware применяются к каждой команде (первый — внешний).
func New(opts Options, logger *zap.Logger, m *metrics.Metrics, mws ...core.Middleware) *Dispatcher {
	return &Dispatcher{
		opts:       opts,
		logger:     logger,
		metrics:    m,
		middleware: mws,
		commands:   make(map[string]core.HandlerFunc),
	}
}

// SetModerator подключает модерацию (правило 1).
func (d *Dispatcher) SetModerator(m Moderator) { d.moderator = m }

// SetReplies подключает автоответы (правило 2).
func (d *Dispatcher) SetReplies(r ReplyMatcher) { d.replies = r }

// AddWatcher добавляет наблюдателя некомандных сообщений.
func (d *Dispatcher) AddWatcher(w Watcher) { d.watchers = append(d.watchers, w) }

// Register добавляет команды в таблицу.
// Русский комментарий: Админские команды оборачиваются проверкой прав здесь,
// поэтому отказ одинаковый для всех модулей и ничего не мутирует.
func (d *Dispatcher) Register(cmds ...core.BotCommand) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, cmd := range cmds {
		h := cmd.Handler
		if cmd.AdminOnly {
			h = requireAdmin(h)
		}
		if _, exists := d.commands[cmd.Command]; exists {
			d.logger.Warn("command already registered, overwriting", zap.String("command", cmd.Command))
		}
		d.commands[cmd.Command] = core.Chain(h, d.middleware...)
		d.logger.Debug("command registered", zap.String("command", cmd.Command), zap.Bool("admin_only", cmd.AdminOnly))
	}
}

func requireAdmin(next core.HandlerFunc) core.HandlerFunc {
	return func(mc *core.MessageContext) error {
		if !mc.IsSenderAdmin() {
			return mc.Reply(core.AdminOnlyReply)
		}
		return next(mc)
	}
}

// Handle обрабатывает одно входящее сообщение.
// Русский комментарий: Никогда не паникует и не возвращает ошибку — сбой одного
// сообщения не должен останавливать подписку на обновления.
func (d *Dispatcher) Handle(mc *core.MessageContext) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic recovered in dispatcher",
				zap.Any("panic", r),
				zap.String("chat_id", mc.Message.GroupID),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	msg := mc.Message
	if !msg.IsGroup || msg.Text == "" {
		return
	}

	// 1. Модерация ссылок
	if d.moderator != nil && d.moderator.Moderate(mc) {
		d.metrics.ObserveMessage(string(CategoryLink))
		return
	}

	category, cmd := d.opts.Parser.Parse(msg.Text)

	if category != CategoryCommand {
		for _, w := range d.watchers {
			w.Watch(mc)
		}
	}

	// 2. Кастомные автоответы
	if d.replies != nil {
		if reply, ok := d.replies.Match(mc.Context(), msg.GroupID, msg.Text); ok {
			d.metrics.ObserveMessage(string(CategoryReply))
			if err := mc.Quote(reply); err != nil {
				d.logger.Error("failed to send custom reply", zap.String("chat_id", msg.GroupID), zap.Error(err))
			}
			return
		}
	}

	d.metrics.ObserveMessage(string(category))

	switch category {
	case CategoryPrice:
		// 3. $SYM — тот же обработчик, что и у команды цены
		d.run(mc, Command{Keyword: d.opts.PriceCommand, Args: cmd.Args})
	case CategoryCommand:
		// 4. Команда
		d.run(mc, cmd)
	}
}

func (d *Dispatcher) run(mc *core.MessageContext, cmd Command) {
	d.mu.RLock()
	h, ok := d.commands[cmd.Keyword]
	d.mu.RUnlock()
	if !ok {
		// Неизвестные команды молча игнорируются
		return
	}

	mc.Command = cmd.Keyword
	mc.Args = cmd.Args

	result := "ok"
	if err := h(mc); err != nil {
		result = "error"
	}
	d.metrics.ObserveCommand(cmd.Keyword, result)
}
