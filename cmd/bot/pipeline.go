package main

import (
	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/config"
	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/dispatcher"
	"github.com/flybasist/gcbot/internal/metrics"
	"github.com/flybasist/gcbot/internal/modules/price"
)

// buildDispatcher собирает pipeline обработки сообщений.
// Русский комментарий: ВАЖНО: Порядок правил критичен!
// 1. Antilink — модерация ссылок, прерывает обработку
// 2. Projects — наблюдает за ссылками на проекты, ничего не прерывает
// 3. Replies — автоответы по триггеру, прерывают обработку
// 4. $SYMBOL и команды — по таблице команд всех модулей
func buildDispatcher(
	cfg *config.Config,
	session core.Session,
	modules *Modules,
	registry *core.ModuleRegistry,
	m *metrics.Metrics,
	logger *zap.Logger,
) *dispatcher.Dispatcher {
	d := dispatcher.New(dispatcher.Options{
		Parser: dispatcher.Parser{
			Prefixes:    cfg.CommandPrefixes,
			Sigil:       cfg.PriceSigil,
			BotUsername: session.SelfName,
		},
		PriceCommand: price.CommandPrice,
	}, logger, m,
		core.LoggerMiddleware(logger),
		core.ErrorReplyMiddleware(logger),
		core.PanicRecoveryMiddleware(logger),
	)

	d.SetModerator(modules.Antilink)
	if modules.Projects != nil {
		d.AddWatcher(modules.Projects)
	}
	d.SetReplies(modules.Replies)
	d.Register(registry.Commands()...)

	logger.Info("dispatcher ready", zap.Int("commands", len(registry.Commands())))
	return d
}
