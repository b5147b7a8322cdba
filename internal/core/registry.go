package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ModuleRegistry управляет жизненным циклом всех модулей.
// Русский комментарий: Центральный реестр модулей бота.
// Модули регистрируются при старте, инициализируются, graceful shutdown в конце.
type ModuleRegistry struct {
	modules map[string]Module // Имя модуля -> инстанс модуля
	order   []string          // Порядок регистрации (детерминированный shutdown)
	logger  *zap.Logger
	mu      sync.RWMutex
}

// NewRegistry создаёт новый реестр модулей.
func NewRegistry(logger *zap.Logger) *ModuleRegistry {
	return &ModuleRegistry{
		modules: make(map[string]Module),
		logger:  logger,
	}
}

// Register регистрирует модуль в реестре.
func (r *ModuleRegistry) Register(module Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := module.Name()
	if _, exists := r.modules[name]; exists {
		r.logger.Warn("module already registered, overwriting", zap.String("module", name))
	} else {
		r.order = append(r.order, name)
	}

	r.modules[name] = module
	r.logger.Info("module registered", zap.String("module", name))
}

// InitAll инициализирует модули, которым нужен старт (cron и т.п.).
func (r *ModuleRegistry) InitAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	r.logger.Info("initializing modules", zap.Int("count", len(r.modules)))

	for _, name := range r.order {
		initializer, ok := r.modules[name].(Initializer)
		if !ok {
			continue
		}
		r.logger.Info("initializing module", zap.String("module", name))
		if err := initializer.Init(ctx); err != nil {
			return fmt.Errorf("failed to init module %s: %w", name, err)
		}
	}

	r.logger.Info("all modules initialized successfully")
	return nil
}

// Commands возвращает все команды всех модулей, отсортированные по ключевому слову.
// Русский комментарий: Используется диспетчером и для !help.
func (r *ModuleRegistry) Commands() []BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []BotCommand
	for _, name := range r.order {
		result = append(result, r.modules[name].Commands()...)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Command < result[j].Command })
	return result
}

// GetModule возвращает модуль по имени (для тестов и прямого доступа).
func (r *ModuleRegistry) GetModule(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	module, exists := r.modules[name]
	return module, exists
}

// ShutdownAll вызывает Shutdown для всех модулей в обратном порядке регистрации.
// Русский комментарий: Ошибки не прерывают shutdown остальных модулей — собираем все через multierr.
func (r *ModuleRegistry) ShutdownAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	r.logger.Info("shutting down modules", zap.Int("count", len(r.modules)))

	var errs error
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		r.logger.Info("shutting down module", zap.String("module", name))
		if err := r.modules[name].Shutdown(); err != nil {
			r.logger.Error("failed to shutdown module",
				zap.String("module", name),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	r.logger.Info("all modules shutdown complete")
	return errs
}
