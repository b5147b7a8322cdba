package main

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/config"
	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/events"
	"github.com/flybasist/gcbot/internal/metrics"
	"github.com/flybasist/gcbot/internal/modules/antilink"
	"github.com/flybasist/gcbot/internal/modules/groupadmin"
	"github.com/flybasist/gcbot/internal/modules/limiter"
	"github.com/flybasist/gcbot/internal/modules/maintenance"
	"github.com/flybasist/gcbot/internal/modules/price"
	"github.com/flybasist/gcbot/internal/modules/projects"
	"github.com/flybasist/gcbot/internal/modules/replies"
	"github.com/flybasist/gcbot/internal/store"
)

// Modules содержит все модули бота.
// Русский комментарий: Явная структура со всеми модулями.
// Projects == nil, если трекинг проектов выключен.
type Modules struct {
	Antilink    *antilink.Module
	Replies     *replies.Module
	GroupAdmin  *groupadmin.Module
	Price       *price.Module
	Projects    *projects.Module
	Maintenance *maintenance.MaintenanceModule
}

// initModules создаёт модули и регистрирует их в registry.
func initModules(
	cfg *config.Config,
	repo store.Repository,
	bus *events.Bus,
	m *metrics.Metrics,
	logger *zap.Logger,
	registry *core.ModuleRegistry,
) *Modules {
	logger.Info("initializing modules")

	client := price.NewClient(price.ClientConfig{
		BaseURL:  cfg.DexscreenerBaseURL,
		Timeout:  cfg.PriceTimeout,
		RPS:      cfg.PriceRPS,
		CacheTTL: cfg.PriceCacheTTL,
	}, &http.Client{})
	lim := limiter.New(repo, cfg.PriceDailyLimit, bus, logger)

	// Бэкапы только для хранилищ, которые их умеют (json, bolt)
	backuper, _ := repo.(store.Backuper)

	modules := &Modules{
		Antilink:    antilink.New(repo, bus, m, logger),
		Replies:     replies.New(repo, logger),
		GroupAdmin:  groupadmin.New(groupadmin.Options{PriceSigil: cfg.PriceSigil, ProjectTracking: cfg.ProjectTracking}, bus, logger),
		Price:       price.New(client, lim, m, logger),
		Maintenance: maintenance.New(backuper, cfg.BackupDir, cfg.BackupSchedule, logger),
	}
	if cfg.ProjectTracking {
		modules.Projects = projects.New(repo, cfg.ProjectLinkHosts, bus, logger)
	}

	registry.Register(modules.Antilink)
	registry.Register(modules.Replies)
	registry.Register(modules.GroupAdmin)
	registry.Register(modules.Price)
	registry.Register(modules.Maintenance)
	if modules.Projects != nil {
		registry.Register(modules.Projects)
	}
	return modules
}
