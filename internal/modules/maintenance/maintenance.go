package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/flybasist/gcbot/internal/core"
	"github.com/flybasist/gcbot/internal/store"
)

// DefaultRetention — сколько хранить резервные копии.
const DefaultRetention = 7 * 24 * time.Hour

// MaintenanceModule обслуживает резервные копии хранилища.
// Русский комментарий: По расписанию cron снимает копию store в BACKUP_DIR
// и удаляет копии старше retention. Работает в фоновом режиме.
type MaintenanceModule struct {
	backuper  store.Backuper
	dir       string
	schedule  string
	retention time.Duration
	logger    *zap.Logger
	cron      *cron.Cron
	now       func() time.Time
	ctx       context.Context
}

// New создаёт новый инстанс модуля обслуживания.
// backuper может быть nil, если хранилище не умеет делать копии (PostgreSQL).
func New(backuper store.Backuper, dir, schedule string, logger *zap.Logger) *MaintenanceModule {
	m := &MaintenanceModule{
		backuper:  backuper,
		dir:       dir,
		schedule:  schedule,
		retention: DefaultRetention,
		logger:    logger,
		cron:      cron.New(),
		now:       time.Now,
		ctx:       context.Background(),
	}

	logger.Info("maintenance module created",
		zap.String("backup_dir", dir),
		zap.String("schedule", schedule))
	return m
}

func (m *MaintenanceModule) Name() string { return "maintenance" }

func (m *MaintenanceModule) Commands() []core.BotCommand { return nil }

// Init регистрирует cron-задачу резервного копирования и запускает планировщик.
func (m *MaintenanceModule) Init(ctx context.Context) error {
	if m.backuper == nil || m.schedule == "" {
		m.logger.Info("store backups disabled")
		return nil
	}
	m.ctx = ctx

	_, err := m.cron.AddFunc(m.schedule, func() {
		m.logger.Info("running store backup task")
		if _, err := m.RunBackup(m.ctx); err != nil {
			m.logger.Error("store backup failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule store backup: %w", err)
	}

	m.cron.Start()
	m.logger.Info("maintenance scheduler started successfully")
	return nil
}

// RunBackup снимает копию и чистит старые.
func (m *MaintenanceModule) RunBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	path, err := m.backuper.Backup(ctx, m.dir)
	if err != nil {
		return "", fmt.Errorf("backup store: %w", err)
	}
	m.logger.Info("store backup written", zap.String("path", path))

	removed, err := m.prune()
	if err != nil {
		return path, fmt.Errorf("prune backups: %w", err)
	}
	if removed > 0 {
		m.logger.Info("old backups removed", zap.Int("count", removed))
	}
	return path, nil
}

// prune удаляет копии старше retention.
// Русский комментарий: Трогаем только файлы, которые пишут наши хранилища (db-*.json, bot-*.db).
func (m *MaintenanceModule) prune() (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-m.retention)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !isBackupName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(m.dir, e.Name())); err != nil {
				m.logger.Warn("failed to remove old backup", zap.String("file", e.Name()), zap.Error(err))
				continue
			}
			removed++
		}
	}
	return removed, nil
}

func isBackupName(name string) bool {
	return (strings.HasPrefix(name, "db-") && strings.HasSuffix(name, ".json")) ||
		(strings.HasPrefix(name, "bot-") && strings.HasSuffix(name, ".db"))
}

// Shutdown выполняет graceful shutdown модуля.
func (m *MaintenanceModule) Shutdown() error {
	m.logger.Info("shutting down maintenance module")
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info("maintenance scheduler stopped")
	return nil
}
