// Package migrations обеспечивает автоматическое создание и валидацию схемы БД
// при запуске приложения. Гарантирует совместимость схемы или останавливает запуск.
package migrations

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

//go:embed 001_initial_schema.sql
var initialSchema string

// ExpectedTable описывает ожидаемую структуру таблицы для валидации
type ExpectedTable struct {
	Name    string
	Columns []string // Список обязательных колонок
}

// ExpectedSchema содержит описание всех таблиц которые должны существовать
// Русский комментарий: Пока в проекте одна миграция (001_initial_schema.sql).
// Когда появятся боевые данные, изменения схемы пойдут отдельными файлами 002, 003 и т.д.
var ExpectedSchema = []ExpectedTable{
	{Name: "group_settings", Columns: []string{"group_id", "antilink"}},
	{Name: "custom_replies", Columns: []string{"group_id", "trigger", "reply"}},
	{Name: "rate_counters", Columns: []string{"user_id", "count", "last_reset"}},
	{Name: "projects", Columns: []string{"id", "group_id", "link", "name", "submitter_id", "submitter_name", "created_at"}},
	{Name: "top_entries", Columns: []string{"group_id", "project_id", "added_by", "added_at", "added_via_link"}},
	{Name: "members", Columns: []string{"group_id", "user_id", "name", "username", "seen_at"}},
}

// SchemaState представляет состояние схемы БД
type SchemaState int

const (
	SchemaEmpty    SchemaState = iota // Таблиц нет
	SchemaComplete                    // Все таблицы есть
	SchemaPartial                     // Некоторые таблицы есть
	SchemaUnknown                     // Есть неожиданные таблицы
)

// RunMigrationsIfNeeded проверяет схему БД и выполняет миграции если требуется
// Возвращает ошибку если схема несовместима или миграция не удалась
// Русский комментарий: Вызывается при старте бота сразу после подключения к PostgreSQL.
func RunMigrationsIfNeeded(db *sql.DB, logger *zap.Logger) error {
	logger.Info("starting database schema validation and migrations")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	existingTables, err := getExistingTables(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get existing tables: %w", err)
	}

	logger.Info("found existing tables", zap.Int("count", len(existingTables)), zap.Strings("tables", existingTables))

	switch AnalyzeSchemaState(existingTables) {
	case SchemaEmpty:
		logger.Info("database schema is empty, running initial migration")
		return runInitialMigration(ctx, db, logger)

	case SchemaPartial:
		return fmt.Errorf("database schema is partially created - this indicates corrupted migration state. "+
			"Expected tables: %v, found: %v. Please DROP DATABASE and recreate",
			expectedTableNames(), existingTables)

	case SchemaUnknown:
		logger.Warn("database contains extra tables not part of expected schema",
			zap.Strings("extra_tables", findUnknownTables(existingTables)))
	}

	return validateExistingSchema(ctx, db, logger)
}

// getExistingTables возвращает список существующих таблиц
func getExistingTables(ctx context.Context, db *sql.DB) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tables = append(tables, tableName)
	}

	return tables, rows.Err()
}

// AnalyzeSchemaState анализирует состояние схемы по списку существующих таблиц
func AnalyzeSchemaState(existingTables []string) SchemaState {
	if len(existingTables) == 0 {
		return SchemaEmpty
	}

	existingSet := make(map[string]bool, len(existingTables))
	for _, table := range existingTables {
		existingSet[table] = true
	}

	found := 0
	for _, expected := range expectedTableNames() {
		if existingSet[expected] {
			found++
		}
	}

	switch {
	case found == 0:
		// Чужая база без наших таблиц — создаём свою схему рядом
		return SchemaEmpty
	case found < len(ExpectedSchema):
		return SchemaPartial
	case len(findUnknownTables(existingTables)) > 0:
		return SchemaUnknown
	default:
		return SchemaComplete
	}
}

func expectedTableNames() []string {
	names := make([]string, 0, len(ExpectedSchema))
	for _, table := range ExpectedSchema {
		names = append(names, table.Name)
	}
	return names
}

// findUnknownTables возвращает список таблиц которых нет в ExpectedSchema
func findUnknownTables(existingTables []string) []string {
	expectedSet := make(map[string]bool)
	for _, table := range expectedTableNames() {
		expectedSet[table] = true
	}

	var unknown []string
	for _, existing := range existingTables {
		if !expectedSet[existing] {
			unknown = append(unknown, existing)
		}
	}
	return unknown
}

// runInitialMigration выполняет начальную миграцию в одной транзакции
func runInitialMigration(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	commands := SplitSQLCommands(initialSchema)
	logger.Info("parsed migration file", zap.Int("command_count", len(commands)))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer tx.Rollback()

	for i, command := range commands {
		preview := command
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}

		logger.Debug("executing migration command",
			zap.Int("index", i+1),
			zap.Int("total", len(commands)),
			zap.String("preview", preview))

		if _, err := tx.ExecContext(ctx, command); err != nil {
			return fmt.Errorf("failed to execute migration command %d: %w\nCommand: %s", i+1, err, command)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	logger.Info("initial migration completed successfully")
	return validateExistingSchema(ctx, db, logger)
}

// SplitSQLCommands разбивает SQL файл на отдельные команды
// Русский комментарий: Разделитель — точка с запятой в конце строки.
// Учитываем PL/pgSQL блоки с $$ ... $$ и строковые литералы внутри строки не разбираем.
func SplitSQLCommands(sqlContent string) []string {
	var commands []string
	var current strings.Builder
	inDollarQuote := false

	for _, line := range strings.Split(sqlContent, "\n") {
		// Удаляем однострочные комментарии --
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.Count(line, "$$")%2 == 1 {
			inDollarQuote = !inDollarQuote
		}

		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(line, ";") && !inDollarQuote {
			if cmd := strings.TrimSpace(current.String()); cmd != ";" {
				commands = append(commands, cmd)
			}
			current.Reset()
		}
	}

	if cmd := strings.TrimSpace(current.String()); cmd != "" && cmd != ";" {
		commands = append(commands, cmd)
	}
	return commands
}

// validateExistingSchema проверяет что все ожидаемые таблицы и колонки существуют
func validateExistingSchema(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	logger.Info("validating existing database schema")

	for _, expectedTable := range ExpectedSchema {
		for _, column := range expectedTable.Columns {
			var exists bool
			err := db.QueryRowContext(ctx, `
				SELECT EXISTS (
					SELECT 1
					FROM information_schema.columns
					WHERE table_schema = 'public'
					AND table_name = $1
					AND column_name = $2
				)`, expectedTable.Name, column).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check column existence for %s.%s: %w", expectedTable.Name, column, err)
			}
			if !exists {
				return fmt.Errorf("expected column %s.%s does not exist", expectedTable.Name, column)
			}
		}

		logger.Debug("table validated", zap.String("table", expectedTable.Name), zap.Int("columns", len(expectedTable.Columns)))
	}

	logger.Info("schema validation completed successfully", zap.Int("tables", len(ExpectedSchema)))
	return nil
}
