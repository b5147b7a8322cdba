package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config — централизованная структура настроек сервиса.
// Русский комментарий: Все переменные окружения собираются один раз при старте.
// Порядок источников: .env -> settings.yaml -> переменные окружения (окружение побеждает).
// Логирование всегда на английском для единообразия операционных сообщений.
type Config struct {
	TelegramBotToken string        // Токен Telegram бота
	Port             string        // Порт HTTP (liveness / health / metrics)
	LogLevel         string        // Уровень логирования (debug, info, warn, error)
	LogPretty        bool          // Человекочитаемый вывод логов
	LogFile          string        // Файл логов (ротация через lumberjack)
	LogMaxSizeMB     int           // Максимальный размер файла лога
	LogMaxBackups    int           // Сколько старых файлов хранить
	LogMaxAgeDays    int           // Сколько дней хранить старые файлы
	ShutdownTimeout  time.Duration // Таймаут graceful shutdown
	PollingTimeout   time.Duration // Таймаут long polling

	CommandPrefixes []string // Префиксы команд ("!" и "/")
	PriceSigil      string   // Префикс быстрого запроса цены ("$")

	StoreDriver string // json | bolt | postgres
	StorePath   string // Путь к JSON документу
	BoltPath    string // Путь к bbolt файлу
	PostgresDSN string // Строка подключения к PostgreSQL

	DexscreenerBaseURL string
	PriceTimeout       time.Duration
	PriceDailyLimit    int // 0 = без ограничений
	PriceRPS           float64
	PriceCacheTTL      time.Duration // 0 = без кэша
	MetadataCacheTTL   time.Duration // 0 = без кэша (список админов запрашивается каждый раз)

	EventsSink   string // log | kafka | rabbit
	KafkaBrokers []string
	KafkaTopic   string
	RabbitURL    string
	RabbitQueue  string

	ProjectTracking  bool
	ProjectLinkHosts []string

	BackupSchedule string // cron выражение
	BackupDir      string
}

// fileConfig — структура settings.yaml. Все поля опциональны.
type fileConfig struct {
	Bot struct {
		Token    string   `yaml:"token"`
		Prefixes []string `yaml:"prefixes"`
		Sigil    string   `yaml:"price_sigil"`
	} `yaml:"bot"`
	Store struct {
		Driver      string `yaml:"driver"`
		Path        string `yaml:"path"`
		BoltPath    string `yaml:"bolt_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"store"`
	Price struct {
		BaseURL    string `yaml:"base_url"`
		DailyLimit *int   `yaml:"daily_limit"`
	} `yaml:"price"`
	Projects struct {
		Enabled bool     `yaml:"enabled"`
		Hosts   []string `yaml:"hosts"`
	} `yaml:"projects"`
}

// Load загружает и валидирует конфигурацию.
func Load() (*Config, error) {
	// .env не обязателен — в контейнере переменные приходят из окружения
	_ = godotenv.Load()

	fc, err := loadFile(firstNonEmpty(os.Getenv("CONFIG_FILE"), "settings.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.TelegramBotToken = firstNonEmpty(strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")), fc.Bot.Token)
	cfg.Port = firstNonEmpty(os.Getenv("PORT"), "3000")
	cfg.LogLevel = strings.ToLower(firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"))
	cfg.LogPretty = strings.ToLower(os.Getenv("LOGGER_PRETTY")) == "true"
	cfg.LogFile = firstNonEmpty(os.Getenv("LOG_FILE"), "logs/bot.log")

	if cfg.LogMaxSizeMB, err = intEnv("LOG_MAX_SIZE_MB", 100); err != nil {
		return nil, err
	}
	if cfg.LogMaxBackups, err = intEnv("LOG_MAX_BACKUPS", 3); err != nil {
		return nil, err
	}
	if cfg.LogMaxAgeDays, err = intEnv("LOG_MAX_AGE_DAYS", 28); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollingTimeout, err = durationEnv("POLLING_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.CommandPrefixes = splitList(os.Getenv("COMMAND_PREFIXES"))
	if len(cfg.CommandPrefixes) == 0 {
		cfg.CommandPrefixes = fc.Bot.Prefixes
	}
	if len(cfg.CommandPrefixes) == 0 {
		cfg.CommandPrefixes = []string{"!", "/"}
	}
	cfg.PriceSigil = firstNonEmpty(os.Getenv("PRICE_SIGIL"), fc.Bot.Sigil, "$")

	cfg.StoreDriver = strings.ToLower(firstNonEmpty(os.Getenv("STORE_DRIVER"), fc.Store.Driver, "json"))
	cfg.StorePath = firstNonEmpty(os.Getenv("STORE_PATH"), fc.Store.Path, "session/db.json")
	cfg.BoltPath = firstNonEmpty(os.Getenv("BOLT_PATH"), fc.Store.BoltPath, "session/bot.db")
	cfg.PostgresDSN = firstNonEmpty(strings.TrimSpace(os.Getenv("POSTGRES_DSN")), fc.Store.PostgresDSN)

	cfg.DexscreenerBaseURL = firstNonEmpty(os.Getenv("DEXSCREENER_BASE_URL"), fc.Price.BaseURL, "https://api.dexscreener.com")
	if cfg.PriceTimeout, err = durationEnv("PRICE_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	defaultLimit := 10
	if fc.Price.DailyLimit != nil {
		defaultLimit = *fc.Price.DailyLimit
	}
	if cfg.PriceDailyLimit, err = intEnv("PRICE_DAILY_LIMIT", defaultLimit); err != nil {
		return nil, err
	}
	if cfg.PriceRPS, err = floatEnv("PRICE_RPS", 5); err != nil {
		return nil, err
	}
	if cfg.PriceCacheTTL, err = durationEnv("PRICE_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.MetadataCacheTTL, err = durationEnv("METADATA_CACHE_TTL", time.Minute); err != nil {
		return nil, err
	}

	cfg.EventsSink = strings.ToLower(firstNonEmpty(os.Getenv("EVENTS_SINK"), "log"))
	// Разрешаем перечисление через запятую или пробелы
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.KafkaTopic = firstNonEmpty(os.Getenv("KAFKA_TOPIC"), "gcbot-events")
	cfg.RabbitURL = strings.TrimSpace(os.Getenv("RABBIT_URL"))
	cfg.RabbitQueue = firstNonEmpty(os.Getenv("RABBIT_QUEUE"), "gcbot_events")

	cfg.ProjectTracking = fc.Projects.Enabled
	if v, ok := OptionalBool("PROJECT_TRACKING"); ok {
		cfg.ProjectTracking = v
	}
	cfg.ProjectLinkHosts = splitList(os.Getenv("PROJECT_LINK_HOSTS"))
	if len(cfg.ProjectLinkHosts) == 0 {
		cfg.ProjectLinkHosts = fc.Projects.Hosts
	}
	if len(cfg.ProjectLinkHosts) == 0 {
		cfg.ProjectLinkHosts = []string{"x.com", "twitter.com"}
	}

	cfg.BackupSchedule = firstNonEmpty(os.Getenv("BACKUP_SCHEDULE"), "0 3 * * *")
	cfg.BackupDir = firstNonEmpty(os.Getenv("BACKUP_DIR"), "session/backups")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.StoreDriver == "postgres" && c.PostgresDSN == "" {
		missing = append(missing, "POSTGRES_DSN")
	}
	if c.EventsSink == "kafka" && len(c.KafkaBrokers) == 0 {
		missing = append(missing, "KAFKA_BROKERS")
	}
	if c.EventsSink == "rabbit" && c.RabbitURL == "" {
		missing = append(missing, "RABBIT_URL")
	}
	if len(missing) > 0 {
		return errors.New("missing required env vars: " + strings.Join(missing, ", "))
	}

	switch c.StoreDriver {
	case "json", "bolt", "postgres":
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: want json, bolt or postgres", c.StoreDriver)
	}
	switch c.EventsSink {
	case "log", "kafka", "rabbit":
	default:
		return fmt.Errorf("invalid EVENTS_SINK %q: want log, kafka or rabbit", c.EventsSink)
	}
	if c.PriceCacheTTL < 0 {
		return fmt.Errorf("invalid PRICE_CACHE_TTL: must be >= 0")
	}
	if c.MetadataCacheTTL < 0 {
		return fmt.Errorf("invalid METADATA_CACHE_TTL: must be >= 0")
	}
	if c.PriceDailyLimit < 0 {
		return fmt.Errorf("invalid PRICE_DAILY_LIMIT: must be >= 0")
	}
	return nil
}

// loadFile читает settings.yaml. Отсутствие файла — не ошибка.
func loadFile(path string) (*fileConfig, error) {
	fc := &fileConfig{}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fc, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// Helper: возвращает первое непустое значение.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
}

func intEnv(name string, def int) (int, error) {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func floatEnv(name string, def float64) (float64, error) {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return f, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return dur, nil
}

// OptionalBool читает переменную окружения и пытается интерпретировать её как bool.
// Возвращает значение и признак было ли оно установлено.
func OptionalBool(name string) (bool, bool) {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return false, false
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, false
	}
	return b, true
}

// KafkaConfig — настройки процесса-аудитора (cmd/kafka_logger).
type KafkaConfig struct {
	LogLevel     string
	LogPretty    bool
	KafkaBrokers []string
	KafkaTopic   string
	AuditDir     string
}

// LoadKafka загружает настройки аудитора. Токен бота ему не нужен.
func LoadKafka() (*KafkaConfig, error) {
	_ = godotenv.Load()

	cfg := &KafkaConfig{
		LogLevel:     strings.ToLower(firstNonEmpty(os.Getenv("LOG_LEVEL"), "info")),
		LogPretty:    strings.ToLower(os.Getenv("LOGGER_PRETTY")) == "true",
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   firstNonEmpty(os.Getenv("KAFKA_TOPIC"), "gcbot-events"),
		AuditDir:     firstNonEmpty(os.Getenv("AUDIT_DIR"), "logs/events"),
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("missing required env vars: KAFKA_BROKERS")
	}
	return cfg, nil
}
