package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"sourcetrader/pkg/utils"
)

// Config содержит всю конфигурацию приложения.
// После Load значения не изменяются и передаются в конструкторы.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Telegram TelegramConfig
	Signals  SignalsConfig
	Summary  SummaryConfig
	Kafka    KafkaConfig
	Tracing  TracingConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	UseHTTPS     bool
	CertFile     string
	KeyFile      string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	URL          string // DATABASE_URL имеет приоритет над отдельными полями
	Driver       string
	Host         string
	Port         int
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// SecurityConfig - статические токены доступа
type SecurityConfig struct {
	WebhookSecret         string   // поле secret во входящем сигнале
	CronToken             string   // /cron?token=
	AdminToken            string   // /admin, /api/v1/*, /ws/stream
	TelegramWebhookSecret string   // X-Telegram-Bot-Api-Secret-Token
	AllowedOrigins        []string // CORS
}

// TelegramConfig - настройки клиента Telegram Bot API
type TelegramConfig struct {
	BotToken       string
	APIBaseURL     string
	Timeout        time.Duration // таймаут одной попытки
	MaxAttempts    int           // не более 3
	RatePerSecond  float64       // темп рассылки
	Burst          int
	SupportContact string
}

// SignalsConfig - правила приема и оформления сигналов
type SignalsConfig struct {
	AllowedSymbols   []string
	ShowFixedSLTP    bool
	FixedSLPct       float64 // доля, 0.02 = 2%
	FixedTPPct       float64
	TrialDays        int
	SubscriptionDays int
}

// SummaryConfig - расписание дневной сводки
type SummaryConfig struct {
	Timezone    string
	Location    *time.Location
	WindowStart utils.Clock
}

// KafkaConfig - публикация событий сигналов (пусто = выключено)
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// TracingConfig - настройки OpenTelemetry
type TracingConfig struct {
	Enabled     bool
	ServiceName string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Часовой пояс по умолчанию и его смещение на случай отсутствия tzdata
const (
	defaultTimezone       = "Asia/Tehran"
	defaultTimezoneOffset = 3*time.Hour + 30*time.Minute
	defaultSummaryStart   = "23:28"
	maxTelegramAttempts   = 3
)

// Load загружает конфигурацию из переменных окружения.
// Файл .env подхватывается, если он есть; переменные окружения имеют приоритет.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			UseHTTPS:     getEnvAsBool("USE_HTTPS", false),
			CertFile:     getEnv("CERT_FILE", ""),
			KeyFile:      getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", ""),
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			Name:         getEnv("DB_NAME", "sourcetrader"),
			User:         getEnv("DB_USER", "user"),
			Password:     getEnv("DB_PASSWORD", "password"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Security: SecurityConfig{
			WebhookSecret:         getEnv("WEBHOOK_SECRET", ""),
			CronToken:             getEnv("CRON_TOKEN", ""),
			AdminToken:            getEnv("ADMIN_PANEL_TOKEN", ""),
			TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
			AllowedOrigins:        getEnvAsList("ALLOWED_ORIGINS", nil),
		},
		Telegram: TelegramConfig{
			BotToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
			APIBaseURL:     getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			Timeout:        getEnvAsDuration("TELEGRAM_TIMEOUT", 10*time.Second),
			MaxAttempts:    getEnvAsInt("TELEGRAM_MAX_ATTEMPTS", maxTelegramAttempts),
			RatePerSecond:  getEnvAsFloat("TELEGRAM_RATE_PER_SECOND", 25),
			Burst:          getEnvAsInt("TELEGRAM_BURST", 5),
			SupportContact: getEnv("SUPPORT_CONTACT", "@sourcetrader_support"),
		},
		Signals: SignalsConfig{
			AllowedSymbols:   utils.ParseSymbolList(getEnv("ALLOWED_SYMBOLS", "BTCUSDT,ETHUSDT,DOGEUSDT,SOLUSDT,BNBUSDT")),
			ShowFixedSLTP:    getEnvAsBool("SHOW_FIXED_SLTP", true),
			FixedSLPct:       getEnvAsFloat("FIXED_SL_PCT", 0.02),
			FixedTPPct:       getEnvAsFloat("FIXED_TP_PCT", 0.04),
			TrialDays:        getEnvAsInt("TRIAL_DAYS", 7),
			SubscriptionDays: getEnvAsInt("SUBSCRIPTION_DAYS", 30),
		},
		Summary: SummaryConfig{
			Timezone: getEnv("SUMMARY_TIMEZONE", defaultTimezone),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "signals"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("TRACING_ENABLED", false),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "sourcetrader"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
	}

	start, err := utils.ParseClock(getEnv("SUMMARY_WINDOW_START", defaultSummaryStart))
	if err != nil {
		return nil, fmt.Errorf("SUMMARY_WINDOW_START: %w", err)
	}
	cfg.Summary.WindowStart = start
	cfg.Summary.Location = utils.LoadLocationOrFixed(cfg.Summary.Timezone, defaultTimezoneOffset)

	// Валидация критичных параметров безопасности
	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	// Валидация числовых диапазонов
	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// Без токена /cron доступен любому, а сводку может запустить кто угодно
	if c.Security.CronToken == "" {
		return fmt.Errorf("CRON_TOKEN is required")
	}

	if c.Security.AdminToken == "" {
		return fmt.Errorf("ADMIN_PANEL_TOKEN is required")
	}

	if c.Server.UseHTTPS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return fmt.Errorf("CERT_FILE and KEY_FILE are required when USE_HTTPS=true")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	// Валидация портов
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	// Telegram: не более 3 попыток на сообщение
	if c.Telegram.MaxAttempts < 1 || c.Telegram.MaxAttempts > maxTelegramAttempts {
		return fmt.Errorf("TELEGRAM_MAX_ATTEMPTS must be between 1 and %d, got %d",
			maxTelegramAttempts, c.Telegram.MaxAttempts)
	}

	if c.Telegram.Timeout <= 0 {
		return fmt.Errorf("TELEGRAM_TIMEOUT must be positive, got %v", c.Telegram.Timeout)
	}

	if c.Telegram.RatePerSecond <= 0 {
		return fmt.Errorf("TELEGRAM_RATE_PER_SECOND must be positive, got %v", c.Telegram.RatePerSecond)
	}

	if c.Telegram.Burst < 1 {
		return fmt.Errorf("TELEGRAM_BURST must be at least 1, got %d", c.Telegram.Burst)
	}

	// SL/TP задаются долями: 0.02 = 2%
	if c.Signals.FixedSLPct < 0 || c.Signals.FixedSLPct >= 1 {
		return fmt.Errorf("FIXED_SL_PCT must be in [0, 1), got %v", c.Signals.FixedSLPct)
	}

	if c.Signals.FixedTPPct < 0 || c.Signals.FixedTPPct >= 1 {
		return fmt.Errorf("FIXED_TP_PCT must be in [0, 1), got %v", c.Signals.FixedTPPct)
	}

	if len(c.Signals.AllowedSymbols) == 0 {
		return fmt.Errorf("ALLOWED_SYMBOLS must contain at least one symbol")
	}

	if c.Signals.TrialDays < 0 {
		return fmt.Errorf("TRIAL_DAYS cannot be negative, got %d", c.Signals.TrialDays)
	}

	if c.Signals.SubscriptionDays < 1 {
		return fmt.Errorf("SUBSCRIPTION_DAYS must be at least 1, got %d", c.Signals.SubscriptionDays)
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}

// IsSymbolAllowed проверяет символ по списку разрешенных
func (s SignalsConfig) IsSymbolAllowed(symbol string) bool {
	for _, allowed := range s.AllowedSymbols {
		if allowed == symbol {
			return true
		}
	}
	return false
}

// Addr возвращает адрес для http.Server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	if d.URL != "" {
		return "DATABASE_URL"
	}
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
