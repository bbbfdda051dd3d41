// Package config загружает настройки бота из .env и переменных окружения.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	TelegramToken string `env:"TELEGRAM_TOKEN" env-required:"true"`
	SupabaseURL   string `env:"SUPABASE_URL"`
	SupabaseKey   string `env:"SUPABASE_KEY"`

	AdminIDs        []int64  `env:"ADMIN_IDS" env-separator:","`
	SignalChannelID int64    `env:"SIGNAL_CHANNEL_ID"`
	LogChannelID    int64    `env:"LOG_CHANNEL_ID"`
	CryptoAddress   string   `env:"CRYPTO_ADDRESS" env-default:"TVx9zE2B2t6K4bpSdeFwH1Rfdp9RqKZZoT"`
	SupportContact  string   `env:"SUPPORT_CONTACT" env-default:"PTTmanager"`
	SignalPhotos    []string `env:"SIGNAL_PHOTOS" env-separator:"," env-default:"data/photo.jpg,data/example.jpg"`

	Polling
	Schedule
	Redis

	BackupDir   string `env:"BACKUP_DIR" env-default:"backups"`
	MetricsAddr string `env:"METRICS_ADDR"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat   string `env:"LOG_FORMAT" env-default:"text"`
}

// Polling настройки long polling и исходящих запросов
type Polling struct {
	PollTimeout       time.Duration `env:"POLL_TIMEOUT" env-default:"30s"`
	PollRetryDelay    time.Duration `env:"POLL_RETRY_DELAY" env-default:"3s"`
	RateLimitCooldown time.Duration `env:"RATE_LIMIT_COOLDOWN" env-default:"1s"`
	SendRate          float64       `env:"SEND_RATE" env-default:"20"`
}

// Schedule расписания фоновых циклов в формате robfig/cron
type Schedule struct {
	SweepSchedule   string        `env:"SWEEP_SCHEDULE" env-default:"@every 24h"`
	SweepCooldown   time.Duration `env:"SWEEP_COOLDOWN" env-default:"1h"`
	ReminderHorizon time.Duration `env:"REMINDER_HORIZON" env-default:"24h"`
	ReportSchedule  string        `env:"REPORT_SCHEDULE" env-default:"@every 1h"`
	ReportCooldown  time.Duration `env:"REPORT_COOLDOWN" env-default:"1h"`
}

// Redis необязательное хранилище водяной метки и дневных маркеров.
// Пустой адрес означает хранение только в памяти процесса.
type Redis struct {
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`
}

// LoadConfig читает .env (если он есть) и переменные окружения
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.LoadConfig: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config.LoadConfig: %w", err)
	}
	return &cfg, nil
}

// UseSupabase сообщает, заданы ли реквизиты Supabase
func (c *Config) UseSupabase() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}
