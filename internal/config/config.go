package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// 放置DRAFTの扱い
const (
	DraftRetentionKeep   = "keep"
	DraftRetentionDelete = "delete"
)

// Configはアプリ全体の設定
type Config struct {
	Port string `envconfig:"PORT" default:"8080"` // サーバーポート

	// DATABASE_URLがあれば最優先
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"postgres"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"marketplace"`
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"` // JWT検証シークレット（発行は外部）

	GoEnv string `envconfig:"GO_ENV" default:"dev"` // dev/prod

	// 「今日」の判定に使う市場のタイムゾーン
	MarketTimezone string `envconfig:"MARKET_TIMEZONE" default:"Europe/Oslo"`

	DraftAbandonAfter time.Duration `envconfig:"DRAFT_ABANDON_AFTER" default:"24h"`
	DraftRetention    string        `envconfig:"DRAFT_RETENTION" default:"keep"`
	SweepSchedule     string        `envconfig:"SWEEP_SCHEDULE" default:"@every 10m"`
	InvoiceDueDays    int           `envconfig:"INVOICE_DUE_DAYS" default:"30"`

	// 空ならプロセス内ロック
	RedisAddr string `envconfig:"REDIS_ADDR"`

	// 空ならイベントは捨てる
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"marketplace.orders"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`

	location *time.Location
}

// Loadは環境変数
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}

	cfg.DraftRetention = strings.ToLower(strings.TrimSpace(cfg.DraftRetention))
	switch cfg.DraftRetention {
	case DraftRetentionKeep, DraftRetentionDelete:
	default:
		return Config{}, fmt.Errorf("DRAFT_RETENTION must be keep or delete")
	}
	if cfg.DraftAbandonAfter <= 0 {
		return Config{}, fmt.Errorf("DRAFT_ABANDON_AFTER must be positive")
	}
	if cfg.InvoiceDueDays < 0 {
		return Config{}, fmt.Errorf("INVOICE_DUE_DAYS must not be negative")
	}

	loc, err := time.LoadLocation(cfg.MarketTimezone)
	if err != nil {
		return Config{}, fmt.Errorf("MARKET_TIMEZONE: %w", err)
	}
	cfg.location = loc

	return cfg, nil
}

// 市場のタイムゾーン（未設定ならUTC）
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod" || c.GoEnv == "production"
}

func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

// ":8080"の形にそろえる
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
