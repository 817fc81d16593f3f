package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config описывает настройки витринного сервиса.
type Config struct {
	App struct {
		Name         string `koanf:"name"`
		HTTPAddr     string `koanf:"http_addr"`
		MetricsAddr  string `koanf:"metrics_addr"`
		LogLevel     string `koanf:"log_level"`
		BaseCurrency string `koanf:"base_currency"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout  time.Duration `koanf:"read_timeout"`
		WriteTimeout time.Duration `koanf:"write_timeout"`
		IdleTimeout  time.Duration `koanf:"idle_timeout"`
	} `koanf:"http"`

	Postgres struct {
		// DSN пустой — сервис работает на in-memory хранилище (локальная
		// разработка и тесты).
		DSN string `koanf:"dsn"`
	} `koanf:"postgres"`

	Redis struct {
		// Addr пустой — корзины хранятся в памяти процесса.
		Addr     string        `koanf:"addr"`
		Password string        `koanf:"password"`
		CartTTL  time.Duration `koanf:"cart_ttl"`
	} `koanf:"redis"`

	Kafka struct {
		// Brokers пустой — события заказов остаются в outbox без публикации.
		Brokers       []string `koanf:"brokers"`
		ConsumerGroup string   `koanf:"consumer_group"`
	} `koanf:"kafka"`

	Checkout struct {
		LowStockThreshold int           `koanf:"low_stock_threshold"`
		LockTimeout       time.Duration `koanf:"lock_timeout"`
	} `koanf:"checkout"`

	Outbox struct {
		PollInterval time.Duration `koanf:"poll_interval"`
		BatchSize    int           `koanf:"batch_size"`
		MaxAttempts  int           `koanf:"max_attempts"`
	} `koanf:"outbox"`
}

// DefaultConfig возвращает конфигурацию для локального запуска без файла.
func DefaultConfig() Config {
	var cfg Config
	cfg.App.Name = "banhang-storefront"
	cfg.App.HTTPAddr = ":8080"
	cfg.App.MetricsAddr = ":9090"
	cfg.App.LogLevel = "info"
	cfg.App.BaseCurrency = "USD"
	cfg.HTTP.ReadTimeout = 5 * time.Second
	cfg.HTTP.WriteTimeout = 10 * time.Second
	cfg.HTTP.IdleTimeout = 60 * time.Second
	cfg.Redis.CartTTL = 24 * time.Hour
	cfg.Kafka.ConsumerGroup = "banhang-notifications"
	cfg.Checkout.LowStockThreshold = 5
	cfg.Checkout.LockTimeout = 3 * time.Second
	cfg.Outbox.PollInterval = time.Second
	cfg.Outbox.BatchSize = 100
	cfg.Outbox.MaxAttempts = 3
	return cfg
}

// LoadConfig собирает конфигурацию: defaults -> base.yaml (если pathDir
// задан) -> переменные окружения с префиксом BANHANG_ (вложенность через
// __, например BANHANG_POSTGRES__DSN).
func LoadConfig(pathDir string) (Config, error) {
	k := koanf.New(".")

	if pathDir != "" {
		base := filepath.Join(pathDir, "base.yaml")
		if err := k.Load(file.Provider(base), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", base, err)
		}
	}

	if err := k.Load(env.Provider("BANHANG_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BANHANG_")
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет минимально необходимые поля.
func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	if c.App.MetricsAddr == "" {
		return fmt.Errorf("app.metrics_addr required")
	}
	if c.App.BaseCurrency == "" {
		return fmt.Errorf("app.base_currency required")
	}
	if c.Checkout.LowStockThreshold <= 0 {
		return fmt.Errorf("checkout.low_stock_threshold must be positive")
	}
	return nil
}
