package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr                   string `yaml:"addr"`
		ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
	} `yaml:"server"`
	DB struct {
		DSN    string `yaml:"dsn"`
		Driver string `yaml:"driver"`
	} `yaml:"db"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Lock struct {
		Backend         string `yaml:"backend"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
		TTLSeconds      int    `yaml:"ttl_seconds"`
		RetryIntervalMs int    `yaml:"retry_interval_ms"`
	} `yaml:"lock"`
	Ledger struct {
		DefaultMinBalance      string `yaml:"default_min_balance"`
		SystemWalletMinBalance string `yaml:"system_wallet_min_balance"`
		SystemWalletPolicy     string `yaml:"system_wallet_policy"`
		HistoryPageSize        int    `yaml:"history_page_size"`
		HistoryMaxPageSize     int    `yaml:"history_max_page_size"`
	} `yaml:"ledger"`
	Worker struct {
		IntervalSeconds int64 `yaml:"interval_seconds"`
		BatchSize       int   `yaml:"batch_size"`
	} `yaml:"worker"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads the YAML file at path (or CONFIG_PATH, or configs/config.yaml),
// applies environment overrides, including any found in a local .env file,
// then fills defaults and validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	switch c.DB.Driver {
	case "postgres":
		if c.DB.DSN == "" {
			return errors.New("db.dsn is required")
		}
	case "memory":
	default:
		return fmt.Errorf("db.driver %q is not supported", c.DB.Driver)
	}
	switch c.Lock.Backend {
	case "local":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis lock backend")
		}
	default:
		return fmt.Errorf("lock.backend %q is not supported", c.Lock.Backend)
	}
	if _, err := decimal.NewFromString(c.Ledger.DefaultMinBalance); err != nil {
		return fmt.Errorf("ledger.default_min_balance: %w", err)
	}
	if _, err := decimal.NewFromString(c.Ledger.SystemWalletMinBalance); err != nil {
		return fmt.Errorf("ledger.system_wallet_min_balance: %w", err)
	}
	if c.Ledger.HistoryPageSize > c.Ledger.HistoryMaxPageSize {
		return errors.New("ledger.history_page_size exceeds ledger.history_max_page_size")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ShutdownTimeoutSeconds <= 0 {
		cfg.Server.ShutdownTimeoutSeconds = 5
	}
	if cfg.DB.Driver == "" {
		cfg.DB.Driver = "postgres"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "ledger.order-events"
	}
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = "local"
	}
	if cfg.Lock.TimeoutSeconds <= 0 {
		cfg.Lock.TimeoutSeconds = 600
	}
	if cfg.Lock.TTLSeconds <= 0 {
		cfg.Lock.TTLSeconds = 30
	}
	if cfg.Lock.RetryIntervalMs <= 0 {
		cfg.Lock.RetryIntervalMs = 50
	}
	if cfg.Ledger.DefaultMinBalance == "" {
		cfg.Ledger.DefaultMinBalance = "0"
	}
	if cfg.Ledger.SystemWalletMinBalance == "" {
		cfg.Ledger.SystemWalletMinBalance = "0"
	}
	if cfg.Ledger.SystemWalletPolicy == "" {
		cfg.Ledger.SystemWalletPolicy = "sale_only"
	}
	if cfg.Ledger.HistoryPageSize <= 0 {
		cfg.Ledger.HistoryPageSize = 50
	}
	if cfg.Ledger.HistoryMaxPageSize <= 0 {
		cfg.Ledger.HistoryMaxPageSize = 500
	}
	if cfg.Worker.IntervalSeconds <= 0 {
		cfg.Worker.IntervalSeconds = 5
	}
	if cfg.Worker.BatchSize <= 0 {
		cfg.Worker.BatchSize = 100
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Lock.TimeoutSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}

func (c *Config) LockRetryInterval() time.Duration {
	return time.Duration(c.Lock.RetryIntervalMs) * time.Millisecond
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) WorkerInterval() time.Duration {
	return time.Duration(c.Worker.IntervalSeconds) * time.Second
}

// DefaultMinBalance and SystemWalletMinBalance are validated by Load.
func (c *Config) DefaultMinBalance() decimal.Decimal {
	return decimal.RequireFromString(c.Ledger.DefaultMinBalance)
}

func (c *Config) SystemWalletMinBalance() decimal.Decimal {
	return decimal.RequireFromString(c.Ledger.SystemWalletMinBalance)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.DB.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		cfg.Redis.DB = atoiOr(cfg.Redis.DB, v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitCommaList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("LOCK_BACKEND"); v != "" {
		cfg.Lock.Backend = v
	}
	if v := os.Getenv("LOCK_TIMEOUT_SECONDS"); v != "" {
		cfg.Lock.TimeoutSeconds = atoiOr(cfg.Lock.TimeoutSeconds, v)
	}
	if v := os.Getenv("LOCK_TTL_SECONDS"); v != "" {
		cfg.Lock.TTLSeconds = atoiOr(cfg.Lock.TTLSeconds, v)
	}
	if v := os.Getenv("LEDGER_DEFAULT_MIN_BALANCE"); v != "" {
		cfg.Ledger.DefaultMinBalance = v
	}
	if v := os.Getenv("LEDGER_SYSTEM_WALLET_MIN_BALANCE"); v != "" {
		cfg.Ledger.SystemWalletMinBalance = v
	}
	if v := os.Getenv("LEDGER_SYSTEM_WALLET_POLICY"); v != "" {
		cfg.Ledger.SystemWalletPolicy = v
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		cfg.Worker.IntervalSeconds = atoi64Or(cfg.Worker.IntervalSeconds, v)
	}
	if v := os.Getenv("WORKER_BATCH_SIZE"); v != "" {
		cfg.Worker.BatchSize = atoiOr(cfg.Worker.BatchSize, v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
