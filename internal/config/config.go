package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	StorageBackend  = "backend"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config posyandu 服务/CLI 配置
type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	// SiteURL is the redirect target put in sign-up and password reset e-mails.
	SiteURL string        `yaml:"site_url"`
	Backend BackendConfig `yaml:"backend"`

	StorageDriver string         `yaml:"storage_driver"`
	Database      DatabaseConfig `yaml:"database"`

	Session SessionConfig `yaml:"session"`
	Redis   struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	MQTT MQTTConfig `yaml:"mqtt"`

	Timezone string `yaml:"timezone"`
	Log      struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// BackendConfig 托管后端（认证 + 数据表）
type BackendConfig struct {
	URL     string        `yaml:"url"`
	AnonKey string        `yaml:"anon_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig is used by the postgres storage driver.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// SessionConfig 会话存储
type SessionConfig struct {
	Store string        `yaml:"store"` // "redis" | "memory"
	TTL   time.Duration `yaml:"ttl"`
	File  string        `yaml:"file"` // CLI session file
}

// MQTTConfig MQTT 配置（参与者变更通知，默认禁用）
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
}

// Load builds the config from CONFIG_FILE (optional YAML) and environment
// variables. Environment variables win over the file.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = ":8080"
	cfg.SiteURL = "http://localhost:5173"
	cfg.Backend.Timeout = 15 * time.Second
	cfg.StorageDriver = StorageBackend

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "posyandu"
	cfg.Database.SSLMode = "disable"

	cfg.Session.Store = "redis"
	cfg.Session.TTL = 7 * 24 * time.Hour
	if home, err := os.UserHomeDir(); err == nil {
		cfg.Session.File = filepath.Join(home, ".posyandu", "session.yaml")
	}
	cfg.Redis.Addr = "localhost:6379"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "posyandu-klitikan"
	cfg.MQTT.Topic = "posyandu/participants"

	cfg.Timezone = "Asia/Jakarta"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

func loadFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.SiteURL = getEnv("SITE_URL", cfg.SiteURL)

	cfg.Backend.URL = getEnv("BACKEND_URL", cfg.Backend.URL)
	cfg.Backend.AnonKey = getEnv("BACKEND_ANON_KEY", cfg.Backend.AnonKey)
	cfg.Backend.Timeout = parseDuration(os.Getenv("BACKEND_TIMEOUT"), cfg.Backend.Timeout)

	cfg.StorageDriver = getEnv("STORAGE_DRIVER", cfg.StorageDriver)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = parseInt(os.Getenv("DB_PORT"), cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Session.Store = getEnv("SESSION_STORE", cfg.Session.Store)
	cfg.Session.TTL = parseDuration(os.Getenv("SESSION_TTL"), cfg.Session.TTL)
	cfg.Session.File = getEnv("SESSION_FILE", cfg.Session.File)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = parseInt(os.Getenv("REDIS_DB"), cfg.Redis.DB)

	if v := os.Getenv("MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = v == "true"
	}
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", cfg.MQTT.Topic)

	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

// ValidateBackend reports missing backend settings. Auth always goes through the
// backend, so every command needs them.
func (c *Config) ValidateBackend() error {
	if c.Backend.URL == "" || c.Backend.AnonKey == "" {
		return fmt.Errorf("missing backend configuration: BACKEND_URL and BACKEND_ANON_KEY are required")
	}
	switch c.StorageDriver {
	case StorageBackend, StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return v
}
