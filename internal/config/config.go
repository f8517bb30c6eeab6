package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Token    TokenConfig    `mapstructure:"token"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port            int    `mapstructure:"port"`
	FrontendBaseURL string `mapstructure:"frontend_base_url"`
	InternalSecret  string `mapstructure:"internal_secret"`
	ClamdAddr       string `mapstructure:"clamd_addr"`
	MaxCampaigns    int    `mapstructure:"max_campaigns"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
}

// AuthConfig contains JWT signing keys and token lifetimes.
type AuthConfig struct {
	PrivateKeyPEM   string `mapstructure:"private_key_pem"`
	PublicKeyPEM    string `mapstructure:"public_key_pem"`
	AccessTTLMin    int    `mapstructure:"access_ttl_minutes"`
	RefreshTTLHours int    `mapstructure:"refresh_ttl_hours"`
}

// TokenConfig 配置收件人令牌的主密钥与有效期。
type TokenConfig struct {
	MasterKeyHex string `mapstructure:"master_key_hex"`
	TTLDays      int    `mapstructure:"ttl_days"`
}

// WorkerConfig contains asynq worker settings.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// MasterKey decodes the hex-encoded recipient token key.
func (t TokenConfig) MasterKey() ([]byte, error) {
	key, err := hex.DecodeString(t.MasterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode token master key: %w", err)
	}
	return key, nil
}

// TokenTTL returns the configured validity window.
func (t TokenConfig) TokenTTL() time.Duration {
	return time.Duration(t.TTLDays) * 24 * time.Hour
}

// AccessTTL returns the access token lifetime.
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessTTLMin) * time.Minute
}

// RefreshTTL returns the refresh token lifetime.
func (a AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshTTLHours) * time.Hour
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.frontend_base_url", "http://localhost:3000")
	v.SetDefault("api.max_campaigns", 50)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "droplab")
	v.SetDefault("database.user", "droplab")
	v.SetDefault("database.password", "droplab")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "campaigns")
	v.SetDefault("auth.access_ttl_minutes", 15)
	v.SetDefault("auth.refresh_ttl_hours", 720)
	v.SetDefault("token.ttl_days", 90)
	v.SetDefault("worker.concurrency", 10)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                "API_PORT",
		"api.frontend_base_url":   "FRONTEND_BASE_URL",
		"api.internal_secret":     "INTERNAL_API_SECRET",
		"api.clamd_addr":          "CLAMD_ADDR",
		"api.max_campaigns":       "MAX_CAMPAIGNS_PER_USER",
		"database.host":           "DATABASE_HOST",
		"database.port":           "DATABASE_PORT",
		"database.name":           "POSTGRES_DB",
		"database.user":           "POSTGRES_USER",
		"database.password":       "POSTGRES_PASSWORD",
		"database.sslmode":        "DATABASE_SSLMODE",
		"redis.host":              "REDIS_HOST",
		"redis.port":              "REDIS_PORT",
		"minio.endpoint":          "MINIO_ENDPOINT",
		"minio.access_key_id":     "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key": "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":           "MINIO_USE_SSL",
		"minio.bucket":            "MINIO_BUCKET",
		"auth.private_key_pem":    "AUTH_PRIVATE_KEY_PEM",
		"auth.public_key_pem":     "AUTH_PUBLIC_KEY_PEM",
		"auth.access_ttl_minutes": "AUTH_ACCESS_TTL_MINUTES",
		"auth.refresh_ttl_hours":  "AUTH_REFRESH_TTL_HOURS",
		"token.master_key_hex":    "TOKEN_MASTER_KEY_HEX",
		"token.ttl_days":          "TOKEN_TTL_DAYS",
		"worker.concurrency":      "WORKER_CONCURRENCY",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.FrontendBaseURL == "" {
		return errors.New("frontend base url is required")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Token.MasterKeyHex == "" {
		return errors.New("token master key is required")
	}
	if key, err := cfg.Token.MasterKey(); err != nil || len(key) != 32 {
		return errors.New("token master key must be 32 hex-encoded bytes")
	}
	if cfg.Token.TTLDays <= 0 {
		return errors.New("token ttl days must be positive")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	return nil
}
