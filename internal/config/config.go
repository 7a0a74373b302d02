package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	Gemini GeminiConfig
	Quota  QuotaConfig
	HTTP   HTTPConfig
	Auth   AuthConfig
	NATS   NATSConfig
	DB     DBConfig
	Log    LogConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GeminiConfig configures the upstream image model. An empty APIKey is
// allowed at startup; generate calls then fail with missing_credential.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type QuotaConfig struct {
	WeeklyLimit     int
	Retention       time.Duration
	Mode            string
	RefundOnFailure bool
}

type HTTPConfig struct {
	MaxBodyBytes       int64
	RateLimit          int
	RateWindow         time.Duration
	CORSAllowedOrigins []string
}

// AuthConfig enables bearer identity tokens when JWTSecret is set.
type AuthConfig struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}

// NATSConfig enables generation events when URL is set.
type NATSConfig struct {
	URL string
}

func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

type DBConfig struct {
	Enabled        bool
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile reads an optional dotenv file, then the environment on top of it.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(path), dotenv.ParserEnv("", ".", envKey))

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", envKey), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		Gemini: GeminiConfig{
			APIKey:  k.String("gemini.api.key"),
			Model:   k.String("gemini.model"),
			BaseURL: k.String("gemini.base.url"),
		},
		Quota: QuotaConfig{
			WeeklyLimit:     k.Int("quota.weekly.limit"),
			Mode:            strings.ToLower(k.String("quota.mode")),
			RefundOnFailure: k.Bool("quota.refund.on.failure"),
		},
		HTTP: HTTPConfig{
			MaxBodyBytes:       k.Int64("http.max.body.bytes"),
			RateLimit:          k.Int("http.rate.limit"),
			CORSAllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		Auth: AuthConfig{
			JWTSecret: k.String("auth.jwt.secret"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		DB: DBConfig{
			Enabled:        k.Bool("db.enabled"),
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// The browser client reads its key from API_KEY; accept it as a fallback.
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = k.String("api.key")
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.5-flash-image"
	}
	if cfg.Quota.WeeklyLimit == 0 {
		cfg.Quota.WeeklyLimit = 50
	}
	if cfg.Quota.Mode == "" {
		cfg.Quota.Mode = "optimistic"
	}
	if cfg.HTTP.MaxBodyBytes == 0 {
		cfg.HTTP.MaxBodyBytes = 20 << 20
	}
	if cfg.HTTP.RateLimit == 0 {
		cfg.HTTP.RateLimit = 20
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "dreamscapers"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "dreamscapers"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 10
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	var err error
	if cfg.Gemini.Timeout, err = duration(k, "gemini.timeout", "60s"); err != nil {
		return nil, err
	}
	if cfg.Quota.Retention, err = duration(k, "quota.retention", "336h"); err != nil {
		return nil, err
	}
	if cfg.HTTP.RateWindow, err = duration(k, "http.rate.window", "1m"); err != nil {
		return nil, err
	}
	if cfg.Auth.TokenExpiry, err = duration(k, "auth.token.expiry", "168h"); err != nil {
		return nil, err
	}
	if cfg.Server.ReadTimeout, err = duration(k, "server.read.timeout", "30s"); err != nil {
		return nil, err
	}
	// Writes must outlive the slowest upstream call.
	if cfg.Server.WriteTimeout, err = duration(k, "server.write.timeout", (cfg.Gemini.Timeout + 15*time.Second).String()); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envKey maps QUOTA_WEEKLY_LIMIT to quota.weekly.limit.
func envKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", "."))
}

func duration(k *koanf.Koanf, key, def string) (time.Duration, error) {
	s := k.String(key)
	if s == "" {
		s = def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", strings.ToUpper(strings.ReplaceAll(key, ".", "_")), err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
