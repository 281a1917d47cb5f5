package config

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Session store backend names accepted by SESSION_STORE.
const (
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	Session  SessionConfig
	JWT      JWTConfig
	Password PasswordConfig
	Lockout  LockoutConfig
	Magic    MagicLinkConfig
	Cleanup  CleanupConfig
	CORS     CORSConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	MigrationsDir string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// SessionConfig selects the session store backend and its TTL window.
type SessionConfig struct {
	Store string
	TTL   time.Duration
}

type JWTConfig struct {
	Secret        string
	Issuer        string
	Audience      []string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

type PasswordConfig struct {
	BcryptCost int
}

// LockoutConfig governs the failed-login lockout policy.
type LockoutConfig struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

type MagicLinkConfig struct {
	Expiry      time.Duration
	FrontendURL string
}

// CleanupConfig tunes the expired-token sweeper.
type CleanupConfig struct {
	Interval time.Duration
	Workers  int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrationsDir: v.GetString("MIGRATIONS_DIR"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Session = SessionConfig{
		Store: strings.ToLower(v.GetString("SESSION_STORE")),
		TTL:   ParseTokenExpiry(v.GetString("SESSION_TTL"), 8*time.Hour),
	}

	cfg.JWT = JWTConfig{
		Secret:        v.GetString("JWT_SECRET"),
		Issuer:        v.GetString("JWT_ISSUER"),
		Audience:      splitAndTrim(v.GetString("JWT_AUDIENCE")),
		AccessExpiry:  ParseTokenExpiry(v.GetString("JWT_EXPIRES_IN"), 15*time.Minute),
		RefreshExpiry: ParseTokenExpiry(v.GetString("JWT_REFRESH_EXPIRES_IN"), 7*24*time.Hour),
	}

	cfg.Password = PasswordConfig{BcryptCost: v.GetInt("BCRYPT_COST")}

	cfg.Lockout = LockoutConfig{
		MaxFailedAttempts: v.GetInt("ACCOUNT_LOCKOUT_ATTEMPTS"),
		Duration:          ParseTokenExpiry(v.GetString("ACCOUNT_LOCKOUT_DURATION"), 15*time.Minute),
	}

	cfg.Magic = MagicLinkConfig{
		Expiry:      ParseTokenExpiry(v.GetString("MAGIC_LINK_EXPIRES_IN"), 15*time.Minute),
		FrontendURL: v.GetString("FRONTEND_URL"),
	}

	cfg.Cleanup = CleanupConfig{
		Interval: ParseTokenExpiry(v.GetString("CLEANUP_INTERVAL"), time.Hour),
		Workers:  v.GetInt("CLEANUP_WORKERS"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 3020)
	v.SetDefault("API_PREFIX", "/auth")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "peerit_auth")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SESSION_STORE", SessionStoreRedis)
	v.SetDefault("SESSION_TTL", "8h")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "peerit-auth")
	v.SetDefault("JWT_AUDIENCE", "peerit-services")
	v.SetDefault("JWT_EXPIRES_IN", "15m")
	v.SetDefault("JWT_REFRESH_EXPIRES_IN", "7d")

	v.SetDefault("BCRYPT_COST", 12)

	v.SetDefault("ACCOUNT_LOCKOUT_ATTEMPTS", 5)
	v.SetDefault("ACCOUNT_LOCKOUT_DURATION", "15m")

	v.SetDefault("MAGIC_LINK_EXPIRES_IN", "15m")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")

	v.SetDefault("CLEANUP_INTERVAL", "1h")
	v.SetDefault("CLEANUP_WORKERS", 1)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// ParseTokenExpiry converts TTL strings of the form "<int>m", "<int>h" or
// "<int>d" into a duration. A bare integer is interpreted as seconds, as is
// any value with an unknown unit suffix. The fallback applies when the
// string carries no leading integer at all.
func ParseTokenExpiry(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	unit := time.Second
	num := raw
	switch {
	case strings.HasSuffix(raw, "m"):
		unit = time.Minute
		num = strings.TrimSuffix(raw, "m")
	case strings.HasSuffix(raw, "h"):
		unit = time.Hour
		num = strings.TrimSuffix(raw, "h")
	case strings.HasSuffix(raw, "d"):
		unit = 24 * time.Hour
		num = strings.TrimSuffix(raw, "d")
	default:
		num = strings.TrimFunc(raw, func(r rune) bool { return r < '0' || r > '9' })
	}

	n, err := strconv.Atoi(num)
	if err != nil {
		return fallback
	}

	return time.Duration(n) * unit
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
