package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"liveclass-backend/pkg/env"
)

// Config holds all configuration for the classroom service
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	LiveKit  LiveKitConfig
	Session  SessionConfig
	Push     PushConfig
	JWT      JWTConfig
	Log      LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int    `validate:"min=1,max=65535"`
	Environment    string `validate:"oneof=development staging production"`
	ServiceName    string `validate:"required"`
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"min=1,max=65535"`
	User     string `validate:"required"`
	Password string
	Database string `validate:"required"`
	SSLMode  string
	MaxConns int32 `validate:"min=1"`
	MinConns int32 `validate:"min=0"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"min=1,max=65535"`
	Password string
	DB       int
	PoolSize int `validate:"min=1"`
	Timeout  time.Duration
}

// LiveKitConfig holds the media server credentials and room defaults
type LiveKitConfig struct {
	Endpoint        string `validate:"required"`
	APIKey          string `validate:"required"`
	APISecret       string `validate:"required"`
	EmptyTimeout    uint32
	MaxParticipants uint32
	TokenTTL        time.Duration `validate:"min=1m"`
}

// SessionConfig holds the defaults each classroom session starts from
type SessionConfig struct {
	MaxActiveSlots int           `validate:"min=1"`
	DedupWindow    time.Duration `validate:"min=1s"`
	PersistTimeout time.Duration `validate:"min=100ms"`
	JoinWithCamera bool
	JoinWithMic    bool
	ChatTimeFormat string `validate:"required"`
}

// PushConfig selects the push notification provider
type PushConfig struct {
	Provider string `validate:"oneof=log fcm apns"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret         string
	Audience       string
	AccessTokenTTL time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           env.GetInt("PORT", 8085),
			Environment:    env.GetString("ENV", "development"),
			ServiceName:    env.GetString("SERVICE_NAME", "classroom-service"),
			AllowedOrigins: env.GetStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 5432),
			User:     env.GetString("DB_USER", "postgres"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "liveclass"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
			MaxConns: int32(env.GetInt("DB_MAX_CONNS", 25)),
			MinConns: int32(env.GetInt("DB_MIN_CONNS", 5)),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		LiveKit: LiveKitConfig{
			Endpoint:        env.GetString("LIVEKIT_ENDPOINT", "localhost:7880"),
			APIKey:          env.GetStringFromFile("LIVEKIT_API_KEY", ""),
			APISecret:       env.GetStringFromFile("LIVEKIT_API_SECRET", ""),
			EmptyTimeout:    env.GetUint32("LIVEKIT_EMPTY_TIMEOUT", 300),
			MaxParticipants: env.GetUint32("LIVEKIT_MAX_PARTICIPANTS", 100),
			TokenTTL:        env.GetDuration("LIVEKIT_TOKEN_TTL", 4*time.Hour),
		},
		Session: SessionConfig{
			MaxActiveSlots: env.GetInt("SESSION_MAX_ACTIVE_SLOTS", 5),
			DedupWindow:    env.GetDuration("SESSION_DEDUP_WINDOW", 10*time.Second),
			PersistTimeout: env.GetDuration("SESSION_PERSIST_TIMEOUT", 5*time.Second),
			JoinWithCamera: env.GetBool("SESSION_JOIN_WITH_CAMERA", false),
			JoinWithMic:    env.GetBool("SESSION_JOIN_WITH_MIC", false),
			ChatTimeFormat: env.GetString("SESSION_CHAT_TIME_FORMAT", "15:04"),
		},
		Push: PushConfig{
			Provider: env.GetString("PUSH_PROVIDER", "log"),
		},
		JWT: JWTConfig{
			Secret:         env.GetStringFromFile("JWT_SECRET", ""),
			Audience:       env.GetString("JWT_AUDIENCE", "liveclass-api"),
			AccessTokenTTL: env.GetDuration("JWT_ACCESS_TOKEN_TTL", 15*time.Minute),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/classroom.log"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints and the production-only requirements
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Server.Environment == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if c.Push.Provider == "log" {
			return fmt.Errorf("PUSH_PROVIDER=log is not allowed in production")
		}
	}

	return nil
}

// Addr returns host:port for the Redis client
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
