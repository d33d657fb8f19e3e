package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Sync     SyncConfig
}

type ServerConfig struct {
	Addr         string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

// SyncConfig carries the coordination knobs. The lock TTL and the presence
// window are independent values; client cadences must stay well under the
// lock TTL so a single missed refresh leaves margin before expiry.
type SyncConfig struct {
	LockTTL        time.Duration
	PresenceWindow time.Duration
	HeartbeatEvery time.Duration
	PollEvery      time.Duration
	RefreshEvery   time.Duration
	SaveDebounce   time.Duration
}

// Load reads configuration from environment variables and an optional .env
// file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_ADDR", ":8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "require")
	viper.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	viper.SetDefault("LOCK_TTL", "30s")
	viper.SetDefault("PRESENCE_WINDOW", "30s")
	viper.SetDefault("HEARTBEAT_EVERY", "2s")
	viper.SetDefault("POLL_EVERY", "2s")
	viper.SetDefault("REFRESH_EVERY", "5s")
	viper.SetDefault("SAVE_DEBOUNCE", "1200ms")

	cfg := &Config{
		Server: ServerConfig{
			Addr:         viper.GetString("SERVER_ADDR"),
			LogLevel:     viper.GetString("LOG_LEVEL"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			Name:     viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		Sync: SyncConfig{
			LockTTL:        viper.GetDuration("LOCK_TTL"),
			PresenceWindow: viper.GetDuration("PRESENCE_WINDOW"),
			HeartbeatEvery: viper.GetDuration("HEARTBEAT_EVERY"),
			PollEvery:      viper.GetDuration("POLL_EVERY"),
			RefreshEvery:   viper.GetDuration("REFRESH_EVERY"),
			SaveDebounce:   viper.GetDuration("SAVE_DEBOUNCE"),
		},
	}

	return cfg, nil
}
