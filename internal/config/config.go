package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Data     DataConfig
	Import   ImportConfig
	AutoSync AutoSyncConfig
	Redis    RedisConfig
	Asynq    AsynqConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DataConfig struct {
	Dir         string
	MediaDir    string
	LibraryFile string
}

type ImportConfig struct {
	DefaultConcurrency  int
	MaxConcurrency      int
	FetchTimeoutMinutes int
	FetcherBinary       string
	RatePerSec          int
}

type AutoSyncConfig struct {
	PollSeconds        int
	MinIntervalMinutes int
}

// RedisConfig is optional: an empty Addr keeps everything in-process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AsynqConfig struct {
	Concurrency int
}

// AuthConfig is optional: an empty Secret disables token checks.
type AuthConfig struct {
	Secret string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("data.dir", "./data")
	viper.SetDefault("data.media_dir", "")
	viper.SetDefault("data.library_file", "library.json")
	viper.SetDefault("import.default_concurrency", 5)
	viper.SetDefault("import.max_concurrency", 10)
	viper.SetDefault("import.fetch_timeout_minutes", 10)
	viper.SetDefault("import.fetcher_binary", "yt-dlp")
	viper.SetDefault("import.rate_per_sec", 2)
	viper.SetDefault("autosync.poll_seconds", 60)
	viper.SetDefault("autosync.min_interval_minutes", 1)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("asynq.concurrency", 10)
	viper.SetDefault("auth.secret", "")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Data: DataConfig{
			Dir:         viper.GetString("data.dir"),
			MediaDir:    viper.GetString("data.media_dir"),
			LibraryFile: viper.GetString("data.library_file"),
		},
		Import: ImportConfig{
			DefaultConcurrency:  viper.GetInt("import.default_concurrency"),
			MaxConcurrency:      viper.GetInt("import.max_concurrency"),
			FetchTimeoutMinutes: viper.GetInt("import.fetch_timeout_minutes"),
			FetcherBinary:       viper.GetString("import.fetcher_binary"),
			RatePerSec:          viper.GetInt("import.rate_per_sec"),
		},
		AutoSync: AutoSyncConfig{
			PollSeconds:        viper.GetInt("autosync.poll_seconds"),
			MinIntervalMinutes: viper.GetInt("autosync.min_interval_minutes"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Asynq: AsynqConfig{
			Concurrency: viper.GetInt("asynq.concurrency"),
		},
		Auth: AuthConfig{
			Secret: viper.GetString("auth.secret"),
		},
	}

	return cfg, nil
}
