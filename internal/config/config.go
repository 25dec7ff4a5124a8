package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Geo       GeoConfig
	Clicks    ClicksConfig
}

type AppConfig struct {
	Port    string
	BaseURL string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Host string
	Port string
}

type AuthConfig struct {
	APIKeys map[string]string // API key -> имя аккаунта (используется как owner id)
}

// RateLimitConfig параметры fixed-window лимитера.
// Store = "memory" хранит счётчики в памяти процесса: эффективный лимит
// умножается на количество инстансов. Для multi-instance деплоя нужен "redis".
type RateLimitConfig struct {
	Window       time.Duration
	GeneralLimit int
	CreateLimit  int
	Store        string // memory | redis
}

type GeoConfig struct {
	APIEndpoint string
	CacheTTL    time.Duration
	Timeout     time.Duration
	MaxPerMin   int // лимит внешнего API (ip-api.com: 45 запросов в минуту)
}

type ClicksConfig struct {
	IPSalt     string
	Workers    int
	BufferSize int
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	cfg.App.Port = viper.GetString("APP_PORT")
	cfg.App.BaseURL = viper.GetString("APP_BASE_URL")
	if cfg.App.BaseURL == "" {
		cfg.App.BaseURL = "http://localhost:" + cfg.App.Port
	}
	cfg.DB.Host = viper.GetString("DB_HOST")
	cfg.DB.Port = viper.GetString("DB_PORT")
	cfg.DB.User = viper.GetString("DB_USER")
	cfg.DB.Password = viper.GetString("DB_PASSWORD")
	cfg.DB.Name = viper.GetString("DB_NAME")
	cfg.Redis.Host = viper.GetString("REDIS_HOST")
	cfg.Redis.Port = viper.GetString("REDIS_PORT")

	// Auth config - parse API keys from comma-separated string
	// Format: key1:name1,key2:name2
	apiKeysRaw := viper.GetString("API_KEYS")
	cfg.Auth.APIKeys = parseAPIKeys(apiKeysRaw)

	// Rate limit config
	cfg.RateLimit.Window = viper.GetDuration("RATE_LIMIT_WINDOW")
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = 15 * time.Minute
	}
	cfg.RateLimit.GeneralLimit = viper.GetInt("RATE_LIMIT_GENERAL")
	if cfg.RateLimit.GeneralLimit == 0 {
		cfg.RateLimit.GeneralLimit = 100
	}
	cfg.RateLimit.CreateLimit = viper.GetInt("RATE_LIMIT_CREATE")
	if cfg.RateLimit.CreateLimit == 0 {
		cfg.RateLimit.CreateLimit = 20
	}
	cfg.RateLimit.Store = viper.GetString("RATE_LIMIT_STORE")
	if cfg.RateLimit.Store == "" {
		cfg.RateLimit.Store = "memory"
	}

	// Geo config
	cfg.Geo.APIEndpoint = viper.GetString("GEO_API_ENDPOINT")
	if cfg.Geo.APIEndpoint == "" {
		cfg.Geo.APIEndpoint = "http://ip-api.com/json"
	}
	cfg.Geo.CacheTTL = viper.GetDuration("GEO_CACHE_TTL")
	if cfg.Geo.CacheTTL == 0 {
		cfg.Geo.CacheTTL = time.Hour
	}
	cfg.Geo.Timeout = viper.GetDuration("GEO_TIMEOUT")
	if cfg.Geo.Timeout == 0 {
		cfg.Geo.Timeout = 2 * time.Second
	}
	cfg.Geo.MaxPerMin = viper.GetInt("GEO_MAX_PER_MIN")
	if cfg.Geo.MaxPerMin == 0 {
		cfg.Geo.MaxPerMin = 45
	}

	// Click processor config
	cfg.Clicks.IPSalt = viper.GetString("IP_SALT")
	if cfg.Clicks.IPSalt == "" {
		cfg.Clicks.IPSalt = "default-salt-change-in-production"
	}
	cfg.Clicks.Workers = viper.GetInt("CLICK_WORKERS")
	if cfg.Clicks.Workers == 0 {
		cfg.Clicks.Workers = 3
	}
	cfg.Clicks.BufferSize = viper.GetInt("CLICK_BUFFER_SIZE")
	if cfg.Clicks.BufferSize == 0 {
		cfg.Clicks.BufferSize = 1000
	}

	return &cfg, nil
}

// parseAPIKeys parses comma-separated API keys in format "key1:name1,key2:name2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if raw == "" {
		return keys
	}

	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return keys
}
