package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Timeline TimelineConfig `mapstructure:"timeline"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
	// RateLimit 每秒允许的请求数（令牌桶），Burst 为桶容量
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres / sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// QueueConfig 事件通道（redis stream）配置；默认与缓存同实例，可独立部署
type QueueConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Stream    string        `mapstructure:"stream"`
	Group     string        `mapstructure:"group"`
	Block     time.Duration `mapstructure:"block"`     // long-poll wait per fetch
	MinIdle   time.Duration `mapstructure:"min_idle"`  // reclaim pending entries idle longer than this
	BatchSize int           `mapstructure:"batch_size"`
	Consumers int           `mapstructure:"consumers"`
}

type TimelineConfig struct {
	CacheCapacity      int `mapstructure:"cache_capacity"`
	CelebrityThreshold int `mapstructure:"celebrity_threshold"`
	CelebrityPullLimit int `mapstructure:"celebrity_pull_limit"`
	DefaultPageSize    int `mapstructure:"default_page_size"`
	MaxPageSize        int `mapstructure:"max_page_size"`
}

type AuthConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret"`
	TokenExpiration time.Duration `mapstructure:"token_expiration"`
}

type LogConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// Load 读取 config.yaml 并应用 PULSE_ 前缀环境变量覆盖
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// 没有配置文件时走默认值 + 环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Queue.Addr == "" {
		cfg.Queue.Addr = cfg.Redis.Addr
		cfg.Queue.Password = cfg.Redis.Password
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.rate_burst", 200)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=pulse port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 2*time.Second)
	v.SetDefault("redis.write_timeout", 2*time.Second)

	v.SetDefault("queue.db", 0)
	v.SetDefault("queue.stream", "pulse:events:posts")
	v.SetDefault("queue.group", "fanout")
	v.SetDefault("queue.block", 20*time.Second)
	v.SetDefault("queue.min_idle", time.Minute)
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.consumers", 4)

	v.SetDefault("timeline.cache_capacity", 1000)
	v.SetDefault("timeline.celebrity_threshold", 100000)
	v.SetDefault("timeline.celebrity_pull_limit", 20)
	v.SetDefault("timeline.default_page_size", 50)
	v.SetDefault("timeline.max_page_size", 100)

	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.token_expiration", 24*time.Hour)

	v.SetDefault("log.mode", "development")
	v.SetDefault("log.level", "info")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
}
