package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cfg 是一个全局变量，用于存储所有应用程序的配置
var Cfg *Config

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode    string     `mapstructure:"mode"`
	Address string     `mapstructure:"address"`
	Cors    CorsConfig `mapstructure:"cors"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// DatabaseConfig 定义了数据库和缓存相关的配置
type DatabaseConfig struct {
	// Driver 取值为 sqlite 或 postgres
	Driver string      `mapstructure:"driver"`
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggerConfig 定义了日志输出格式与级别
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig 描述了与上游身份层之间的边界约定。
// 本服务不做认证，只读取上游已解析好的用户ID。
type AuthConfig struct {
	UserHeader string `mapstructure:"userHeader"`
	AdminToken string `mapstructure:"adminToken"`
}

// ScoringConfig 定义了排行榜缓存的行为
type ScoringConfig struct {
	CacheTTL     time.Duration `mapstructure:"cacheTTL"`
	WarmInterval time.Duration `mapstructure:"warmInterval"`
}

// RateLimitConfig 定义了每个用户提交Flag的速率限制
type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"perSecond"`
	Burst     int     `mapstructure:"burst"`
}

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("database.driver", DriverSqlite)
	v.SetDefault("database.dsn", "flags.db")
	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("auth.userHeader", "X-User-ID")
	v.SetDefault("auth.adminToken", "")
	v.SetDefault("scoring.cacheTTL", 30*time.Second)
	v.SetDefault("scoring.warmInterval", 10*time.Second)
	v.SetDefault("rateLimit.perSecond", 1.0)
	v.SetDefault("rateLimit.burst", 5)
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 它会在指定的路径中查找名为 config.yaml 的文件，找不到时只使用默认值和环境变量
func LoadConfig() (*Config, error) {
	// 0. 如果存在 .env 文件，先把其中的变量注入到进程环境中
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("无法加载 .env 文件: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// 1. 设置配置文件名和类型
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// 2. 添加配置文件搜索路径
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// 3. 允许通过环境变量覆盖配置，例如 SERVER_ADDRESS=:9090
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	// 5. 将配置反序列化到结构体中
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 6. 将加载的配置赋值给全局变量
	Cfg = &cfg

	return Cfg, nil
}

// Validate 检查配置中无法在运行时补救的错误
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSqlite, DriverPostgres:
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn 不能为空")
	}
	if strings.TrimSpace(c.Auth.UserHeader) == "" {
		return errors.New("auth.userHeader 不能为空")
	}
	// 预热间隔必须短于快照的存活时间
	if c.Scoring.CacheTTL <= 0 || c.Scoring.WarmInterval <= 0 {
		return errors.New("scoring.cacheTTL 与 scoring.warmInterval 必须为正数")
	}
	if c.Scoring.WarmInterval >= c.Scoring.CacheTTL {
		return fmt.Errorf("scoring.warmInterval (%s) 必须小于 scoring.cacheTTL (%s)",
			c.Scoring.WarmInterval, c.Scoring.CacheTTL)
	}
	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rateLimit.perSecond 与 rateLimit.burst 必须为正数")
	}
	return nil
}
