package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config 聚合整个网关的配置项。
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Widget    WidgetConfig    `toml:"widget"`
	Storage   StorageConfig   `toml:"storage"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Log       LogConfig       `toml:"log"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// WidgetConfig 描述聊天组件核心的配置。
type WidgetConfig struct {
	BackendURL     string        `toml:"backend_url"`
	FrontendURL    string        `toml:"frontend_url"`
	FrontendDir    string        `toml:"frontend_dir"`
	AvatarPath     string        `toml:"avatar_path"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	MaxAttempts    int           `toml:"max_attempts"`
	RetryDelay     time.Duration `toml:"retry_delay"`
	FallbackDelay  time.Duration `toml:"fallback_delay"`
	MaxBlockLen    int           `toml:"max_block_len"`
}

// AvatarURL 返回机器人头像地址：配置了 FRONTEND_URL 时使用绝对地址，否则走本服务的 /widget/ 静态目录。
func (c WidgetConfig) AvatarURL() string {
	path := strings.TrimLeft(c.AvatarPath, "/")
	if c.FrontendURL != "" {
		return strings.TrimRight(c.FrontendURL, "/") + "/" + path
	}
	return "/widget/" + path
}

// StorageConfig 描述按标签页持久化会话的存储驱动。
type StorageConfig struct {
	Driver        string        `toml:"driver"`
	SQLitePath    string        `toml:"sqlite_path"`
	RedisAddr     string        `toml:"redis_addr"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	TTL           time.Duration `toml:"ttl"`
}

// RateLimitConfig 限制每个标签页的发送频率。
type RateLimitConfig struct {
	PerSecond float64 `toml:"per_second"`
	Burst     int     `toml:"burst"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default 返回内置默认值。
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Widget: WidgetConfig{
			AvatarPath:     "img/bot-avatar.png",
			RequestTimeout: 30 * time.Second,
			MaxAttempts:    3,
			RetryDelay:     time.Second,
			FallbackDelay:  8 * time.Second,
			MaxBlockLen:    500,
		},
		Storage: StorageConfig{
			Driver:     "memory",
			SQLitePath: "widget.db",
		},
		RateLimit: RateLimitConfig{PerSecond: 1, Burst: 3},
		Log:       LogConfig{Level: "info", Format: "console"},
	}
}

// Load 先读取 WIDGET_CONFIG 指定的 TOML 文件（可选），再用环境变量覆盖。
func Load() (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("WIDGET_CONFIG")); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	addr, err := parseAddr(os.Getenv("PORT"), cfg.Server.Addr)
	if err != nil {
		return err
	}
	cfg.Server.Addr = addr

	w := &cfg.Widget
	w.BackendURL = getEnvOrDefault("BACKEND_URL", w.BackendURL)
	w.FrontendURL = getEnvOrDefault("FRONTEND_URL", w.FrontendURL)
	w.FrontendDir = getEnvOrDefault("FRONTEND_DIR", w.FrontendDir)
	w.AvatarPath = getEnvOrDefault("AVATAR_PATH", w.AvatarPath)
	if err := overrideDuration("WIDGET_REQUEST_TIMEOUT", &w.RequestTimeout); err != nil {
		return err
	}
	if err := overrideInt("WIDGET_MAX_ATTEMPTS", &w.MaxAttempts); err != nil {
		return err
	}
	if err := overrideDuration("WIDGET_RETRY_DELAY", &w.RetryDelay); err != nil {
		return err
	}
	if err := overrideDuration("WIDGET_FALLBACK_DELAY", &w.FallbackDelay); err != nil {
		return err
	}
	if err := overrideInt("WIDGET_MAX_BLOCK_LEN", &w.MaxBlockLen); err != nil {
		return err
	}

	s := &cfg.Storage
	s.Driver = strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", s.Driver))
	s.SQLitePath = getEnvOrDefault("SQLITE_PATH", s.SQLitePath)
	s.RedisAddr = getEnvOrDefault("REDIS_ADDR", s.RedisAddr)
	s.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", s.RedisPassword)
	if err := overrideInt("REDIS_DB", &s.RedisDB); err != nil {
		return err
	}
	if err := overrideDuration("STORAGE_TTL", &s.TTL); err != nil {
		return err
	}

	perSecond, err := parseOptionalFloatEnv("RATE_LIMIT_PER_SECOND")
	if err != nil {
		return err
	}
	if perSecond != nil {
		cfg.RateLimit.PerSecond = *perSecond
	}
	if err := overrideInt("RATE_LIMIT_BURST", &cfg.RateLimit.Burst); err != nil {
		return err
	}

	cfg.Log.Level = strings.ToLower(getEnvOrDefault("LOG_LEVEL", cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(getEnvOrDefault("LOG_FORMAT", cfg.Log.Format))
	return nil
}

func (c *Config) validate() error {
	if c.Widget.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if c.Widget.MaxAttempts < 1 {
		return fmt.Errorf("invalid WIDGET_MAX_ATTEMPTS value %d: must be at least 1", c.Widget.MaxAttempts)
	}
	if c.Widget.MaxBlockLen < 1 {
		return fmt.Errorf("invalid WIDGET_MAX_BLOCK_LEN value %d: must be positive", c.Widget.MaxBlockLen)
	}
	switch c.Storage.Driver {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER value %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "redis" && c.Storage.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required for the redis storage driver")
	}
	return nil
}

// parseAddr 解析服务器监听地址。
func parseAddr(raw, fallback string) (string, error) {
	port := strings.TrimSpace(raw)
	if port == "" {
		return fallback, nil
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func overrideInt(key string, dst *int) error {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return err
	}
	if val != nil {
		*dst = *val
	}
	return nil
}

func overrideDuration(key string, dst *time.Duration) error {
	val, err := parseOptionalDurationEnv(key)
	if err != nil {
		return err
	}
	if val != nil {
		*dst = *val
	}
	return nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseOptionalDurationEnv 支持 "8s" 这类写法，纯数字按毫秒处理。
func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	if ms, err := strconv.Atoi(value); err == nil {
		d := time.Duration(ms) * time.Millisecond
		return &d, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &d, nil
}
