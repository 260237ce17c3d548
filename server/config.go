package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 服务配置，可由 YAML 文件加载，命令行参数覆盖
type Config struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RoomCapacity   int           `yaml:"room_capacity"`
	SendQueue      int           `yaml:"send_queue"`
	Log            LogConfig     `yaml:"log"`
	Journal        JournalConfig `yaml:"journal"`
}

type LogConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Console    bool   `yaml:"console"`
}

type JournalConfig struct {
	Dir string `yaml:"dir"` // 为空则不写日志
}

func DefaultConfig() Config {
	return Config{
		Addr:           ":3000",
		AllowedOrigins: []string{"*"},
		RoomCapacity:   DefaultRoomCapacity,
		SendQueue:      256,
		Log: LogConfig{
			File:       "voxelrelay.log",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// LoadConfig path 为空时返回默认配置
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	c.Addr = strings.TrimSpace(c.Addr)
	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.RoomCapacity < 1 {
		return fmt.Errorf("room_capacity must be >= 1, got %d", c.RoomCapacity)
	}
	if c.SendQueue < 1 {
		return fmt.Errorf("send_queue must be >= 1, got %d", c.SendQueue)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// CheckOrigin 跨域策略：列表为空或含 "*" 时放行；没有 Origin 头的请求（非浏览器）放行
func (c Config) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(c.AllowedOrigins) == 0 {
		return true
	}
	origin = strings.TrimRight(strings.ToLower(origin), "/")
	for _, o := range c.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
