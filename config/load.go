package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"rate-desk-go/infrastructure/logger"
	"rate-desk-go/negotiation"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string             `yaml:"env"`
	Server      ServerConfig       `yaml:"server"`
	FMCSA       FMCSAConfig        `yaml:"fmcsa"`
	Loads       LoadsConfig        `yaml:"loads"`
	Journal     JournalConfig      `yaml:"journal"`
	Watchdog    WatchdogConfig     `yaml:"watchdog"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Logger      logger.Config      `yaml:"logger"`
	Negotiation negotiation.Policy `yaml:"negotiation"`
}

// ServerConfig HTTP 服务配置。APIKey 校验所有业务端点的 x-api-key 头。
type ServerConfig struct {
	Addr   string `yaml:"addr"`
	APIKey string `yaml:"apiKey"`
}

// FMCSAConfig 承运资质核验上游配置。Mock 开启后不出外网。
type FMCSAConfig struct {
	BaseURL string `yaml:"baseURL"`
	WebKey  string `yaml:"webKey"`
	Mock    bool   `yaml:"mock"`
}

type LoadsConfig struct {
	CSVPath string `yaml:"csvPath"`
}

type JournalConfig struct {
	DBPath    string `yaml:"dbPath"`
	AuditPath string `yaml:"auditPath"` // 空则关闭 JSONL 审计
}

type WatchdogConfig struct {
	Enabled     bool `yaml:"enabled"`
	IntervalSec int  `yaml:"intervalSec"`
	TTLSec      int  `yaml:"ttlSec"`
}

// Interval 扫描间隔。
func (w WatchdogConfig) Interval() time.Duration { return time.Duration(w.IntervalSec) * time.Second }

// TTL 无活动判弃阈值。
func (w WatchdogConfig) TTL() time.Duration { return time.Duration(w.TTLSec) * time.Second }

type MetricsConfig struct {
	Addr string `yaml:"addr"` // 空则不起指标端口
}

// Default 返回带默认值的配置；Load 在其上覆盖文件内容。
func Default() AppConfig {
	return AppConfig{
		Env:    "dev",
		Server: ServerConfig{Addr: ":8000"},
		FMCSA:  FMCSAConfig{BaseURL: "https://mobile.fmcsa.dot.gov/qc/services"},
		Loads:  LoadsConfig{CSVPath: "data/loads.csv"},
		Journal: JournalConfig{
			DBPath:    "data/events.db",
			AuditPath: "data/events.jsonl",
		},
		Watchdog: WatchdogConfig{
			Enabled:     true,
			IntervalSec: 60,
			TTLSec:      1800,
		},
		Logger:      logger.DefaultConfig(),
		Negotiation: negotiation.DefaultPolicy(),
	}
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("RD_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("RD_FMCSA_WEB_KEY"); v != "" {
		cfg.FMCSA.WebKey = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if cfg.Loads.CSVPath == "" {
		return errors.New("loads.csvPath is required")
	}
	if cfg.Journal.DBPath == "" {
		return errors.New("journal.dbPath is required")
	}
	if !cfg.FMCSA.Mock && cfg.FMCSA.WebKey == "" {
		return errors.New("fmcsa.webKey is required (or env override, or fmcsa.mock)")
	}
	if cfg.Watchdog.Enabled {
		if cfg.Watchdog.IntervalSec <= 0 {
			return errors.New("watchdog.intervalSec must be > 0")
		}
		if cfg.Watchdog.TTLSec <= 0 {
			return errors.New("watchdog.ttlSec must be > 0")
		}
	}
	if err := cfg.Negotiation.Validate(); err != nil {
		return fmt.Errorf("negotiation: %w", err)
	}
	return nil
}
