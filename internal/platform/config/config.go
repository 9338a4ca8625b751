package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql | memory
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

type AuthConfig struct {
	// IdP（外部認証）が発行する HS256 トークンの検証鍵
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type KioskConfig struct {
	// bcrypt ハッシュ。平文の端末キーは設定に置かない
	KeyHash  string        `yaml:"key_hash"`
	Debounce time.Duration `yaml:"debounce"`
}

type AppConfig struct {
	BaseURL            string        `yaml:"base_url"`
	Timezone           string        `yaml:"timezone"`
	RegistrationTTL    time.Duration `yaml:"registration_ttl"`
	RollingWindowDays  int           `yaml:"rolling_window_days"`
	GenerationBaseYear int           `yaml:"generation_base_year"`
	MaxGrade           int           `yaml:"max_grade"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type JobsConfig struct {
	// "HH:MM"（ローカル時刻）。空なら定時一斉退出は無効
	DailyLogoutAt string `yaml:"daily_logout_at"`
}

type Config struct {
	Version     string         `yaml:"version"`
	Mode        string         `yaml:"mode"`
	Listen      string         `yaml:"listen"`
	DB          DatabaseConfig `yaml:"database"`
	Certificate Certs          `yaml:"certificate"`
	Redis       RedisConfig    `yaml:"redis"`
	Auth        AuthConfig     `yaml:"auth"`
	Kiosk       KioskConfig    `yaml:"kiosk"`
	App         AppConfig      `yaml:"app"`
	Log         LogConfig      `yaml:"log"`
	Jobs        JobsConfig     `yaml:"jobs"`
}

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	return Parse(buf)
}

func Parse(buf []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8443"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "mysql"
	}
	if c.Mode == "demo" {
		c.DB.Driver = "memory"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "presence:events"
	}
	if c.Kiosk.Debounce == 0 {
		c.Kiosk.Debounce = 3 * time.Second
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "Asia/Tokyo"
	}
	if c.App.RegistrationTTL == 0 {
		c.App.RegistrationTTL = 30 * time.Minute
	}
	if c.App.RollingWindowDays == 0 {
		c.App.RollingWindowDays = 30
	}
	if c.App.MaxGrade == 0 {
		c.App.MaxGrade = 3
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "json"
	}
}

func (c *Config) validate() error {
	switch c.Mode {
	case "dev", "release", "demo":
	default:
		return fmt.Errorf("mode は dev|release|demo のいずれか: %q", c.Mode)
	}
	switch c.DB.Driver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("database.driver は mysql|memory のいずれか: %q", c.DB.Driver)
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("app.timezone が不正: %w", err)
	}
	if c.Jobs.DailyLogoutAt != "" {
		if _, err := time.Parse("15:04", c.Jobs.DailyLogoutAt); err != nil {
			return fmt.Errorf("jobs.daily_logout_at は HH:MM: %w", err)
		}
	}
	return nil
}

// Location: validate 済みなので失敗しない
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
