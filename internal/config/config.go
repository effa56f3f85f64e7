package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log        LogConfig       `mapstructure:"log"`
	HTTP       HTTPConfig      `mapstructure:"http"`
	MySQL      DatabaseConfig  `mapstructure:"mysql"`
	ClickHouse DatabaseConfig  `mapstructure:"clickhouse"`
	Redis      RedisConfig     `mapstructure:"redis"`
	Kafka      KafkaConfig     `mapstructure:"kafka"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
	Bot        BotConfig       `mapstructure:"bot"`
	Auth       AuthConfig      `mapstructure:"auth"`
	Platform   PlatformConfig  `mapstructure:"platform"`
	Calls      CallsConfig     `mapstructure:"calls"`
	Media      MediaConfig     `mapstructure:"media"`
	Worker     WorkerConfig    `mapstructure:"worker"`
	APIKeys    []APIKeyConfig  `mapstructure:"api_keys"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

// BotConfig holds the application identity registered with the platform.
type BotConfig struct {
	AppID       string `mapstructure:"app_id"`
	AppSecret   string `mapstructure:"app_secret"`
	DisplayName string `mapstructure:"display_name"`
	TenantID    string `mapstructure:"tenant_id"`
	BaseURL     string `mapstructure:"base_url"`
}

type AuthConfig struct {
	JWKSURL           string        `mapstructure:"jwks_url"`
	Issuers           []string      `mapstructure:"issuers"`
	ClockSkew         time.Duration `mapstructure:"clock_skew"`
	KeysRefresh       time.Duration `mapstructure:"keys_refresh"`
	AllowSharedSecret bool          `mapstructure:"allow_shared_secret"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type PlatformConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	TokenURL  string        `mapstructure:"token_url"`
	Scopes    []string      `mapstructure:"scopes"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type CallsConfig struct {
	PromptDelay    time.Duration `mapstructure:"prompt_delay"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	Retention      time.Duration `mapstructure:"retention"`
	ClaimTTL       time.Duration `mapstructure:"claim_ttl"`
	GroupSubject   string        `mapstructure:"group_subject"`
}

type MediaConfig struct {
	Dir        string `mapstructure:"dir"`
	PromptPath string `mapstructure:"prompt_path"`
}

type WorkerConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	BatchWait time.Duration `mapstructure:"batch_wait"`
}

type APIKeyConfig struct {
	Name string `mapstructure:"name"`
	Key  string `mapstructure:"key"`
	RPS  int    `mapstructure:"rps"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (CALLBOT_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (CALLBOT_BOT_APP_ID, ...)
	v.SetEnvPrefix("CALLBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the call pipeline cannot run without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Bot.AppID) == "" {
		return fmt.Errorf("bot.app_id is required")
	}
	if strings.TrimSpace(c.Bot.AppSecret) == "" {
		return fmt.Errorf("bot.app_secret is required")
	}
	u, err := url.Parse(c.Bot.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("bot.base_url must be an absolute URL, got %q", c.Bot.BaseURL)
	}
	if c.Calls.PromptDelay < 0 {
		return fmt.Errorf("calls.prompt_delay must not be negative")
	}
	// a swept call must still be claimed, or a late redelivery is answered twice
	if c.Calls.ClaimTTL > 0 && c.Calls.ClaimTTL < c.Calls.Retention {
		return fmt.Errorf("calls.claim_ttl (%s) must not be shorter than calls.retention (%s)", c.Calls.ClaimTTL, c.Calls.Retention)
	}
	if c.Auth.JWKSURL == "" && !c.Auth.AllowSharedSecret {
		return fmt.Errorf("auth.jwks_url is required unless auth.allow_shared_secret is set")
	}
	return nil
}

// CallbackURL is the address the platform posts call notifications to.
func (b BotConfig) CallbackURL() string {
	return strings.TrimRight(b.BaseURL, "/") + "/callback"
}

// MediaURL resolves a path under the bot's public base URL.
func (b BotConfig) MediaURL(path string) string {
	return strings.TrimRight(b.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
