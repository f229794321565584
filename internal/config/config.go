package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

// global configuration structure
type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Cleaner    CleanerConfig    `mapstructure:"cleaner"`
}

// Telegram bot configuration
type BotConfig struct {
	Token   string        `mapstructure:"token"`
	GroupID int64         `mapstructure:"group_id"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// webhook server configuration
type WebhookConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	ListenPort string `mapstructure:"listen_port"`
	DebugPath  string `mapstructure:"debug_path"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
}

// logging configuration
type LoggerConfig struct {
	Directory string            `mapstructure:"directory"`
	Rotation  LogRotationConfig `mapstructure:"rotation"`
	Level     string            `mapstructure:"level"`
}

// log rotation settings
type LogRotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Charset  string `mapstructure:"charset"`
}

// optional redis cache used to accelerate restriction status lookups
type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	StatusTTLSecs int    `mapstructure:"status_ttl_secs"`
}

// EscalationStep maps a cumulative active-warning count to an action.
type EscalationStep struct {
	Count  int    `mapstructure:"count"`
	Action string `mapstructure:"action"`
}

// moderation rule settings
type ModerationConfig struct {
	FloodLimit        int              `mapstructure:"flood_limit"`
	FloodWindowSecs   int              `mapstructure:"flood_window_secs"`
	WarningExpiryDays int              `mapstructure:"warning_expiry_days"`
	MuteDurationMins  int              `mapstructure:"mute_duration_mins"`
	Escalation        []EscalationStep `mapstructure:"escalation"`
	AllowedDomains    []string         `mapstructure:"allowed_domains"`
	ExtraBannedTerms  []string         `mapstructure:"extra_banned_terms"`
	CapsRatio         float64          `mapstructure:"caps_ratio"`
	CapsMinLetters    int              `mapstructure:"caps_min_letters"`
	MaxRepeatedChars  int              `mapstructure:"max_repeated_chars"`
	MaxPunctuationRun int              `mapstructure:"max_punctuation_run"`
	MaxEmojiCount     int              `mapstructure:"max_emoji_count"`
}

// ephemeral message cleanup settings
type CleanerConfig struct {
	CommandDeleteSecs int `mapstructure:"command_delete_secs"`
	BotDeleteSecs     int `mapstructure:"bot_delete_secs"`
	TrackerCeiling    int `mapstructure:"tracker_ceiling"`
	DedupCeiling      int `mapstructure:"dedup_ceiling"`
	SweepIntervalSecs int `mapstructure:"sweep_interval_secs"`
	SweepGraceSecs    int `mapstructure:"sweep_grace_secs"`
	PurgeRatePerSec   int `mapstructure:"purge_rate_per_sec"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	log.Printf("Using config file: %s", v.ConfigFileUsed())

	// Unmarshal configuration
	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		log.Fatal("Configuration not initialized, call Load() first")
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.group_id", -1)
	v.SetDefault("bot.webhook.listen_port", "8443")
	v.SetDefault("bot.webhook.debug_path", "/debug")
	v.SetDefault("bot.webhook.cert_file", "")
	v.SetDefault("bot.webhook.key_file", "")

	v.SetDefault("logger.directory", "logs")
	v.SetDefault("logger.rotation.max_size", 10)
	v.SetDefault("logger.rotation.max_backups", 30)
	v.SetDefault("logger.rotation.max_age", 90)
	v.SetDefault("logger.rotation.compress", true)
	v.SetDefault("logger.level", "INFO")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.charset", "utf8mb4")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.status_ttl_secs", 60)

	v.SetDefault("moderation.flood_limit", 5)
	v.SetDefault("moderation.flood_window_secs", 10)
	v.SetDefault("moderation.warning_expiry_days", 7)
	v.SetDefault("moderation.mute_duration_mins", 1440)
	v.SetDefault("moderation.escalation", []map[string]interface{}{
		{"count": 1, "action": "none"},
		{"count": 2, "action": "mute"},
		{"count": 3, "action": "ban"},
	})
	v.SetDefault("moderation.caps_ratio", 0.7)
	v.SetDefault("moderation.caps_min_letters", 10)
	v.SetDefault("moderation.max_repeated_chars", 6)
	v.SetDefault("moderation.max_punctuation_run", 4)
	v.SetDefault("moderation.max_emoji_count", 8)

	v.SetDefault("cleaner.command_delete_secs", 30)
	v.SetDefault("cleaner.bot_delete_secs", 120)
	v.SetDefault("cleaner.tracker_ceiling", 50)
	v.SetDefault("cleaner.dedup_ceiling", 4096)
	v.SetDefault("cleaner.sweep_interval_secs", 300)
	v.SetDefault("cleaner.sweep_grace_secs", 120)
	v.SetDefault("cleaner.purge_rate_per_sec", 10)
}
