package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"ramadan-companion/internal/kvstore"
	"ramadan-companion/internal/logging"
	"ramadan-companion/internal/ramadan"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Location  LocationConfig  `mapstructure:"location"`
	KV        kvstore.Config  `mapstructure:"kv"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Prayer    PrayerConfig    `mapstructure:"prayer"`
	Ramadan   ramadan.Config  `mapstructure:"ramadan"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Database  DatabaseConfig  `mapstructure:"database"`
	API       APIConfig       `mapstructure:"api"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// LocationConfig controls how coordinates are obtained and interpreted.
type LocationConfig struct {
	Provider          string        `mapstructure:"provider"`
	ZeroLatitudeUnset bool          `mapstructure:"zero_latitude_unset"`
	RefreshOnStart    bool          `mapstructure:"refresh_on_start"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	Static            StaticConfig  `mapstructure:"static"`
	IPAPI             IPAPIConfig   `mapstructure:"ipapi"`
	FallbackLatitude  float64       `mapstructure:"fallback_latitude"`
	FallbackLongitude float64       `mapstructure:"fallback_longitude"`
}

// StaticConfig pins the device position.
type StaticConfig struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

// IPAPIConfig configures IP based geolocation.
type IPAPIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SchedulerConfig governs the periodic check.
type SchedulerConfig struct {
	JobName         string        `mapstructure:"job_name"`
	Interval        time.Duration `mapstructure:"interval"`
	AlignToStart    bool          `mapstructure:"align_to_start"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunImmediately  bool          `mapstructure:"run_immediately"`
	ExistingPolicy  string        `mapstructure:"existing_policy"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// PrayerConfig controls how prayer times are reckoned.
type PrayerConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	OncePerDay bool           `mapstructure:"once_per_day"`
	Log        LogSinkConfig  `mapstructure:"log"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
	MQTT       MQTTConfig     `mapstructure:"mqtt"`
}

// LogSinkConfig toggles the log sink.
type LogSinkConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MQTTConfig 描述 MQTT 推送参数。
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	QoS            int           `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	Retention       time.Duration `mapstructure:"retention"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	Burst           int           `mapstructure:"burst"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Dir    string `mapstructure:"dir"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RAMADAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ramadan-companion")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("location.provider", "ip")
	v.SetDefault("location.zero_latitude_unset", true)
	v.SetDefault("location.refresh_on_start", true)
	v.SetDefault("location.refresh_interval", "6h")
	v.SetDefault("location.ipapi.base_url", "http://ip-api.com")
	v.SetDefault("location.ipapi.request_timeout", "10s")
	v.SetDefault("location.ipapi.user_agent", "")
	v.SetDefault("location.fallback_latitude", 16.8661)
	v.SetDefault("location.fallback_longitude", 96.1951)

	v.SetDefault("kv.backend", "badger")
	v.SetDefault("kv.badger.path", "data/kv")
	v.SetDefault("kv.badger.sync_writes", true)
	v.SetDefault("kv.redis.addr", "localhost:6379")
	v.SetDefault("kv.redis.prefix", "ramadan:")
	v.SetDefault("kv.redis.timeout", "3s")

	v.SetDefault("scheduler.job_name", "PrayerNotificationWork")
	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_start", false)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_immediately", true)
	v.SetDefault("scheduler.existing_policy", "keep")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x52414d44))

	v.SetDefault("prayer.timezone", "Local")

	v.SetDefault("ramadan.days", 30)
	v.SetDefault("ramadan.sehri_offset", "30m")
	v.SetDefault("ramadan.card_sehri_offset", "10m")
	v.SetDefault("ramadan.calendar", "umm_al_qura")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.once_per_day", false)
	v.SetDefault("alerting.log.enabled", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.request_timeout", "10s")
	v.SetDefault("alerting.mqtt.enabled", false)
	v.SetDefault("alerting.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("alerting.mqtt.client_id", "ramadan-companion")
	v.SetDefault("alerting.mqtt.topic_prefix", "ramadan/notifications")
	v.SetDefault("alerting.mqtt.qos", 1)
	v.SetDefault("alerting.mqtt.connect_timeout", "10s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.retention", "720h")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.burst", 10)
	v.SetDefault("api.read_timeout", "10s")
	v.SetDefault("api.write_timeout", "10s")
	v.SetDefault("api.shutdown_timeout", "5s")

	v.SetDefault("export.dir", "exports")
	v.SetDefault("export.width", 1280)
	v.SetDefault("export.height", 640)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.JobName == "" {
		return fmt.Errorf("scheduler.job_name must be set")
	}
	switch c.Scheduler.ExistingPolicy {
	case "keep", "replace":
	default:
		return fmt.Errorf("scheduler.existing_policy must be keep or replace")
	}
	switch strings.ToLower(c.Location.Provider) {
	case "ip", "static", "none":
	default:
		return fmt.Errorf("location.provider must be ip, static or none")
	}
	if c.Location.FallbackLatitude < -90 || c.Location.FallbackLatitude > 90 {
		return fmt.Errorf("location.fallback_latitude out of range")
	}
	if c.Location.FallbackLongitude < -180 || c.Location.FallbackLongitude > 180 {
		return fmt.Errorf("location.fallback_longitude out of range")
	}
	switch strings.ToLower(c.KV.Backend) {
	case "badger", "redis", "memory":
	default:
		return fmt.Errorf("kv.backend must be badger, redis or memory")
	}
	if _, err := c.TimeLocation(); err != nil {
		return err
	}
	if c.Ramadan.Days <= 0 {
		return fmt.Errorf("ramadan.days must be greater than zero")
	}
	if c.Ramadan.SehriOffset < 0 || c.Ramadan.CardSehriOffset < 0 {
		return fmt.Errorf("ramadan sehri offsets cannot be negative")
	}
	if c.Ramadan.StartDate != "" {
		if _, err := time.Parse(time.DateOnly, c.Ramadan.StartDate); err != nil {
			return fmt.Errorf("ramadan.start_date must be YYYY-MM-DD: %w", err)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.MQTT.Enabled {
		if c.Alerting.MQTT.Broker == "" {
			return fmt.Errorf("alerting.mqtt.broker 必须配置")
		}
		if c.Alerting.MQTT.QoS < 0 || c.Alerting.MQTT.QoS > 2 {
			return fmt.Errorf("alerting.mqtt.qos must be 0, 1 or 2")
		}
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when database.enabled")
	}
	if c.API.Enabled {
		if c.API.Addr == "" {
			return fmt.Errorf("api.addr must be set")
		}
		if c.API.RateLimit <= 0 || c.API.Burst <= 0 {
			return fmt.Errorf("api.rate_limit and api.burst must be greater than zero")
		}
	}
	if c.Export.Width <= 0 || c.Export.Height <= 0 {
		return fmt.Errorf("export.width and export.height must be greater than zero")
	}
	return nil
}

// TimeLocation resolves prayer.timezone. "Local" and "" mean the host zone.
func (c *Config) TimeLocation() (*time.Location, error) {
	switch c.Prayer.Timezone {
	case "", "Local", "local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Prayer.Timezone)
	if err != nil {
		return nil, fmt.Errorf("prayer.timezone: %w", err)
	}
	return loc, nil
}
