package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"energy-desk/internal/logging"
	"energy-desk/internal/regime"
)

// Threshold store backends.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Config materialises application configuration.
type Config struct {
	App                  AppConfig         `mapstructure:"app"`
	Logging              logging.Config    `mapstructure:"logging"`
	Database             DatabaseConfig    `mapstructure:"database"`
	Scheduler            SchedulerConfig   `mapstructure:"scheduler"`
	Market               MarketConfig      `mapstructure:"market"`
	Calibration          CalibrationConfig `mapstructure:"calibration"`
	VolatilityThresholds regime.Thresholds `mapstructure:"volatility_thresholds"`
	Thresholds           ThresholdsConfig  `mapstructure:"thresholds"`
	News                 NewsConfig        `mapstructure:"news"`
	Inference            InferenceConfig   `mapstructure:"inference"`
	Alerting             AlertingConfig    `mapstructure:"alerting"`
	Export               ExportConfig      `mapstructure:"export"`
	Metrics              MetricsConfig     `mapstructure:"metrics"`

	// Source is the config file actually read, empty when running on
	// defaults and environment only.
	Source string `mapstructure:"-"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs the refresh and recalibration cadence.
type SchedulerConfig struct {
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	CalibrateInterval time.Duration `mapstructure:"calibrate_interval"`
	AlignToInterval   bool          `mapstructure:"align_to_interval"`
	AdvisoryLockKey   int64         `mapstructure:"advisory_lock_key"`
	StartupDelay      time.Duration `mapstructure:"startup_delay"`
}

// MarketConfig selects instruments and the price provider.
type MarketConfig struct {
	PrimarySymbol   string        `mapstructure:"primary_symbol"`
	SecondarySymbol string        `mapstructure:"secondary_symbol"`
	HistoryRange    string        `mapstructure:"history_range"`
	LiveRange       string        `mapstructure:"live_range"`
	BarInterval     string        `mapstructure:"bar_interval"`
	BaseURL         string        `mapstructure:"base_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"`
	MaxRetries      uint64        `mapstructure:"max_retries"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// CalibrationConfig tunes threshold calibration and trend detection.
type CalibrationConfig struct {
	RecentWindow time.Duration `mapstructure:"recent_window"`
	Percentile   float64       `mapstructure:"percentile"`
	MinPoints    int           `mapstructure:"min_points"`
	TrendWindow  int           `mapstructure:"trend_window"`
	RSIPeriod    int           `mapstructure:"rsi_period"`
}

// Options converts the section into calibration options.
func (c CalibrationConfig) Options() regime.Options {
	return regime.Options{
		RecentWindow: c.RecentWindow,
		Percentile:   c.Percentile,
		MinPoints:    c.MinPoints,
	}
}

// ThresholdsConfig selects where calibrated thresholds are persisted.
type ThresholdsConfig struct {
	Store string `mapstructure:"store"`
	Path  string `mapstructure:"path"`
}

// NewsConfig configures the NewsAPI feed.
type NewsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Topic          string        `mapstructure:"topic"`
	Language       string        `mapstructure:"language"`
	PageSize       int           `mapstructure:"page_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
}

// InferenceConfig configures the text to signal model.
type InferenceConfig struct {
	Provider        string        `mapstructure:"provider"`
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int64         `mapstructure:"max_tokens"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
	ChartWidth    int `mapstructure:"chart_width"`
	ChartHeight   int `mapstructure:"chart_height"`
}

// MetricsConfig exposes Prometheus metrics while the service runs.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENERGYDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindSecrets(v); err != nil {
		return nil, err
	}

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
	cfg.Source = v.ConfigFileUsed()

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

// bindSecrets lets the usual provider variables from a .env file populate
// keys alongside the prefixed names.
func bindSecrets(v *viper.Viper) error {
	bindings := map[string][]string{
		"news.api_key":                {"ENERGYDESK_NEWS_API_KEY", "NEWS_API_KEY"},
		"inference.api_key":           {"ENERGYDESK_INFERENCE_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY"},
		"database.dsn":                {"ENERGYDESK_DATABASE_DSN", "DATABASE_URL"},
		"alerting.telegram.bot_token": {"ENERGYDESK_ALERTING_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"},
		"alerting.telegram.chat_id":   {"ENERGYDESK_ALERTING_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "energydesk")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("scheduler.refresh_interval", "15m")
	v.SetDefault("scheduler.calibrate_interval", "24h")
	v.SetDefault("scheduler.align_to_interval", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x656e6467))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("market.primary_symbol", "NG=F")
	v.SetDefault("market.secondary_symbol", "CL=F")
	v.SetDefault("market.history_range", "5y")
	v.SetDefault("market.live_range", "2y")
	v.SetDefault("market.bar_interval", "1d")
	v.SetDefault("market.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("market.request_timeout", "15s")
	v.SetDefault("market.requests_per_sec", 2.0)
	v.SetDefault("market.max_retries", 3)
	v.SetDefault("market.user_agent", "")

	v.SetDefault("calibration.recent_window", regime.DefaultRecentWindow.String())
	v.SetDefault("calibration.percentile", regime.DefaultPercentile)
	v.SetDefault("calibration.min_points", regime.DefaultMinPoints)
	v.SetDefault("calibration.trend_window", regime.DefaultTrendWindow)
	v.SetDefault("calibration.rsi_period", 14)

	v.SetDefault("volatility_thresholds.noise", 0.0)
	v.SetDefault("volatility_thresholds.high", 0.0)
	v.SetDefault("volatility_thresholds.critical", 0.0)

	v.SetDefault("thresholds.store", StoreFile)
	v.SetDefault("thresholds.path", "")

	v.SetDefault("news.enabled", true)
	v.SetDefault("news.base_url", "https://newsapi.org")
	v.SetDefault("news.topic", "natural gas")
	v.SetDefault("news.language", "en")
	v.SetDefault("news.page_size", 5)
	v.SetDefault("news.request_timeout", "15s")
	v.SetDefault("news.requests_per_sec", 1.0)

	v.SetDefault("inference.provider", "anthropic")
	v.SetDefault("inference.model", "")
	v.SetDefault("inference.base_url", "")
	v.SetDefault("inference.timeout", "60s")
	v.SetDefault("inference.temperature", 0.0)
	v.SetDefault("inference.max_tokens", 1024)
	v.SetDefault("inference.breaker_failures", 3)
	v.SetDefault("inference.breaker_cooldown", "5m")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "6h")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
	v.SetDefault("export.chart_width", 1280)
	v.SetDefault("export.chart_height", 480)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9102")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.RefreshInterval <= 0 {
		return fmt.Errorf("scheduler.refresh_interval must be greater than zero")
	}
	if c.Scheduler.CalibrateInterval < 0 {
		return fmt.Errorf("scheduler.calibrate_interval cannot be negative")
	}
	if strings.TrimSpace(c.Market.PrimarySymbol) == "" {
		return fmt.Errorf("market.primary_symbol is required")
	}
	if c.Calibration.RecentWindow <= 0 {
		return fmt.Errorf("calibration.recent_window must be greater than zero")
	}
	if c.Calibration.Percentile <= 0 || c.Calibration.Percentile > 100 {
		return fmt.Errorf("calibration.percentile must be in (0, 100]")
	}
	if c.Calibration.MinPoints < 1 {
		return fmt.Errorf("calibration.min_points must be at least 1")
	}
	if c.Calibration.TrendWindow < 1 {
		return fmt.Errorf("calibration.trend_window must be at least 1")
	}
	if c.Calibration.RSIPeriod < 1 {
		return fmt.Errorf("calibration.rsi_period must be at least 1")
	}
	if err := c.VolatilityThresholds.Validate(); err != nil {
		return fmt.Errorf("volatility_thresholds: %w", err)
	}
	switch c.Thresholds.Store {
	case StoreFile:
	case StorePostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required when thresholds.store is %q", StorePostgres)
		}
	default:
		return fmt.Errorf("thresholds.store must be %q or %q, got %q", StoreFile, StorePostgres, c.Thresholds.Store)
	}
	switch strings.ToLower(c.Inference.Provider) {
	case "anthropic", "claude", "gemini", "google":
	default:
		return fmt.Errorf("inference.provider must be anthropic or gemini, got %q", c.Inference.Provider)
	}
	if c.News.PageSize <= 0 || c.News.PageSize > 100 {
		return fmt.Errorf("news.page_size must be in [1, 100]")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ThresholdsPath is the settings file holding the volatility_thresholds
// section for the file store.
func (c *Config) ThresholdsPath() string {
	if c.Thresholds.Path != "" {
		return c.Thresholds.Path
	}
	if c.Source != "" {
		return c.Source
	}
	return "config.yaml"
}
