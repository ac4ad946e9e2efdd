// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/rolecheck/internal/checkerr"
	"github.com/xkilldash9x/rolecheck/internal/validation"
)

// Config holds the entire application configuration. It is built once at startup and
// passed by pointer into every component constructor.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Humanoid  HumanoidConfig  `mapstructure:"humanoid" yaml:"humanoid"`
	Discord   DiscordConfig   `mapstructure:"discord" yaml:"discord"`
	AdsPower  AdsPowerConfig  `mapstructure:"adspower" yaml:"adspower"`
	Sheets    SheetsConfig    `mapstructure:"sheets" yaml:"sheets"`
	Threading ThreadingConfig `mapstructure:"threading" yaml:"threading"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
}

// LoggerConfig defines all settings related to logging.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig applies to locally launched browsers only; remote profiles bring their own settings.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string `mapstructure:"args" yaml:"args"`
	Locale          string   `mapstructure:"locale" yaml:"locale"`
	Timezone        string   `mapstructure:"timezone" yaml:"timezone"`
}

// HumanoidConfig tunes the delay and disguise engine.
type HumanoidConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// TimeScale multiplies every disguise delay. 0 disables waiting entirely.
	TimeScale float64 `mapstructure:"time_scale" yaml:"time_scale" validate:"gte=0"`
	// ActivityProbability is the chance that an opportunistic disguise action runs.
	ActivityProbability float64 `mapstructure:"activity_probability" yaml:"activity_probability" validate:"gte=0,lte=1"`
}

// DiscordConfig holds timeouts and scraping limits for the Discord web client.
type DiscordConfig struct {
	BaseURL            string        `mapstructure:"base_url" yaml:"base_url" validate:"required"`
	LoginURL           string        `mapstructure:"login_url" yaml:"login_url" validate:"required"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	WaitTime           time.Duration `mapstructure:"wait_time" yaml:"wait_time"`
	PageLoadTimeout    time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	AuthCheckTimeout   time.Duration `mapstructure:"auth_check_timeout" yaml:"auth_check_timeout"`
	ElementWaitTimeout time.Duration `mapstructure:"element_wait_timeout" yaml:"element_wait_timeout"`
	MaxScrollSteps     int           `mapstructure:"max_scroll_steps" yaml:"max_scroll_steps" validate:"gte=1"`
	MaxRoleNameLength  int           `mapstructure:"max_role_name_length" yaml:"max_role_name_length" validate:"gte=1"`
}

// AdsPowerConfig points at the local AdsPower API.
type AdsPowerConfig struct {
	APIURL            string        `mapstructure:"api_url" yaml:"api_url" validate:"required,url"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gt=0"`
}

// SheetsConfig names the spreadsheet and its tabs.
type SheetsConfig struct {
	SpreadsheetID   string `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id" validate:"required"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file" validate:"required"`
	ProfilesSheet   string `mapstructure:"profiles_sheet" yaml:"profiles_sheet" validate:"required"`
	LinksSheet      string `mapstructure:"links_sheet" yaml:"links_sheet" validate:"required"`
	ResultsSheet    string `mapstructure:"results_sheet" yaml:"results_sheet" validate:"required"`
}

// ThreadingConfig controls parallel mode.
type ThreadingConfig struct {
	Enabled            bool `mapstructure:"enabled" yaml:"enabled"`
	MaxWorkers         int  `mapstructure:"max_workers" yaml:"max_workers"`
	MaxTasksPerProfile int  `mapstructure:"max_tasks_per_profile" yaml:"max_tasks_per_profile"`
}

// DatabaseConfig holds the optional PostgreSQL archive connection. With Stream
// set, each record is inserted as it is saved instead of in one batch at the end.
type DatabaseConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Stream bool   `mapstructure:"stream" yaml:"stream"`
}

// NewDefaultConfig creates a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "rolecheck")
	v.SetDefault("logger.log_file", "rolecheck.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "America/New_York")

	// -- Humanoid --
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.time_scale", 1.0)
	v.SetDefault("humanoid.activity_probability", 0.3)

	// -- Discord --
	v.SetDefault("discord.base_url", "https://discord.com")
	v.SetDefault("discord.login_url", "https://discord.com/login")
	v.SetDefault("discord.timeout", "30s")
	v.SetDefault("discord.wait_time", "3s")
	v.SetDefault("discord.page_load_timeout", "10s")
	v.SetDefault("discord.auth_check_timeout", "10s")
	v.SetDefault("discord.element_wait_timeout", "3s")
	v.SetDefault("discord.max_scroll_steps", 400)
	v.SetDefault("discord.max_role_name_length", 50)

	// -- AdsPower --
	v.SetDefault("adspower.api_url", "http://local.adspower.net:50325")
	v.SetDefault("adspower.api_key", "")
	v.SetDefault("adspower.timeout", "30s")
	v.SetDefault("adspower.requests_per_second", 1.0)

	// -- Sheets --
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.credentials_file", "credentials.json")
	v.SetDefault("sheets.profiles_sheet", "ds_data")
	v.SetDefault("sheets.links_sheet", "ds_link")
	v.SetDefault("sheets.results_sheet", "чек-отработка")

	// -- Threading --
	v.SetDefault("threading.enabled", false)
	v.SetDefault("threading.max_workers", 2)
	v.SetDefault("threading.max_tasks_per_profile", 1)

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.stream", false)
}

// Load unmarshals the configuration held by v without validating it. Commands
// that only read local state use it so a missing spreadsheet does not stop them.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("adspower.api_key", "ROLECHECK_ADSPOWER_API_KEY")
	_ = v.BindEnv("database.url", "ROLECHECK_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, checkerr.Wrap(err, checkerr.KindConfiguration, "config", "error unmarshaling config")
	}
	return &cfg, nil
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Load(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return checkerr.Wrap(err, checkerr.KindConfiguration, "config", "invalid configuration")
	}
	if c.Discord.Timeout <= 0 {
		return checkerr.New(checkerr.KindConfiguration, "config", "discord.timeout must be positive")
	}
	if c.Discord.WaitTime < 0 {
		return checkerr.New(checkerr.KindConfiguration, "config", "discord.wait_time must not be negative")
	}
	if c.Threading.MaxWorkers < 1 {
		return checkerr.New(checkerr.KindConfiguration, "config", "threading.max_workers must be a positive integer")
	}
	if c.Threading.MaxTasksPerProfile < 1 {
		return checkerr.New(checkerr.KindConfiguration, "config", "threading.max_tasks_per_profile must be a positive integer")
	}
	path, err := homedir.Expand(c.Sheets.CredentialsFile)
	if err != nil {
		return checkerr.Wrap(err, checkerr.KindConfiguration, "config", "sheets.credentials_file cannot be expanded")
	}
	if _, err := os.Stat(path); err != nil {
		return checkerr.Wrap(err, checkerr.KindConfiguration, "config", "sheets.credentials_file is not readable")
	}
	return nil
}
