// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Interaction() schemas.EngineOptions
	Audits() AuditsConfig
	Report() ReportConfig
	Testing() TestingConfig
	Scan() ScanConfig
	SetScanConfig(sc ScanConfig)

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserConcurrency(int)

	// Interaction Setters
	SetMaxInteractions(int)
	SetInteractionDelay(ms int)
	SetInteractionTimeout(ms int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg      LoggerConfig          `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg    DatabaseConfig        `mapstructure:"database" yaml:"database"`
	BrowserCfg     BrowserConfig         `mapstructure:"browser" yaml:"browser"`
	NetworkCfg     NetworkConfig         `mapstructure:"network" yaml:"network"`
	InteractionCfg schemas.EngineOptions `mapstructure:"interaction" yaml:"interaction"`
	AuditsCfg      AuditsConfig          `mapstructure:"audits" yaml:"audits"`
	ReportCfg      ReportConfig          `mapstructure:"report" yaml:"report"`
	TestingCfg     TestingConfig         `mapstructure:"testing" yaml:"testing"`
	// ScanCfg gets its marching orders from CLI flags, not the config file.
	ScanCfg ScanConfig `mapstructure:"-" yaml:"-"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig               { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig           { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig             { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig             { return c.NetworkCfg }
func (c *Config) Interaction() schemas.EngineOptions { return c.InteractionCfg }
func (c *Config) Audits() AuditsConfig               { return c.AuditsCfg }
func (c *Config) Report() ReportConfig               { return c.ReportCfg }
func (c *Config) Testing() TestingConfig             { return c.TestingCfg }
func (c *Config) Scan() ScanConfig                   { return c.ScanCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetScanConfig(sc ScanConfig) { c.ScanCfg = sc }

func (c *Config) SetBrowserHeadless(b bool)   { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserConcurrency(n int) { c.BrowserCfg.Concurrency = n }

func (c *Config) SetMaxInteractions(n int)     { c.InteractionCfg.MaxInteractions = n }
func (c *Config) SetInteractionDelay(ms int)   { c.InteractionCfg.InteractionDelay = ms }
func (c *Config) SetInteractionTimeout(ms int) { c.InteractionCfg.Timeout = ms }

// LoggerConfig holds all the configuration for the logger.
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

// DatabaseConfig holds the database connection details. An empty URL disables persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Concurrency     int            `mapstructure:"concurrency" yaml:"concurrency"`
	// LaunchRate caps new page sessions per second.
	LaunchRate float64        `mapstructure:"launch_rate" yaml:"launch_rate"`
	ExecPath   string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent  string         `mapstructure:"user_agent" yaml:"user_agent"`
	Debug      bool           `mapstructure:"debug" yaml:"debug"`
	Args       []string       `mapstructure:"args" yaml:"args"`
	Viewport   map[string]int `mapstructure:"viewport" yaml:"viewport"`
}

// NetworkConfig tunes the network behavior of page sessions.
type NetworkConfig struct {
	NavigationTimeout time.Duration     `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IdleTimeout       time.Duration     `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	QuietPeriod       time.Duration     `mapstructure:"quiet_period" yaml:"quiet_period"`
	PostLoadWait      time.Duration     `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	Headers           map[string]string `mapstructure:"headers" yaml:"headers"`
	// EventBufferSize bounds the console error and failed request buffer per page.
	EventBufferSize int `mapstructure:"event_buffer_size" yaml:"event_buffer_size"`
}

// AuditsConfig enables and tunes the individual audit subsystems.
type AuditsConfig struct {
	Accessibility AccessibilityConfig `mapstructure:"accessibility" yaml:"accessibility"`
	Performance   PerformanceConfig   `mapstructure:"performance" yaml:"performance"`
	Security      SecurityConfig      `mapstructure:"security" yaml:"security"`
}

type AccessibilityConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	AxeSource  string        `mapstructure:"axe_source" yaml:"axe_source"`
	AxeTimeout time.Duration `mapstructure:"axe_timeout" yaml:"axe_timeout"`
}

type PerformanceConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Window is how long Web Vitals observers are given to report.
	Window time.Duration `mapstructure:"window" yaml:"window"`
}

type SecurityConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ReportConfig controls report output.
type ReportConfig struct {
	Format      string `mapstructure:"format" yaml:"format"`
	Output      string `mapstructure:"output" yaml:"output"`
	OutputDir   string `mapstructure:"output_dir" yaml:"output_dir"`
	Screenshots bool   `mapstructure:"screenshots" yaml:"screenshots"`
}

// TestingConfig holds the fallback target used when a scan gets no arguments.
type TestingConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// ScanConfig defines the parameters for a specific scan job.
type ScanConfig struct {
	Targets []string
	RunID   string
	Output  string
	Format  string
}

// Report formats understood by the reporting package.
const (
	FormatJSON  = "json"
	FormatSARIF = "sarif"
)

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default value on the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "comet-monkey")
	v.SetDefault("logger.log_file", "comet.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.concurrency", 4)
	v.SetDefault("browser.launch_rate", 2.0)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})

	// -- Network --
	v.SetDefault("network.navigation_timeout", "30s")
	v.SetDefault("network.idle_timeout", "10s")
	v.SetDefault("network.quiet_period", "500ms")
	v.SetDefault("network.post_load_wait", "1s")
	v.SetDefault("network.event_buffer_size", 200)

	// -- Interaction --
	v.SetDefault("interaction.interaction_delay", schemas.DefaultInteractionDelayMs)
	v.SetDefault("interaction.max_interactions", schemas.DefaultMaxInteractions)
	v.SetDefault("interaction.timeout", schemas.DefaultTimeoutMs)

	// -- Audits --
	v.SetDefault("audits.accessibility.enabled", true)
	v.SetDefault("audits.accessibility.axe_source", "https://cdnjs.cloudflare.com/ajax/libs/axe-core/4.7.2/axe.min.js")
	v.SetDefault("audits.accessibility.axe_timeout", "15s")
	v.SetDefault("audits.performance.enabled", true)
	v.SetDefault("audits.performance.window", "3s")
	v.SetDefault("audits.security.enabled", true)

	// -- Report --
	v.SetDefault("report.format", FormatJSON)
	v.SetDefault("report.output", "")
	v.SetDefault("report.output_dir", "./comet-screenshots")
	v.SetDefault("report.screenshots", true)

	// -- Testing --
	v.SetDefault("testing.base_url", "http://localhost:3000")
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("database.url", "COMET_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the URL if Unmarshal didn't pick it up
	if cfg.DatabaseCfg.URL == "" {
		cfg.DatabaseCfg.URL = os.Getenv("COMET_DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is coherent.
func (c *Config) Validate() error {
	if c.BrowserCfg.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if c.BrowserCfg.LaunchRate <= 0 {
		return fmt.Errorf("browser.launch_rate must be positive")
	}
	if err := c.InteractionCfg.Validate(); err != nil {
		return fmt.Errorf("interaction configuration invalid: %w", err)
	}
	if c.NetworkCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if c.NetworkCfg.EventBufferSize <= 0 {
		return fmt.Errorf("network.event_buffer_size must be a positive integer")
	}
	if err := c.ReportCfg.Validate(); err != nil {
		return fmt.Errorf("report configuration invalid: %w", err)
	}
	if c.TestingCfg.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.TestingCfg.BaseURL); err != nil {
			return fmt.Errorf("testing.base_url is not a valid URL: %w", err)
		}
	}
	return nil
}

// Validate checks the report format.
func (r *ReportConfig) Validate() error {
	switch strings.ToLower(r.Format) {
	case FormatJSON, FormatSARIF:
		return nil
	default:
		return fmt.Errorf("report.format must be %q or %q, got %q", FormatJSON, FormatSARIF, r.Format)
	}
}
