// Package config resolves stockwatch settings from defaults, an optional
// YAML file and the environment.
//
// Every key can be overridden with STOCKWATCH_<SECTION>_<KEY>. The
// deployment variables of the hosted job (DB_HOST, TELEGRAM_TOKEN,
// GITHUB_ACTIONS, ...) are bound as well and lose to the prefixed form.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hazyhaar/stockwatch/stock"
)

// DefaultURL is the wiki page that lists the current stock.
const DefaultURL = `https://blox-fruits.fandom.com/wiki/Blox_Fruits_%22Stock%22`

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the full runtime configuration.
type Config struct {
	Target    TargetConfig    `mapstructure:"target" yaml:"target"`
	Run       RunConfig       `mapstructure:"run" yaml:"run"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	DB        DBConfig        `mapstructure:"db" yaml:"db"`
	Telegram  TelegramConfig  `mapstructure:"telegram" yaml:"telegram"`
	Alerts    AlertsConfig    `mapstructure:"alerts" yaml:"alerts"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

type TargetConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// RunConfig controls the start delay of unattended runs.
type RunConfig struct {
	Unattended bool          `mapstructure:"unattended" yaml:"unattended"`
	DelayMin   time.Duration `mapstructure:"delay_min" yaml:"delay_min"`
	DelayMax   time.Duration `mapstructure:"delay_max" yaml:"delay_max"`
}

// BrowserConfig controls the headless browser session.
type BrowserConfig struct {
	RemoteURL       string        `mapstructure:"remote_url" yaml:"remote_url,omitempty"`
	Bin             string        `mapstructure:"bin" yaml:"bin,omitempty"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigateTimeout time.Duration `mapstructure:"navigate_timeout" yaml:"navigate_timeout"`
	VisibleTimeout  time.Duration `mapstructure:"visible_timeout" yaml:"visible_timeout"`
	SettleDelay     time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	ScrollY         int           `mapstructure:"scroll_y" yaml:"scroll_y"`
	BlockResources  []string      `mapstructure:"block_resources" yaml:"block_resources,omitempty"`
	Screenshot      string        `mapstructure:"screenshot" yaml:"screenshot,omitempty"`
}

// DBConfig selects and addresses the history store.
type DBConfig struct {
	// Driver is postgres or sqlite. Empty picks postgres when Host is set.
	Driver   string `mapstructure:"driver" yaml:"driver"`
	Host     string `mapstructure:"host" yaml:"host,omitempty"`
	Port     int    `mapstructure:"port" yaml:"port,omitempty"`
	User     string `mapstructure:"user" yaml:"user,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Name     string `mapstructure:"name" yaml:"name,omitempty"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode,omitempty"`

	// CACert is the PEM payload of the server CA, as injected by CI.
	CACert string `mapstructure:"ca_cert" yaml:"ca_cert,omitempty"`
	// CAFile is where CACert is written, or an existing CA file when
	// CACert is empty.
	CAFile string `mapstructure:"ca_file" yaml:"ca_file"`

	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

type TelegramConfig struct {
	Token   string        `mapstructure:"token" yaml:"token,omitempty"`
	ChatID  string        `mapstructure:"chat_id" yaml:"chat_id,omitempty"`
	APIBase string        `mapstructure:"api_base" yaml:"api_base"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AlertsConfig decides which sightings trigger a chat alert.
type AlertsConfig struct {
	HighTiers []string `mapstructure:"high_tiers" yaml:"high_tiers"`
	Targets   []string `mapstructure:"targets" yaml:"targets"`
}

type HistoryConfig struct {
	Limit         int           `mapstructure:"limit" yaml:"limit"`
	DisplayOffset time.Duration `mapstructure:"display_offset" yaml:"display_offset"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// MetricsConfig writes run metrics in the node-exporter textfile format.
type MetricsConfig struct {
	Textfile  string `mapstructure:"textfile" yaml:"textfile,omitempty"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint,omitempty"`
	Insecure     bool   `mapstructure:"insecure" yaml:"insecure"`
	ServiceName  string `mapstructure:"service_name" yaml:"service_name"`
}

// envAliases binds keys to the variable names used by the hosted job.
var envAliases = map[string][]string{
	"db.host":          {"DB_HOST"},
	"db.port":          {"DB_PORT"},
	"db.user":          {"DB_USER"},
	"db.password":      {"DB_PASS"},
	"db.name":          {"DB_NAME"},
	"db.ca_cert":       {"CA_CERT_CONTENT"},
	"telegram.token":   {"TELEGRAM_TOKEN"},
	"telegram.chat_id": {"TELEGRAM_CHAT_ID"},
	"run.unattended":   {"GITHUB_ACTIONS"},
}

// Load reads configuration. An empty path looks for stockwatch.yaml in the
// working directory and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stockwatch")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("STOCKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		prefixed := "STOCKWATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target.url", DefaultURL)

	v.SetDefault("run.unattended", false)
	v.SetDefault("run.delay_min", 900*time.Second)
	v.SetDefault("run.delay_max", 1080*time.Second)

	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.navigate_timeout", 60*time.Second)
	v.SetDefault("browser.visible_timeout", 45*time.Second)
	v.SetDefault("browser.settle_delay", 2*time.Second)
	v.SetDefault("browser.scroll_y", 800)
	v.SetDefault("browser.block_resources", []string{})
	v.SetDefault("browser.screenshot", "debug_view.png")

	v.SetDefault("db.driver", "")
	v.SetDefault("db.host", "")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "")
	v.SetDefault("db.sslmode", "")
	v.SetDefault("db.ca_cert", "")
	v.SetDefault("db.ca_file", "ca.pem")
	v.SetDefault("db.sqlite_path", "stockwatch.db")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", 10*time.Second)

	v.SetDefault("alerts.high_tiers", []string{string(stock.Mythical), string(stock.Legendary)})
	v.SetDefault("alerts.targets", stock.DefaultTargets)

	v.SetDefault("history.limit", 0)
	v.SetDefault("history.display_offset", 8*time.Hour)

	v.SetDefault("log.level", "info")

	v.SetDefault("metrics.textfile", "")
	v.SetDefault("metrics.namespace", "stockwatch")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.service_name", "stockwatch")
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Target.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("target.url must be an absolute http(s) URL, got %q", c.Target.URL)
	}

	if c.Run.DelayMin < 0 || c.Run.DelayMax < c.Run.DelayMin {
		return fmt.Errorf("run delay window [%s, %s] is invalid", c.Run.DelayMin, c.Run.DelayMax)
	}

	switch c.Driver() {
	case DriverPostgres:
		if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
			return errors.New("postgres requires db.host, db.user and db.name (DB_HOST, DB_USER, DB_NAME)")
		}
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			return fmt.Errorf("db.port out of range: %d", c.DB.Port)
		}
	case DriverSQLite:
		if c.DB.SQLitePath == "" {
			return errors.New("db.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DB.Driver)
	}

	if _, err := c.HighTiers(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must be >= 0, got %d", c.History.Limit)
	}
	return nil
}

// Driver resolves the store backend.
func (c *Config) Driver() string {
	if c.DB.Driver != "" {
		return c.DB.Driver
	}
	if c.DB.Host != "" {
		return DriverPostgres
	}
	return DriverSQLite
}

// HighTiers parses alerts.high_tiers.
func (c *Config) HighTiers() ([]stock.Rarity, error) {
	out := make([]stock.Rarity, 0, len(c.Alerts.HighTiers))
	for _, s := range c.Alerts.HighTiers {
		r, ok := stock.LookupTier(strings.TrimSpace(s))
		if !ok {
			return nil, fmt.Errorf("alerts.high_tiers: unknown tier %q", s)
		}
		out = append(out, r)
	}
	return out, nil
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}
