package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/artpar/flowstack/internal/core/validation"
	"github.com/artpar/flowstack/internal/shell/host"
	"github.com/artpar/flowstack/internal/shell/journal"
	"github.com/artpar/flowstack/internal/shell/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all installer configuration.
type Config struct {
	Install    InstallConfig     `mapstructure:"install"`
	Domain     DomainConfig      `mapstructure:"domain"`
	Subdomain  map[string]string `mapstructure:"subdomain"`
	Admin      AdminConfig       `mapstructure:"admin"`
	Components map[string]bool   `mapstructure:"components"`
	Features   FeaturesConfig    `mapstructure:"features"`
	Existing   ExistingConfig    `mapstructure:"existing"`
	Retry      RetryConfig       `mapstructure:"retry"`
	Health     HealthConfig      `mapstructure:"health"`
	Docker     DockerConfig      `mapstructure:"docker"`
	Journal    JournalConfig     `mapstructure:"journal"`
	IP         IPConfig          `mapstructure:"ip"`
	Log        LogConfig         `mapstructure:"log"`
}

// InstallConfig names the installation and where its files live.
type InstallConfig struct {
	Name      string `mapstructure:"name" validate:"required"`
	ConfigDir string `mapstructure:"config_dir" validate:"required"`
	Timezone  string `mapstructure:"timezone"`
}

// DomainConfig holds the root domain. Empty means port mode.
type DomainConfig struct {
	Root string `mapstructure:"root"`
}

// AdminConfig holds the operator identity used for ACME and UI logins.
type AdminConfig struct {
	Email string `mapstructure:"email"`
}

// FeaturesConfig holds feature flags.
type FeaturesConfig struct {
	Media bool `mapstructure:"media"`
}

// ExistingConfig decides what happens to an installation that already exists.
type ExistingConfig struct {
	Disposition       string `mapstructure:"disposition" validate:"omitempty,oneof=keep clean exit reuse"`
	UnattendedDefault string `mapstructure:"unattended_default" validate:"oneof=fail keep reuse"`
}

// RetryConfig holds the retry policy of every phase.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=1,max=20"`
	Delay       time.Duration `mapstructure:"delay" validate:"gte=0"`
}

// HealthConfig bounds the readiness wait.
type HealthConfig struct {
	MaxWait  time.Duration `mapstructure:"max_wait" validate:"gt=0"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// JournalConfig holds the run history location.
type JournalConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// IPConfig holds public address discovery settings.
type IPConfig struct {
	Endpoints []string `mapstructure:"endpoints" validate:"dive,url"`
	Fallback  string   `mapstructure:"fallback" validate:"ip"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=json text color"`
}

// =============================================================================
// Config Loading
// =============================================================================

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"domain":    "domain.root",
	"email":     "admin.email",
	"media":     "features.media",
	"name":      "install.name",
	"log-level": "log.level",
}

// LoadConfig loads configuration from defaults, an optional file, the
// environment and flags, in increasing precedence. Flags not in flagKeys are
// ignored.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("install.name", domain.DefaultInstallationName)
	v.SetDefault("install.config_dir", "/opt/flowstack")
	v.SetDefault("install.timezone", "UTC")
	v.SetDefault("domain.root", "")
	v.SetDefault("admin.email", "admin@example.com")
	for _, id := range domain.OptionalComponents() {
		v.SetDefault("components."+string(id), true)
	}
	v.SetDefault("features.media", false)
	v.SetDefault("existing.disposition", "")
	v.SetDefault("existing.unattended_default", string(domain.DispositionFail))
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.delay", "5s")
	v.SetDefault("health.max_wait", "3m")
	v.SetDefault("health.interval", "5s")
	v.SetDefault("docker.host", "")
	v.SetDefault("journal.path", journal.DefaultPath)
	v.SetDefault("ip.endpoints", host.DefaultIPEndpoints)
	v.SetDefault("ip.fallback", host.DefaultIPFallback)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read config file: %v", domain.ErrValidation, err)
		}
	}

	v.SetEnvPrefix("FLOWSTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only covers keys viper already knows about.
	for _, id := range domain.AllComponents() {
		_ = v.BindEnv("subdomain." + string(id))
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", domain.ErrValidation, err)
	}
	if err := validation.Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// =============================================================================
// Target
// =============================================================================

// Shortcuts adjust the configured component selection.
type Shortcuts struct {
	// Minimal installs the core component only.
	Minimal bool
	// NoDomain ignores the configured domain and publishes ports.
	NoDomain bool
}

// Target validates the configuration and builds the installation target.
func (c *Config) Target(s Shortcuts) (domain.InstallationTarget, error) {
	params := domain.TargetParams{
		Name:          c.Install.Name,
		Domain:        c.Domain.Root,
		AdminIdentity: c.Admin.Email,
		Timezone:      c.Install.Timezone,
		MediaTools:    c.Features.Media,
		ConfigDir:     c.Install.ConfigDir,
		Subdomains:    make(map[domain.ComponentID]string),
	}
	if s.NoDomain {
		params.Domain = ""
	}

	names := make([]string, 0, len(c.Components))
	for name := range c.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id, err := domain.ParseComponentID(name)
		if err != nil {
			return domain.InstallationTarget{}, err
		}
		if c.Components[name] && !s.Minimal {
			params.Components = append(params.Components, id)
		}
	}

	for name, label := range c.Subdomain {
		id, err := domain.ParseComponentID(name)
		if err != nil {
			return domain.InstallationTarget{}, err
		}
		params.Subdomains[id] = label
	}

	return validation.NewTarget(params)
}

// Dispositions parses the configured dispositions.
func (c *Config) Dispositions() (configured, unattended domain.Disposition, err error) {
	if configured, err = domain.ParseDisposition(c.Existing.Disposition); err != nil {
		return "", "", err
	}
	if unattended, err = domain.ParseDisposition(c.Existing.UnattendedDefault); err != nil {
		return "", "", err
	}
	return configured, unattended, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logging.ReplaceLevel,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = logging.NewColorHandler(w, level)
	}

	return slog.New(handler)
}
