// Package config loads netsweep settings from defaults, an optional config
// file, NETSWEEP_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"netsweep/internal/logging"
	"netsweep/internal/resolve"
	"netsweep/internal/scan"
)

// EnvPrefix is prepended to every environment variable, e.g. NETSWEEP_SCAN_PORTS.
const EnvPrefix = "NETSWEEP"

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatYAML  = "yaml"
	FormatPlist = "plist"
)

// Progress modes.
const (
	ProgressAuto   = "auto"
	ProgressAlways = "always"
	ProgressNever  = "never"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete runtime configuration.
type Config struct {
	Scan    ScanConfig     `mapstructure:"scan"`
	Resolve ResolveConfig  `mapstructure:"resolve"`
	Output  OutputConfig   `mapstructure:"output"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Log     logging.Config `mapstructure:"log"`
}

// ScanConfig controls target selection and probing.
type ScanConfig struct {
	Subnet       string        `mapstructure:"subnet" validate:"omitempty,subnet"`
	Ports        []int         `mapstructure:"ports" validate:"dive,min=1,max=65535"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Concurrency  int           `mapstructure:"concurrency" validate:"gt=0,max=65536"`
	UDP          bool          `mapstructure:"udp"`
	ICMP         bool          `mapstructure:"icmp"`
	ExcludeEdges bool          `mapstructure:"exclude_edges"`
	Deadline     time.Duration `mapstructure:"deadline" validate:"gte=0"`
}

// ResolveConfig controls post-scan enrichment.
type ResolveConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// OutputConfig controls how results are rendered.
type OutputConfig struct {
	Format   string `mapstructure:"format" validate:"oneof=table json csv yaml plist"`
	File     string `mapstructure:"file"`
	Progress string `mapstructure:"progress" validate:"oneof=auto always never"`
}

// MetricsConfig controls the Prometheus textfile dump.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	scanDefaults := scan.DefaultConfig()
	v.SetDefault("scan.subnet", "")
	v.SetDefault("scan.ports", scanDefaults.Ports)
	v.SetDefault("scan.timeout", scanDefaults.Timeout)
	v.SetDefault("scan.concurrency", scanDefaults.Concurrency)
	v.SetDefault("scan.udp", scanDefaults.UDP)
	v.SetDefault("scan.icmp", scanDefaults.ICMP)
	v.SetDefault("scan.exclude_edges", scanDefaults.ExcludeEdges)
	v.SetDefault("scan.deadline", time.Duration(0))

	v.SetDefault("resolve.enabled", false)
	v.SetDefault("resolve.timeout", resolve.DefaultTimeout)

	v.SetDefault("output.format", FormatTable)
	v.SetDefault("output.file", "")
	v.SetDefault("output.progress", ProgressAuto)

	v.SetDefault("metrics.textfile", "")

	logDefaults := logging.DefaultConfig()
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.format", logDefaults.Format)
}

// NewViper returns a viper instance with defaults and environment binding
// applied. Flags are bound by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges a YAML, JSON or TOML config file into v.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Output.Format = strings.ToLower(cfg.Output.Format)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// newValidator adds the "subnet" rule, which accepts whatever the scanner
// can parse: CIDR with any host address inside it, or a bare IPv4 address.
func newValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("subnet", func(fl validator.FieldLevel) bool {
		_, err := scan.ParseSubnet(fl.Field().String())
		return err == nil
	})
	return validate
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q (value %v)", ErrInvalidConfig, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.ProbeConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ProbeConfig converts the scan section into the prober configuration.
func (c Config) ProbeConfig() scan.Config {
	return scan.Config{
		Ports:        append([]int(nil), c.Scan.Ports...),
		Timeout:      c.Scan.Timeout,
		Concurrency:  c.Scan.Concurrency,
		UDP:          c.Scan.UDP,
		ICMP:         c.Scan.ICMP,
		ExcludeEdges: c.Scan.ExcludeEdges,
	}
}
