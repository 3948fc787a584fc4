// Package config loads ndvm configuration from a YAML file, NDVM_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: host.db is NDVM_HOST_DB.
const EnvPrefix = "NDVM"

// Keys of the configuration tree. Flags bound with BindFlags use the same
// names.
const (
	KeyHostListen            = "host.listen"
	KeyHostDB                = "host.db"
	KeyHostWorld             = "host.world"
	KeyHostRequestTimeout    = "host.request_timeout"
	KeyHostInitialGas        = "host.initial_gas"
	KeyHostStorageGasPerByte = "host.storage_gas_per_byte"
	KeyHostMaxSandboxDepth   = "host.max_sandbox_depth"
	KeyNondetTimeout         = "nondet.timeout"
	KeyNondetVMErrorsAgree   = "nondet.vm_errors_agree"
	KeyMetricsEnabled        = "instrumentation.prometheus"
	KeyMetricsListen         = "instrumentation.prometheus_listen_addr"
	KeyMetricsNamespace      = "instrumentation.namespace"
	KeyLogLevel              = "log.level"
	KeyLogFormat             = "log.format"
)

// Config is the full configuration of an ndvm process.
type Config struct {
	Host            HostConfig            `mapstructure:"host"            yaml:"host"`
	Nondet          NondetConfig          `mapstructure:"nondet"          yaml:"nondet"`
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation" yaml:"instrumentation"`
	Log             LogConfig             `mapstructure:"log"             yaml:"log"`
}

// HostConfig configures the host side of the wire protocol.
type HostConfig struct {
	Listen            string        `mapstructure:"listen"               yaml:"listen"`
	DB                string        `mapstructure:"db"                   yaml:"db"`                   // SQLite path; ":memory:" for a throwaway store
	World             string        `mapstructure:"world"                yaml:"world,omitempty"`      // CUE world fixture
	RequestTimeout    time.Duration `mapstructure:"request_timeout"      yaml:"request_timeout"`      // per guest frame; 0 disables
	InitialGas        uint64        `mapstructure:"initial_gas"          yaml:"initial_gas"`
	StorageGasPerByte uint64        `mapstructure:"storage_gas_per_byte" yaml:"storage_gas_per_byte"`
	MaxSandboxDepth   int           `mapstructure:"max_sandbox_depth"    yaml:"max_sandbox_depth"`
}

// NondetConfig configures the nondet engine of guests.
type NondetConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"         yaml:"timeout"` // per leader run and vote; 0 disables
	VMErrorsAgree bool          `mapstructure:"vm_errors_agree" yaml:"vm_errors_agree"`
}

// InstrumentationConfig configures metrics reporting.
type InstrumentationConfig struct {
	Prometheus           bool   `mapstructure:"prometheus"             yaml:"prometheus"`
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr" yaml:"prometheus_listen_addr"`
	Namespace            string `mapstructure:"namespace"              yaml:"namespace"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Host: HostConfig{
			Listen:            "127.0.0.1:7070",
			DB:                "ndvm.db",
			RequestTimeout:    30 * time.Second,
			InitialGas:        10_000_000,
			StorageGasPerByte: 1,
			MaxSandboxDepth:   8,
		},
		Nondet: NondetConfig{
			Timeout:       20 * time.Second,
			VMErrorsAgree: true,
		},
		Instrumentation: InstrumentationConfig{
			PrometheusListenAddr: ":26660",
			Namespace:            "ndvm",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyHostListen, d.Host.Listen)
	v.SetDefault(KeyHostDB, d.Host.DB)
	v.SetDefault(KeyHostWorld, d.Host.World)
	v.SetDefault(KeyHostRequestTimeout, d.Host.RequestTimeout.String())
	v.SetDefault(KeyHostInitialGas, d.Host.InitialGas)
	v.SetDefault(KeyHostStorageGasPerByte, d.Host.StorageGasPerByte)
	v.SetDefault(KeyHostMaxSandboxDepth, d.Host.MaxSandboxDepth)
	v.SetDefault(KeyNondetTimeout, d.Nondet.Timeout.String())
	v.SetDefault(KeyNondetVMErrorsAgree, d.Nondet.VMErrorsAgree)
	v.SetDefault(KeyMetricsEnabled, d.Instrumentation.Prometheus)
	v.SetDefault(KeyMetricsListen, d.Instrumentation.PrometheusListenAddr)
	v.SetDefault(KeyMetricsNamespace, d.Instrumentation.Namespace)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogFormat, d.Log.Format)
}

// Load reads the configuration. path may be empty; a missing file at an
// explicit path is an error. flags, if non-nil, override file and
// environment values for every flag named after a configuration key.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr == nil && isKey(f.Name) {
				bindErr = v.BindPFlag(f.Name, f)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal config (check duration formats): %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var keys = map[string]bool{
	KeyHostListen: true, KeyHostDB: true, KeyHostWorld: true, KeyHostRequestTimeout: true,
	KeyHostInitialGas: true, KeyHostStorageGasPerByte: true, KeyHostMaxSandboxDepth: true,
	KeyNondetTimeout: true, KeyNondetVMErrorsAgree: true,
	KeyMetricsEnabled: true, KeyMetricsListen: true, KeyMetricsNamespace: true,
	KeyLogLevel: true, KeyLogFormat: true,
}

func isKey(name string) bool {
	return keys[name]
}

// Validate checks value bounds.
func (c *Config) Validate() error {
	if c.Host.DB == "" {
		return errors.New("host.db is required")
	}
	if c.Host.InitialGas == 0 {
		return errors.New("host.initial_gas must be positive")
	}
	if c.Host.MaxSandboxDepth < 0 {
		return errors.New("host.max_sandbox_depth can't be negative")
	}
	if c.Host.RequestTimeout < 0 {
		return errors.New("host.request_timeout can't be negative")
	}
	if c.Nondet.Timeout < 0 {
		return errors.New("nondet.timeout can't be negative")
	}
	if c.Instrumentation.Prometheus && c.Instrumentation.PrometheusListenAddr == "" {
		return errors.New("instrumentation.prometheus_listen_addr is required when prometheus is enabled")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}
