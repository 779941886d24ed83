package config

import (
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/mutker/ecctl/internal/errors"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel        = string(LogLevelInfo)
	DefaultInterval        = 2
	DefaultControlInterval = 2
	DefaultBackend         = "auto"
	DefaultMetricsDBPath   = "/var/lib/ecctl/metrics.db"
	DefaultLockPath        = "/run/ecctl.lock"
	DefaultBatchSize       = 10
	DefaultBatchTimeout    = 30

	defaultConfigName = "ecctl"
	defaultConfigDir  = "/etc"
	defaultEnvPrefix  = "ECCTL"
	configEnvSuffix   = "_CONFIG"
)

// Backend names accepted by the backend key.
var backends = []string{"auto", "port", "debugfs", "sysfs"}

type RegistersConfig struct {
	TableFile string `mapstructure:"table_file"`
}

type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DBPath       string `mapstructure:"db_path"`
	BatchSize    int    `mapstructure:"batch_size"`
	BatchTimeout int    `mapstructure:"batch_timeout"`
}

type SensorsConfig struct {
	Hwmon bool `mapstructure:"hwmon"`
	NVML  bool `mapstructure:"nvml"`
}

type Config struct {
	LogLevel        string          `mapstructure:"log_level"`
	Interval        int             `mapstructure:"interval"`
	ControlInterval int             `mapstructure:"control_interval"`
	Backend         string          `mapstructure:"backend"`
	Model           string          `mapstructure:"model"`
	ProfilesPath    string          `mapstructure:"profiles_path"`
	LockPath        string          `mapstructure:"lock_path"`
	Registers       RegistersConfig `mapstructure:"registers"`
	Metrics         MetricsConfig   `mapstructure:"metrics"`
	Sensors         SensorsConfig   `mapstructure:"sensors"`
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":        "log_level",
	"interval":         "interval",
	"control-interval": "control_interval",
	"backend":          "backend",
	"model":            "model",
	"profiles":         "profiles_path",
	"lock":             "lock_path",
	"register-table":   "registers.table_file",
	"record":           "metrics.enabled",
	"db":               "metrics.db_path",
}

// Load reads configuration from file, environment and flags, in increasing
// order of precedence, and validates the result.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, o); err != nil {
		return nil, err
	}

	if o.flags != nil {
		for name, key := range flagKeys {
			f := o.flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("control_interval", DefaultControlInterval)
	v.SetDefault("backend", DefaultBackend)
	v.SetDefault("model", "")
	v.SetDefault("profiles_path", defaultProfilesPath())
	v.SetDefault("lock_path", DefaultLockPath)
	v.SetDefault("registers.table_file", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.db_path", DefaultMetricsDBPath)
	v.SetDefault("metrics.batch_size", DefaultBatchSize)
	v.SetDefault("metrics.batch_timeout", DefaultBatchTimeout)
	v.SetDefault("sensors.hwmon", true)
	v.SetDefault("sensors.nvml", false)
}

func readConfigFile(v *viper.Viper, o *options) error {
	errFactory := errors.New()

	path := o.configPath
	if path == "" {
		if env, ok := os.LookupEnv(o.envPrefix + configEnvSuffix); ok {
			if env == "" {
				return nil
			}
			path = env
		}
	}

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(defaultConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

func defaultProfilesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "/var/lib"
	}

	return filepath.Join(dir, "ecctl", "profiles.json")
}

// Validate checks the loaded values and returns the first violation.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, ValidationError{
			Field: "log_level", Value: c.LogLevel, Reason: "must be debug, info, warning or error",
		})
	}

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, ValidationError{
			Field: "interval", Value: c.Interval, Reason: "must be positive",
		})
	}

	if c.ControlInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, ValidationError{
			Field: "control_interval", Value: c.ControlInterval, Reason: "must be positive",
		})
	}

	if !isBackend(c.Backend) {
		return errFactory.WithData(errors.ErrInvalidConfig, ValidationError{
			Field: "backend", Value: c.Backend, Reason: "must be one of " + strings.Join(backends, ", "),
		})
	}

	if c.ProfilesPath == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, ValidationError{
			Field: "profiles_path", Value: c.ProfilesPath, Reason: "must not be empty",
		})
	}

	if c.Metrics.Enabled && c.Metrics.DBPath == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, ValidationError{
			Field: "metrics.db_path", Value: c.Metrics.DBPath, Reason: "required when metrics are enabled",
		})
	}

	return nil
}

func isBackend(name string) bool {
	for _, b := range backends {
		if b == name {
			return true
		}
	}

	return false
}
