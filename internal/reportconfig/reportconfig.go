// Package reportconfig loads the settings shared by all phpcov commands from a
// YAML file, PHPCOV_* environment variables and command line flags.
package reportconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/filtering"
	"github.com/sebastianbergmann/php-code-coverage-sub000/internal/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configName = ".phpcov"
	configType = "yaml"
	envPrefix  = "PHPCOV"
)

const (
	DefaultWorkers   = 4
	DefaultVerbosity = "info"
)

var (
	// ErrInvalidWorkers is returned when workers is not positive.
	ErrInvalidWorkers = errors.New("workers must be positive")
	// ErrInvalidVerbosity is returned for an unknown verbosity level.
	ErrInvalidVerbosity = errors.New("invalid verbosity")
	// ErrInvalidFilter is returned when a file filter does not compile.
	ErrInvalidFilter = errors.New("invalid file filter")
	// ErrNoSuffixes is returned when no source suffix is configured.
	ErrNoSuffixes = errors.New("at least one source suffix is required")
)

// Config holds the settings of a phpcov run.
type Config struct {
	SourceDirectories     []string `mapstructure:"source_directories"`
	Suffixes              []string `mapstructure:"suffixes"`
	FileFilters           []string `mapstructure:"file_filters"`
	UseAnnotations        bool     `mapstructure:"use_annotations"`
	IgnoreDeprecatedCode  bool     `mapstructure:"ignore_deprecated_code"`
	IncludeUncoveredFiles bool     `mapstructure:"include_uncovered_files"`
	VerbosityName         string   `mapstructure:"verbosity"`
	Workers               int      `mapstructure:"workers"`
}

// Load reads the configuration. An explicit configPath must exist; otherwise
// .phpcov.yaml is searched in the working directory and $HOME, and a missing
// file means defaults. Flags in flags that were set override file and
// environment values.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for _, key := range []string{"verbosity", "workers", "use_annotations", "ignore_deprecated_code", "include_uncovered_files"} {
			if f := flags.Lookup(strings.ReplaceAll(key, "_", "-")); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", f.Name, err)
				}
			}
		}
		for _, key := range []string{"source_directories", "suffixes", "file_filters"} {
			if f := flags.Lookup(strings.ReplaceAll(key, "_", "-")); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source_directories", []string{})
	v.SetDefault("suffixes", []string{".php"})
	v.SetDefault("file_filters", []string{})
	v.SetDefault("use_annotations", true)
	v.SetDefault("ignore_deprecated_code", false)
	v.SetDefault("include_uncovered_files", true)
	v.SetDefault("verbosity", DefaultVerbosity)
	v.SetDefault("workers", DefaultWorkers)
}

// Validate checks value ranges and that the file filters compile.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	}
	if _, err := logging.ParseVerbosity(c.VerbosityName); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidVerbosity, c.VerbosityName)
	}
	if len(c.Suffixes) == 0 {
		return ErrNoSuffixes
	}
	if _, err := filtering.NewFileFilter(c.FileFilters); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	return nil
}

// Verbosity returns the parsed verbosity level.
func (c *Config) Verbosity() logging.VerbosityLevel {
	level, _ := logging.ParseVerbosity(c.VerbosityName)
	return level
}

// Filter compiles the configured file filters.
func (c *Config) Filter() (*filtering.FileFilter, error) {
	return filtering.NewFileFilter(c.FileFilters)
}
