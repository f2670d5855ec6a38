package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/tordrt/dbintegrity/internal/db"
	"github.com/tordrt/dbintegrity/internal/definition"
	"github.com/tordrt/dbintegrity/internal/lock"
)

const EnvPrefix = "DBINTEGRITY"

var envKeys = []string{"database.url", "database.schema", "lock.path", "log.level", "log.format"}

type Config struct {
	Database Database            `mapstructure:"database" yaml:"database"`
	Sources  []definition.Source `mapstructure:"sources" yaml:"sources"`
	Lock     Lock                `mapstructure:"lock" yaml:"lock"`
	Log      Log                 `mapstructure:"log" yaml:"log"`
}

type Database struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Schema string `mapstructure:"schema" yaml:"schema"`
	// Connections holds additional named connection URLs
	Connections map[string]string `mapstructure:"connections" yaml:"connections"`
	// TableMapping routes tables to a named connection
	TableMapping map[string]string `mapstructure:"table_mapping" yaml:"table_mapping"`
}

type Lock struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("lock.path", lock.DefaultPath)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the optional config file and the environment into a Config
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading from config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper knows about
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("cannot bind environment variable for %s: %w", key, err)
		}
	}

	decoderCfg := func(cfg *mapstructure.DecoderConfig) {
		cfg.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, decoderCfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings needed for a reconciliation run
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	} else if _, _, err := db.ParseDatabaseURL(c.Database.URL); err != nil {
		errs = append(errs, fmt.Errorf("database.url: %w", err))
	}
	for name, url := range c.Database.Connections {
		if name == db.DefaultConnection {
			errs = append(errs, fmt.Errorf("database.connections: %q is reserved for database.url", name))
			continue
		}
		if _, _, err := db.ParseDatabaseURL(url); err != nil {
			errs = append(errs, fmt.Errorf("database.connections.%s: %w", name, err))
		}
	}
	for table, name := range c.Database.TableMapping {
		if _, ok := c.Database.Connections[name]; !ok && name != db.DefaultConnection {
			errs = append(errs, fmt.Errorf("database.table_mapping.%s: unknown connection %q", table, name))
		}
	}
	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("at least one definition source is required"))
	}
	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		switch {
		case src.Key == "":
			errs = append(errs, fmt.Errorf("sources[%d]: key is required", i))
		case seen[src.Key]:
			errs = append(errs, fmt.Errorf("sources[%d]: duplicate key %q", i, src.Key))
		}
		if src.Path == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: path is required", i))
		}
		seen[src.Key] = true
	}
	return errors.Join(errs...)
}
