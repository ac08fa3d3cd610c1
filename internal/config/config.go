package config

import (
	"errors"
	"fmt"
	"strings"

	"imss/harvester/internal/domain"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

// SourceConfig holds the procurement portal connection settings
type SourceConfig struct {
	BaseURL              string   `mapstructure:"base_url"`
	Timeout              int      `mapstructure:"timeout"`
	MaxRetries           int      `mapstructure:"max_retries"`
	MaxRequestsPerSecond int      `mapstructure:"max_requests_per_second"`
	CircuitBreakerDelay  int      `mapstructure:"circuit_breaker_delay"`
	UserAgent            string   `mapstructure:"user_agent"`
	Proxies              []string `mapstructure:"proxies"`
	ProxyTestURL         string   `mapstructure:"proxy_test_url"`
}

// HarvestConfig holds the run settings. CLI flags override it.
type HarvestConfig struct {
	Years     []string `mapstructure:"years"`
	StartFrom []string `mapstructure:"start_from"`
	Output    string   `mapstructure:"output"`
	OutputDir string   `mapstructure:"output_dir"`
	Verbose   bool     `mapstructure:"verbose"`

	// Pause between listing pages, in milliseconds. 0 disables it.
	DelayMin int `mapstructure:"delay_min"`
	DelayMax int `mapstructure:"delay_max"`
}

// DatabaseConfig holds the optional Postgres mirror
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// RedisConfig holds Redis connection details for progress and the failure queue
type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	MinIdleTime   int    `mapstructure:"min_idle_time"`
	ReadBlock     int    `mapstructure:"read_block"`
}

// LogConfig holds logrus settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the YAML file at path, or config.yaml in the working directory
// when path is empty, with environment variable overrides. A missing
// default file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "http://compras.imss.gob.mx")
	v.SetDefault("source.timeout", 60)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.max_requests_per_second", 2)
	v.SetDefault("source.circuit_breaker_delay", 30)
	v.SetDefault("source.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("source.proxies", []string{})
	v.SetDefault("source.proxy_test_url", "http://compras.imss.gob.mx/?P=imsscomprotipoprod")

	v.SetDefault("harvest.years", []string{})
	v.SetDefault("harvest.start_from", []string{})
	v.SetDefault("harvest.output", string(domain.OutputStdout))
	v.SetDefault("harvest.output_dir", "./output")
	v.SetDefault("harvest.verbose", false)
	v.SetDefault("harvest.delay_min", 1000)
	v.SetDefault("harvest.delay_max", 2000)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "imss")
	v.SetDefault("database.user", "imss_user")
	v.SetDefault("database.password", "imss_pass")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.consumer_group", "imss_harvester")
	v.SetDefault("redis.min_idle_time", 120)
	v.SetDefault("redis.read_block", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks the settings a run depends on
func (c *Config) Validate() error {
	var errs []error

	if c.Source.BaseURL == "" {
		errs = append(errs, errors.New("source.base_url is required"))
	}
	if c.Source.MaxRequestsPerSecond < 0 {
		errs = append(errs, errors.New("source.max_requests_per_second must not be negative"))
	}
	if !domain.OutputMode(c.Harvest.Output).Valid() {
		errs = append(errs, fmt.Errorf("harvest.output must be %q or %q, got %q",
			domain.OutputStdout, domain.OutputFile, c.Harvest.Output))
	}
	if len(c.Harvest.StartFrom) > 3 {
		errs = append(errs, fmt.Errorf("harvest.start_from takes at most 3 ids, got %d", len(c.Harvest.StartFrom)))
	}
	if c.Harvest.DelayMin < 0 || c.Harvest.DelayMax < 0 {
		errs = append(errs, errors.New("harvest delays must not be negative"))
	}
	if c.Harvest.DelayMax > 0 && c.Harvest.DelayMin > c.Harvest.DelayMax {
		errs = append(errs, fmt.Errorf("harvest.delay_min (%d) is above harvest.delay_max (%d)",
			c.Harvest.DelayMin, c.Harvest.DelayMax))
	}

	return errors.Join(errs...)
}

// RunConfig builds the immutable run settings from the harvest section
func (c *Config) RunConfig(continueRun bool) domain.RunConfig {
	return domain.RunConfig{
		Periods:   append([]string(nil), c.Harvest.Years...),
		StartFrom: append([]string(nil), c.Harvest.StartFrom...),
		Output:    domain.OutputMode(c.Harvest.Output),
		Verbose:   c.Harvest.Verbose,
		Continue:  continueRun,
	}
}
