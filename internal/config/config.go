// Package config loads engine configuration from a file, environment
// variables, and defaults, in that order of precedence via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full engine configuration.
type Config struct {
	Crawl   Crawl   `mapstructure:"crawl"`
	Browser Browser `mapstructure:"browser"`
	Output  Output  `mapstructure:"output"`
	Metrics Metrics `mapstructure:"metrics"`
	Logging Logging `mapstructure:"logging"`
}

// Crawl controls run execution and the retry machine.
type Crawl struct {
	Concurrency    int           `mapstructure:"concurrency"`
	URLTemplate    string        `mapstructure:"url_template"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
	InflightGrace  time.Duration `mapstructure:"inflight_grace"`
	Resume         string        `mapstructure:"resume"`
}

// Browser controls navigation behavior.
type Browser struct {
	Headless          bool          `mapstructure:"headless"`
	Static            bool          `mapstructure:"static"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ScrollUntilEnd    bool          `mapstructure:"scroll_until_end"`
	MaxScrolls        int           `mapstructure:"max_scrolls"`
	QPS               float64       `mapstructure:"qps"`
}

// Output controls the CSV result files.
type Output struct {
	InputCSV      string `mapstructure:"input_csv"`
	OutputFile    string `mapstructure:"output_file"`
	ExportNewOnly bool   `mapstructure:"export_new_only"`
	NewOnlyFile   string `mapstructure:"new_only_file"`
}

// Metrics controls the optional scrape endpoint. Empty ListenAddr disables
// it.
type Metrics struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Logging controls log output.
type Logging struct {
	Development bool `mapstructure:"development"`
}

// Load reads configuration. When path is empty, a config file named
// "config" is searched in the working directory, $HOME/.curatorscan, and
// /etc/curatorscan/; a missing file is fine and defaults plus CURATORSCAN_*
// environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.curatorscan")
		v.AddConfigPath("/etc/curatorscan/")
	}

	v.SetEnvPrefix("CURATORSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.url_template", "https://store.steampowered.com/curators/%s/")
	v.SetDefault("crawl.max_attempts", 3)
	v.SetDefault("crawl.retry_base_delay", "2s")
	v.SetDefault("crawl.retry_max_delay", "30s")
	v.SetDefault("crawl.inflight_grace", "45s")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.static", false)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.scroll_until_end", false)
	v.SetDefault("browser.max_scrolls", 20)
	v.SetDefault("browser.qps", 1.0)

	v.SetDefault("output.input_csv", "")
	v.SetDefault("output.output_file", "curators.csv")
	v.SetDefault("output.export_new_only", false)
	v.SetDefault("output.new_only_file", "")

	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("logging.development", false)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be positive, got %d", c.Crawl.Concurrency)
	}
	if c.Crawl.MaxAttempts <= 0 {
		return fmt.Errorf("crawl.max_attempts must be positive, got %d", c.Crawl.MaxAttempts)
	}
	if c.Crawl.URLTemplate != "" && !strings.Contains(c.Crawl.URLTemplate, "%s") {
		return fmt.Errorf("crawl.url_template must contain %%s, got %q", c.Crawl.URLTemplate)
	}
	if c.Browser.QPS < 0 {
		return fmt.Errorf("browser.qps must not be negative, got %v", c.Browser.QPS)
	}
	if c.Output.OutputFile == "" {
		return errors.New("output.output_file must not be empty")
	}
	if c.Output.ExportNewOnly && c.Output.NewOnlyFile == "" {
		return errors.New("output.new_only_file required when export_new_only is set")
	}
	return nil
}
