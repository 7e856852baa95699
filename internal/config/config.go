package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Extraction APIConfig       `mapstructure:"extraction"`
	Reports    APIConfig       `mapstructure:"reports"`
	Auth       AuthConfig      `mapstructure:"auth"`
	Tracker    TrackerConfig   `mapstructure:"tracker"`
	Simulator  SimulatorConfig `mapstructure:"simulator"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// APIConfig points a REST client at one of the host services.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuthConfig holds the bearer token sent by clients and, when non-empty,
// required by the development server.
type AuthConfig struct {
	Token string `mapstructure:"token"`
}

type TrackerConfig struct {
	StatusCheckInterval time.Duration `mapstructure:"status_check_interval"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
}

// SimulatorConfig drives the development server's fake run progress.
type SimulatorConfig struct {
	QueuedFor   time.Duration `mapstructure:"queued_for"`
	RunningFor  time.Duration `mapstructure:"running_for"`
	FailIModels []string      `mapstructure:"fail_imodels"`
	PageSize    int           `mapstructure:"page_size"` // mappings per Reports API page
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.BindEnv("auth.token", "ACCESS_TOKEN")
	v.BindEnv("extraction.base_url", "EXTRACTION_API_URL")
	v.BindEnv("reports.base_url", "REPORTS_API_URL")
	v.BindEnv("database.dsn", "DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/extractions.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("extraction.base_url", "http://localhost:8090/insights/reporting")
	v.SetDefault("extraction.timeout", 30*time.Second)
	v.SetDefault("reports.base_url", "http://localhost:8090/insights/reporting")
	v.SetDefault("reports.timeout", 30*time.Second)
	v.SetDefault("auth.token", "")
	v.SetDefault("tracker.status_check_interval", 5*time.Second)
	v.SetDefault("tracker.poll_interval", 2*time.Second)
	v.SetDefault("simulator.queued_for", 3*time.Second)
	v.SetDefault("simulator.running_for", 10*time.Second)
	v.SetDefault("simulator.fail_imodels", []string{})
	v.SetDefault("simulator.page_size", 100)
}

// Validate rejects settings the tracker cannot work with.
func (c *Config) Validate() error {
	if c.Extraction.BaseURL == "" {
		return fmt.Errorf("extraction.base_url is required")
	}
	if c.Reports.BaseURL == "" {
		return fmt.Errorf("reports.base_url is required")
	}
	if c.Tracker.StatusCheckInterval < 0 || c.Tracker.PollInterval < 0 {
		return fmt.Errorf("tracker intervals must not be negative")
	}
	if c.Simulator.QueuedFor < 0 || c.Simulator.RunningFor < 0 {
		return fmt.Errorf("simulator durations must not be negative")
	}
	if c.Simulator.PageSize < 0 {
		return fmt.Errorf("simulator.page_size must not be negative")
	}
	return nil
}
