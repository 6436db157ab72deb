// Package config holds the process-wide configuration for the screening
// service. All list endpoints, HTTP client behavior, cache policy, and
// credentials are bound here at startup; nothing else in the codebase reads
// the environment directly.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig represents assessment store configuration
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
}

// RedisConfig represents the optional list snapshot store. An empty address
// disables snapshots.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ScreeningConfig represents match-engine policy
type ScreeningConfig struct {
	DefaultThreshold float64       `mapstructure:"default_threshold"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	FailureBackoff   time.Duration `mapstructure:"failure_backoff"`
}

// HTTPClientConfig represents outbound fetch behavior shared by the list
// clients. The sanctions list services reject requests without a descriptive
// User-Agent.
type HTTPClientConfig struct {
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// OFACConfig represents the Treasury Sanctions List Service endpoints
type OFACConfig struct {
	CSVURL         string `mapstructure:"csv_url"`
	XMLURL         string `mapstructure:"xml_url"`
	AdvancedXMLURL string `mapstructure:"advanced_xml_url"`
}

// EUConfig represents the EU FSF export endpoints. The token URLs are the
// edge-server workaround variants tried when the bare URL returns non-200.
type EUConfig struct {
	XMLURL      string `mapstructure:"xml_url"`
	XMLTokenURL string `mapstructure:"xml_token_url"`
	CSVURL      string `mapstructure:"csv_url"`
	CSVTokenURL string `mapstructure:"csv_token_url"`
}

// OpenSanctionsConfig represents the OpenSanctions API. With an API key the
// authenticated match endpoint is used; without one, the free public search.
type OpenSanctionsConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// Config represents the application configuration
type Config struct {
	LogLevel      string              `mapstructure:"log_level"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Screening     ScreeningConfig     `mapstructure:"screening"`
	HTTPClient    HTTPClientConfig    `mapstructure:"http_client"`
	OFAC          OFACConfig          `mapstructure:"ofac"`
	EU            EUConfig            `mapstructure:"eu"`
	OpenSanctions OpenSanctionsConfig `mapstructure:"opensanctions"`
}

// Load reads configuration from an optional config.yaml in the working
// directory and from SANCTIONSCAN_* environment variables, on top of
// defaults matching the public list endpoints.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	// Searches pay inline list-download latency on a cold cache, so the
	// write timeout must cover a full multi-megabyte export fetch.
	v.SetDefault("server.write_timeout", 180*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "sanctionscan.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 3600)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("screening.default_threshold", 0.7)
	v.SetDefault("screening.cache_ttl", 6*time.Hour)
	v.SetDefault("screening.failure_backoff", 5*time.Minute)

	v.SetDefault("http_client.user_agent", "sanctionscan/1.0 (+compliance@acuityrisk.example)")
	v.SetDefault("http_client.timeout", 120*time.Second)
	v.SetDefault("http_client.max_attempts", 3)
	v.SetDefault("http_client.retry_delay", 500*time.Millisecond)

	slsBase := "https://sanctionslistservice.ofac.treas.gov/api/PublicationPreview/exports"
	v.SetDefault("ofac.csv_url", slsBase+"/SDN.CSV")
	v.SetDefault("ofac.xml_url", slsBase+"/SDN.XML")
	v.SetDefault("ofac.advanced_xml_url", slsBase+"/SDN_ADVANCED.XML")

	fsfBase := "https://webgate.ec.europa.eu/fsd/fsf/public/files"
	v.SetDefault("eu.xml_url", fsfBase+"/xmlFullSanctionsList_1_1/content")
	v.SetDefault("eu.xml_token_url", fsfBase+"/xmlFullSanctionsList_1_1/content?token=dG9rZW4")
	v.SetDefault("eu.csv_url", fsfBase+"/csvFullSanctionsList_1_1/content")
	v.SetDefault("eu.csv_token_url", fsfBase+"/csvFullSanctionsList_1_1/content?token=dG9rZW4")

	v.SetDefault("opensanctions.base_url", "https://api.opensanctions.org")
	v.SetDefault("opensanctions.api_key", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("SANCTIONSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Screening.DefaultThreshold < 0 || cfg.Screening.DefaultThreshold > 1 {
		return nil, fmt.Errorf("screening.default_threshold must be in [0,1], got %v", cfg.Screening.DefaultThreshold)
	}

	return cfg, nil
}
