// Package config provides configuration management for the stackpilot
// deployment orchestrator.
//
// Configuration is loaded from multiple sources with proper precedence
// (later sources override earlier ones):
//  1. Default values (SetConfigDefaults)
//  2. Configuration file (./stackpilot.yaml, ./configs/stackpilot.yaml,
//     ~/.stackpilot/stackpilot.yaml, /etc/stackpilot/stackpilot.yaml)
//  3. Environment variables with the STACKPILOT_ prefix
//
// Every recognized key has a default except the database credentials:
// a run aborts before any unit is started when database.password or
// database.super_password is missing.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfig is the base error for configuration problems. All validation
// failures wrap it so callers can classify them with errors.Is.
var ErrConfig = errors.New("configuration error")

// DeploymentConfig identifies the deployment and its local state.
type DeploymentConfig struct {
	// Name prefixes every container, network and volume of this deployment
	Name string `mapstructure:"name"`

	// Hostname is the public hostname served by the edge proxy
	Hostname string `mapstructure:"hostname"`

	// StateDir holds generated artifacts (init SQL, exporter env, edge config)
	StateDir string `mapstructure:"state_dir"`

	// DockerHost overrides the Docker engine socket (empty: from environment)
	DockerHost string `mapstructure:"docker_host"`
}

// DatabaseConfig contains the PostgreSQL unit and provisioning settings.
type DatabaseConfig struct {
	// Image is the PostgreSQL image pin
	Image string `mapstructure:"image"`

	// Name is the application database to provision
	Name string `mapstructure:"name"`

	// User is the primary application role
	User string `mapstructure:"user"`

	// Password is the primary role credential (required, no default)
	Password string `mapstructure:"password"`

	// SuperUser is the PostgreSQL superuser
	SuperUser string `mapstructure:"super_user"`

	// SuperPassword is the superuser credential (required, no default)
	SuperPassword string `mapstructure:"super_password"`

	// Port is the host port mapped to 5432
	Port int `mapstructure:"port"`

	// Extensions are installed during provisioning, each independently
	// failure-tolerant
	Extensions []string `mapstructure:"extensions"`

	// HealthTimeout bounds the wait for the database to report healthy
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
}

// AppConfig contains the application unit settings.
type AppConfig struct {
	// Image is the application image pin
	Image string `mapstructure:"image"`

	// Port is the application's HTTP port inside the network
	Port int `mapstructure:"port"`

	// HealthPath is probed by the container healthcheck
	HealthPath string `mapstructure:"health_path"`

	// AdminUser is the application dashboard admin account
	AdminUser string `mapstructure:"admin_user"`

	// AdminPassword is the application dashboard admin credential
	AdminPassword string `mapstructure:"admin_password"`

	// HealthTimeout bounds the wait for the application to warm up;
	// expiry degrades the run instead of aborting it
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
}

// EdgeConfig contains the reverse-proxy unit settings.
type EdgeConfig struct {
	// Image is the proxy image pin
	Image string `mapstructure:"image"`

	// HTTPPort is the host port the deployment is reached on
	HTTPPort int `mapstructure:"http_port"`
}

// MonitoringConfig contains the metrics exporter and dashboard settings.
type MonitoringConfig struct {
	// ExporterImage is the postgres-exporter image pin
	ExporterImage string `mapstructure:"exporter_image"`

	// MetricsUser is the read-only monitoring role provisioned in PostgreSQL
	MetricsUser string `mapstructure:"metrics_user"`

	// MetricsPassword is the monitoring role credential
	MetricsPassword string `mapstructure:"metrics_password"`

	// GrafanaImage is the dashboard image pin
	GrafanaImage string `mapstructure:"grafana_image"`

	// GrafanaPort is the host port for the dashboard
	GrafanaPort int `mapstructure:"grafana_port"`

	// GrafanaAdminUser is the dashboard admin account
	GrafanaAdminUser string `mapstructure:"grafana_admin_user"`

	// GrafanaAdminPassword is the dashboard admin credential
	GrafanaAdminPassword string `mapstructure:"grafana_admin_password"`

	// StartupPause is the fixed pause between monitoring unit starts
	StartupPause time.Duration `mapstructure:"startup_pause"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Format is the log format (json, text)
	Format string `mapstructure:"format"`
}

// Config is the complete stackpilot configuration.
type Config struct {
	Deployment DeploymentConfig `mapstructure:"deployment"`
	Database   DatabaseConfig   `mapstructure:"database"`
	App        AppConfig        `mapstructure:"app"`
	Edge       EdgeConfig       `mapstructure:"edge"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// Loader provides configuration loading functionality.
type Loader struct {
	v      *viper.Viper
	prefix string
}

// NewLoader creates a new configuration loader with the given environment
// prefix (e.g. "STACKPILOT" -> "STACKPILOT_DATABASE_PASSWORD").
func NewLoader(envPrefix string) *Loader {
	return &Loader{
		v:      viper.New(),
		prefix: envPrefix,
	}
}

// SetConfigDefaults sets the standard stackpilot defaults. Credentials
// deliberately have no default.
func (l *Loader) SetConfigDefaults() {
	l.v.SetDefault("deployment.name", "stackpilot")
	l.v.SetDefault("deployment.hostname", "localhost")
	l.v.SetDefault("deployment.state_dir", ".stackpilot")
	l.v.SetDefault("deployment.docker_host", "")

	l.v.SetDefault("database.image", "postgres:17")
	l.v.SetDefault("database.name", "app")
	l.v.SetDefault("database.user", "app")
	l.v.SetDefault("database.super_user", "postgres")
	l.v.SetDefault("database.port", 5432)
	l.v.SetDefault("database.extensions", []string{"pg_stat_statements", "pgcrypto", "pg_trgm"})
	l.v.SetDefault("database.health_timeout", "3m")

	l.v.SetDefault("app.image", "ghcr.io/stackpilot/app:latest")
	l.v.SetDefault("app.port", 8080)
	l.v.SetDefault("app.health_path", "/healthz")
	l.v.SetDefault("app.admin_user", "admin")
	l.v.SetDefault("app.admin_password", "admin")
	l.v.SetDefault("app.health_timeout", "10m")

	l.v.SetDefault("edge.image", "nginx:1.27-alpine")
	l.v.SetDefault("edge.http_port", 80)

	l.v.SetDefault("monitoring.exporter_image", "prometheuscommunity/postgres-exporter:v0.16.0")
	l.v.SetDefault("monitoring.metrics_user", "metrics")
	l.v.SetDefault("monitoring.metrics_password", "metrics")
	l.v.SetDefault("monitoring.grafana_image", "grafana/grafana:11.4.0")
	l.v.SetDefault("monitoring.grafana_port", 3000)
	l.v.SetDefault("monitoring.grafana_admin_user", "admin")
	l.v.SetDefault("monitoring.grafana_admin_password", "admin")
	l.v.SetDefault("monitoring.startup_pause", "5s")

	l.v.SetDefault("logging.level", "info")
	l.v.SetDefault("logging.format", "text")
}

// Load reads configuration from file and environment variables into target.
// If cfgFile is empty, standard locations are searched; a missing config
// file is not an error since every non-credential key has a default.
func (l *Loader) Load(cfgFile string, target *Config) error {
	if cfgFile != "" {
		l.v.SetConfigFile(cfgFile)
	} else {
		l.v.SetConfigName("stackpilot")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		l.v.AddConfigPath("./configs")
		l.v.AddConfigPath("$HOME/.stackpilot")
		l.v.AddConfigPath("/etc/stackpilot")
	}

	l.v.SetEnvPrefix(l.prefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// An explicitly named file must exist.
			if cfgFile != "" {
				return fmt.Errorf("%w: reading %s: %v", ErrConfig, cfgFile, err)
			}
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}

	if err := l.v.Unmarshal(target); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", ErrConfig, err)
	}
	return nil
}

// LoadConfig is the convenience entry point: defaults, file, environment,
// then validation.
func LoadConfig(cfgFile string) (*Config, error) {
	loader := NewLoader("STACKPILOT")
	loader.SetConfigDefaults()

	var cfg Config
	if err := loader.Load(cfgFile, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that required values are present. It is called before any
// stage runs so a bad configuration has zero side effects.
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("%w: database.password is required", ErrConfig)
	}
	if c.Database.SuperPassword == "" {
		return fmt.Errorf("%w: database.super_password is required", ErrConfig)
	}
	if c.Deployment.Name == "" {
		return fmt.Errorf("%w: deployment.name must not be empty", ErrConfig)
	}
	if strings.ContainsAny(c.Deployment.Name, " /") {
		return fmt.Errorf("%w: deployment.name must not contain spaces or slashes", ErrConfig)
	}
	if c.Database.HealthTimeout <= 0 {
		return fmt.Errorf("%w: database.health_timeout must be positive", ErrConfig)
	}
	if c.App.HealthTimeout <= 0 {
		return fmt.Errorf("%w: app.health_timeout must be positive", ErrConfig)
	}
	return nil
}

// UnitName returns the container name for a unit of this deployment.
func (c *Config) UnitName(unit string) string {
	return c.Deployment.Name + "-" + unit
}

// NetworkName returns the Docker network name for this deployment.
func (c *Config) NetworkName() string {
	return c.Deployment.Name + "-net"
}

// DSN builds a PostgreSQL connection string for the given role against the
// host-mapped database port.
func (c *Config) DSN(user, password string) string {
	return fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, c.Database.Port, c.Database.Name)
}
