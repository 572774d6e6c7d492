package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jensholdgaard/auctionroom/internal/domain"
)

// Config represents the application configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Auction        AuctionConfig        `yaml:"auction"`
	Limits         domain.Limits        `yaml:"limits"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
}

// ServerConfig holds the TCP listener and health endpoint settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	HealthPort      int           `yaml:"health_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds snapshot persistence settings. Driver selects the
// registered store driver: "file" keeps the four snapshot files under Dir,
// "postgres" stores the snapshot in Postgres.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Dir      string `yaml:"dir"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// AuctionConfig holds lifecycle timing settings.
type AuctionConfig struct {
	// SweepInterval is how often the lifecycle driver scans auctions and rooms.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// SnipeWindow is the anti-snipe threshold and extension length.
	SnipeWindow time.Duration `yaml:"snipe_window"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Defaults returns the configuration the server runs with when the file
// omits a section.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8888,
			HealthPort:      8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  "file",
			Dir:     "data",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Auction: AuctionConfig{
			SweepInterval: 5 * time.Second,
			SnipeWindow:   30 * time.Second,
		},
		Limits: domain.DefaultLimits(),
		Telemetry: TelemetryConfig{
			ServiceName:    "auctiond",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "auctiond-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
	}
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "file", "postgres":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"file\" or \"postgres\"", c.Database.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Auction.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", c.Auction.SweepInterval)
	}
	if c.Auction.SnipeWindow <= 0 {
		return fmt.Errorf("snipe_window must be positive, got %s", c.Auction.SnipeWindow)
	}
	if c.Limits.MaxUsers <= 0 || c.Limits.MaxRooms <= 0 || c.Limits.MaxAuctions <= 0 || c.Limits.MaxBids <= 0 {
		return fmt.Errorf("limits must all be positive: %+v", c.Limits)
	}
	return nil
}
