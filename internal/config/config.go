package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" envconfig:"SERVER"`
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	License     LicenseConfig     `yaml:"license" envconfig:"LICENSE"`
	Fingerprint FingerprintConfig `yaml:"fingerprint" envconfig:"FINGERPRINT"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" envconfig:"TELEMETRY"`
	Issuer      IssuerConfig      `yaml:"issuer" envconfig:"ISSUER"`
}

// ServerConfig contains the loopback bridge server configuration
type ServerConfig struct {
	Host             string        `yaml:"host" envconfig:"HOST"`
	Port             int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	CommitRatePerMin float64       `yaml:"commit_rate_per_min" envconfig:"COMMIT_RATE_PER_MIN"`
	CommitBurst      int           `yaml:"commit_burst" envconfig:"COMMIT_BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// LicenseConfig controls the license store and the verification capability.
// An empty Secret yields a format-only client.
type LicenseConfig struct {
	StorePath string `yaml:"store_path" envconfig:"STORE_PATH"`
	Secret    string `yaml:"secret" envconfig:"SECRET"`
	StoreKey  string `yaml:"store_key" envconfig:"STORE_KEY"`
	ScryptN   int    `yaml:"scrypt_n" envconfig:"SCRYPT_N"`
}

// FingerprintConfig tunes hardware queries
type FingerprintConfig struct {
	QueryTimeout time.Duration `yaml:"query_timeout" envconfig:"QUERY_TIMEOUT"`
	UseMachineID bool          `yaml:"use_machine_id" envconfig:"USE_MACHINE_ID"`
}

// TelemetryConfig selects OpenTelemetry exporters
type TelemetryConfig struct {
	TraceExporter string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"` // "stdout" or "none"
	EnableMetrics bool   `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
}

// IssuerConfig contains admin tool settings
type IssuerConfig struct {
	ExportDir  string   `yaml:"export_dir" envconfig:"EXPORT_DIR"`
	Formats    []string `yaml:"formats" envconfig:"FORMATS"`
	LedgerPath string   `yaml:"ledger_path" envconfig:"LEDGER_PATH"`
}

// Load loads configuration from defaults, an optional YAML file, an optional
// .env file and the process environment. Environment values win.
func Load() (*Config, error) {
	if _, err := os.Stat(DotEnvFile); err == nil {
		if err := godotenv.Load(DotEnvFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", DotEnvFile, err)
		}
	}

	cfg := Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays YAML values onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// SecretBytes decodes the issuing secret. A "hex:" prefix selects hex
// decoding; anything else is used verbatim. Returns nil when unset.
func (c *LicenseConfig) SecretBytes() ([]byte, error) {
	return DecodeSecret(c.Secret)
}

// DecodeSecret applies the secret encoding rules to raw
func DecodeSecret(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "hex:") {
		b, err := hex.DecodeString(strings.TrimPrefix(raw, "hex:"))
		if err != nil {
			return nil, fmt.Errorf("secret is not valid hex: %w", err)
		}
		return b, nil
	}
	return []byte(raw), nil
}

// Address returns host:port for the bridge listener
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.License.StorePath == "" {
		return fmt.Errorf("license store path must be set")
	}

	if _, err := c.License.SecretBytes(); err != nil {
		return err
	}

	if n := c.License.ScryptN; n < MinScryptN || n&(n-1) != 0 {
		return fmt.Errorf("license scrypt_n must be a power of two of at least %d, got %d", MinScryptN, n)
	}

	if c.Fingerprint.QueryTimeout <= 0 {
		return fmt.Errorf("fingerprint query timeout must be positive")
	}

	switch c.Telemetry.TraceExporter {
	case "stdout", "none":
	default:
		return fmt.Errorf("unknown trace exporter %q", c.Telemetry.TraceExporter)
	}

	for _, f := range c.Issuer.Formats {
		switch f {
		case "txt", "csv", "xlsx":
		default:
			return fmt.Errorf("unknown export format %q", f)
		}
	}

	// JSON is the only supported log format
	c.Logging.Format = "json"
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = DefaultLogFile
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG"); explicit != "" {
		return explicit
	}

	locations := []string{
		DefaultConfigFile,
		"configs/" + DefaultConfigFile,
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             DefaultHost,
			Port:             DefaultPort,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     15 * time.Second,
			IdleTimeout:      60 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			CommitRatePerMin: 10,
			CommitBurst:      3,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: DefaultLogFile,
		},
		License: LicenseConfig{
			StorePath: DefaultStoreFile,
			StoreKey:  DefaultStoreKey,
			ScryptN:   DefaultScryptN,
		},
		Fingerprint: FingerprintConfig{
			QueryTimeout: DefaultQueryTimeout,
		},
		Telemetry: TelemetryConfig{
			TraceExporter: "none",
			EnableMetrics: true,
		},
		Issuer: IssuerConfig{
			ExportDir: ".",
			Formats:   []string{"txt"},
		},
	}
}
