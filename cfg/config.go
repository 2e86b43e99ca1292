package cfg

import (
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// BrokerConfiguration controls the message-queue connection. TLS and
// credential options are passed through to the NATS client untouched.
type BrokerConfiguration struct {
	URL                string `toml:"url"`
	ConnectTimeoutMS   int    `toml:"connect_timeout_ms"`
	OperationTimeoutMS int    `toml:"operation_timeout_ms"`
	StreamMaxAgeHours  int    `toml:"stream_max_age_hours"`
	CredsFile          string `toml:"creds_file"`
	TLSCert            string `toml:"tls_cert"`
	TLSKey             string `toml:"tls_key"`
	TLSCA              string `toml:"tls_ca"`
	Username           string `toml:"username"`
	Password           string `toml:"password"`
}

// KafkaConfiguration for the optional Kafka fan-out destination
type KafkaConfiguration struct {
	Brokers   []string `toml:"brokers"`
	BatchSize int      `toml:"batch_size"`
}

// DatabaseConfiguration controls the relational database connection
type DatabaseConfiguration struct {
	Driver   string `toml:"driver"` // sqlite3, mysql, or postgres
	DSN      string `toml:"dsn"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// TransferConfiguration controls the batch transfer engine defaults;
// individual commands may override these with flags.
type TransferConfiguration struct {
	ExclusionFile    string `toml:"exclusion_file"`
	ContentExclusion bool   `toml:"content_exclusion"`
	FailedDir        string `toml:"failed_dir"`
	RetryDir         string `toml:"retry_dir"`
	Workers          int    `toml:"workers"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// AuditConfiguration controls the run-report sink. An empty path disables
// auditing entirely.
type AuditConfiguration struct {
	Path string `toml:"path"`
}

// PrometheusConfiguration for metrics during long-running transfers
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// Configuration is the main configuration structure
type Configuration struct {
	InstanceID string `toml:"instance_id"` // auto-generated when empty

	Broker     BrokerConfiguration     `toml:"broker"`
	Kafka      KafkaConfiguration      `toml:"kafka"`
	Database   DatabaseConfiguration   `toml:"database"`
	Transfer   TransferConfiguration   `toml:"transfer"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Audit      AuditConfiguration      `toml:"audit"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Default configuration
var Config = &Configuration{
	Broker: BrokerConfiguration{
		URL:                "nats://localhost:4222",
		ConnectTimeoutMS:   5000,
		OperationTimeoutMS: 5000,
		StreamMaxAgeHours:  24,
	},

	Kafka: KafkaConfiguration{
		BatchSize: 100,
	},

	Database: DatabaseConfiguration{
		Driver: "sqlite3",
	},

	Transfer: TransferConfiguration{
		Workers: 1,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: false,
		Address: "0.0.0.0",
		Port:    9473,
	},
}

// Load loads configuration from a TOML file when present; defaults apply
// otherwise. Command flags override loaded values afterwards.
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Debug().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Debug().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if Config.InstanceID == "" {
		id, err := generateInstanceID()
		if err != nil {
			return fmt.Errorf("failed to generate instance ID: %w", err)
		}
		Config.InstanceID = id
	}

	return nil
}

// generateInstanceID derives a stable identifier from the machine ID. It
// names the broker connection and tags audit records.
func generateInstanceID() (string, error) {
	id, err := machineid.ProtectedID("shovel")
	if err != nil {
		return "", err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return fmt.Sprintf("shovel-%x", h.Sum64()), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Broker.URL == "" {
		return fmt.Errorf("broker url must not be empty")
	}

	if Config.Broker.ConnectTimeoutMS < 1 {
		return fmt.Errorf("broker connect timeout must be >= 1ms")
	}

	if Config.Broker.OperationTimeoutMS < 1 {
		return fmt.Errorf("broker operation timeout must be >= 1ms")
	}

	switch Config.Database.Driver {
	case "", "sqlite3", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", Config.Database.Driver)
	}

	if Config.Transfer.Workers < 1 {
		return fmt.Errorf("transfer workers must be >= 1")
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}

	if Config.Prometheus.Enabled && (Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", Config.Prometheus.Port)
	}

	return nil
}
