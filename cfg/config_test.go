package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetConfig() {
	Config = &Configuration{
		Broker: BrokerConfiguration{
			URL:                "nats://localhost:4222",
			ConnectTimeoutMS:   5000,
			OperationTimeoutMS: 5000,
			StreamMaxAgeHours:  24,
		},
		Database: DatabaseConfiguration{Driver: "sqlite3"},
		Transfer: TransferConfiguration{Workers: 1},
		Logging:  LoggingConfiguration{Format: "console"},
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	resetConfig()
	defer resetConfig()

	require.NoError(t, Load(filepath.Join(t.TempDir(), "missing.toml")))

	assert.Equal(t, "nats://localhost:4222", Config.Broker.URL)
	assert.NotEmpty(t, Config.InstanceID)
}

func TestLoadFromFile(t *testing.T) {
	resetConfig()
	defer resetConfig()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[broker]
url = "nats://broker.internal:4222"
operation_timeout_ms = 2500

[database]
driver = "postgres"
dsn = "host=db sslmode=disable"

[transfer]
exclusion_file = "/etc/shovel/exclusions.txt"
workers = 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, Load(path))

	assert.Equal(t, "nats://broker.internal:4222", Config.Broker.URL)
	assert.Equal(t, 2500, Config.Broker.OperationTimeoutMS)
	assert.Equal(t, "postgres", Config.Database.Driver)
	assert.Equal(t, "/etc/shovel/exclusions.txt", Config.Transfer.ExclusionFile)
	assert.Equal(t, 4, Config.Transfer.Workers)
}

func TestValidate(t *testing.T) {
	resetConfig()
	defer resetConfig()

	require.NoError(t, Validate())

	Config.Database.Driver = "oracle"
	assert.Error(t, Validate())
	Config.Database.Driver = "sqlite3"

	Config.Transfer.Workers = 0
	assert.Error(t, Validate())
	Config.Transfer.Workers = 1

	Config.Logging.Format = "xml"
	assert.Error(t, Validate())
	Config.Logging.Format = "json"

	require.NoError(t, Validate())
}

func TestValidateBrokerURLRequired(t *testing.T) {
	resetConfig()
	defer resetConfig()

	Config.Broker.URL = ""
	assert.Error(t, Validate())
}
