package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "1", cfg.Version)
	assert.Equal(t, "my-tram-app", cfg.Project.Name)
	assert.Equal(t, DriverPostgres, cfg.Repository.Driver)
	assert.Equal(t, "${DATABASE_URL}", cfg.Repository.URL)
	assert.Equal(t, "saga_instance", cfg.Repository.Table)
	assert.Equal(t, TransportNone, cfg.Transport.Kind)
	assert.Empty(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name       string
		modify     func(*Config)
		wantErrors int
	}{
		{
			name:       "memory driver",
			modify:     func(c *Config) { c.Repository.Driver = DriverMemory; c.Repository.URL = "" },
			wantErrors: 0,
		},
		{
			name:       "missing project name",
			modify:     func(c *Config) { c.Project.Name = "" },
			wantErrors: 1,
		},
		{
			name:       "missing driver",
			modify:     func(c *Config) { c.Repository.Driver = "" },
			wantErrors: 1,
		},
		{
			name:       "invalid driver",
			modify:     func(c *Config) { c.Repository.Driver = "mysql" },
			wantErrors: 1,
		},
		{
			name:       "postgres without URL or table",
			modify:     func(c *Config) { c.Repository.URL = ""; c.Repository.Table = "" },
			wantErrors: 2,
		},
		{
			name:       "kafka without brokers",
			modify:     func(c *Config) { c.Transport.Kind = TransportKafka },
			wantErrors: 1,
		},
		{
			name: "kafka with brokers",
			modify: func(c *Config) {
				c.Transport.Kind = TransportKafka
				c.Transport.Kafka.Brokers = []string{"localhost:9092"}
			},
			wantErrors: 0,
		},
		{
			name:       "rabbitmq without url",
			modify:     func(c *Config) { c.Transport.Kind = TransportRabbitMQ },
			wantErrors: 1,
		},
		{
			name:       "sns without prefix",
			modify:     func(c *Config) { c.Transport.Kind = TransportSNS },
			wantErrors: 1,
		},
		{
			name:       "webhook without base url",
			modify:     func(c *Config) { c.Transport.Kind = TransportWebhook },
			wantErrors: 1,
		},
		{
			name:       "unknown transport",
			modify:     func(c *Config) { c.Transport.Kind = "carrier-pigeon" },
			wantErrors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			errors := cfg.Validate()
			assert.Equal(t, tt.wantErrors, len(errors), "errors: %v", errors)
		})
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Project.Name = "orders"
	cfg.Transport.Kind = TransportRabbitMQ
	cfg.Transport.RabbitMQ.URL = "amqp://localhost"

	require.NoError(t, cfg.Save(tmpDir))
	_, err := os.Stat(filepath.Join(tmpDir, ConfigFileName))
	require.NoError(t, err)

	loaded, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("project: [unclosed"), 0644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestExists(t *testing.T) {
	tmpDir := t.TempDir()
	assert.False(t, Exists(tmpDir))

	require.NoError(t, DefaultConfig().Save(tmpDir))
	assert.True(t, Exists(tmpDir))
}

func TestFindConfig(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Project.Name = "root-project"
	require.NoError(t, cfg.Save(tmpDir))

	nested := filepath.Join(tmpDir, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0755))

	foundDir, foundCfg, err := FindConfig(nested)
	require.NoError(t, err)
	assert.Equal(t, tmpDir, foundDir)
	assert.Equal(t, "root-project", foundCfg.Project.Name)
}

func TestFindConfig_NotFound(t *testing.T) {
	_, _, err := FindConfig(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExpansion(t *testing.T) {
	t.Setenv("TRAM_TEST_DB", "postgres://db/orders")
	t.Setenv("TRAM_TEST_BROKERS", "k1:9092, k2:9092")
	t.Setenv("TRAM_TEST_AMQP", "amqp://mq")
	t.Setenv("TRAM_TEST_HOOKS", "https://hooks")

	cfg := DefaultConfig()
	cfg.Repository.URL = "${TRAM_TEST_DB}"
	cfg.Transport.Kafka.Brokers = []string{"${TRAM_TEST_BROKERS}", "k3:9092"}
	cfg.Transport.RabbitMQ.URL = "${TRAM_TEST_AMQP}"
	cfg.Transport.Webhook.BaseURL = "${TRAM_TEST_HOOKS}/tram"

	assert.Equal(t, "postgres://db/orders", cfg.DatabaseURL())
	assert.Equal(t, []string{"k1:9092", "k2:9092", "k3:9092"}, cfg.KafkaBrokers())
	assert.Equal(t, "amqp://mq", cfg.RabbitMQURL())
	assert.Equal(t, "https://hooks/tram", cfg.WebhookBaseURL())
}

func TestGenerateYAML(t *testing.T) {
	kinds := []func(*Config){
		func(c *Config) {},
		func(c *Config) {
			c.Repository.OutboxTable = "message"
			c.Repository.ReceivedTable = "received_messages"
		},
		func(c *Config) {
			c.Transport.Kind = TransportKafka
			c.Transport.Kafka.Brokers = []string{"localhost:9092"}
			c.Transport.Kafka.GroupID = "orders"
		},
		func(c *Config) {
			c.Transport.Kind = TransportRabbitMQ
			c.Transport.RabbitMQ.URL = "amqp://localhost"
			c.Transport.RabbitMQ.Exchange = "tram"
		},
		func(c *Config) {
			c.Transport.Kind = TransportSNS
			c.Transport.SNS.TopicPrefix = "arn:aws:sns:eu-west-1:1:"
		},
		func(c *Config) {
			c.Transport.Kind = TransportWebhook
			c.Transport.Webhook.BaseURL = "http://localhost:8080"
		},
	}

	for _, modify := range kinds {
		cfg := DefaultConfig()
		cfg.Project.Name = "test-app"
		cfg.Project.Module = "github.com/test/app"
		modify(cfg)

		out := GenerateYAML(cfg)
		assert.Contains(t, out, "# Tram Configuration File")

		var parsed Config
		require.NoError(t, yaml.Unmarshal([]byte(out), &parsed), out)
		assert.Equal(t, *cfg, parsed)
	}
}
