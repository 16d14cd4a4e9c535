// Package config loads and writes tram.yaml, the configuration of the tram CLI.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Repository drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Transport kinds.
const (
	TransportNone     = "none"
	TransportKafka    = "kafka"
	TransportRabbitMQ = "rabbitmq"
	TransportSNS      = "sns"
	TransportWebhook  = "webhook"
)

// Config represents the tram CLI configuration
type Config struct {
	// Version of the config file format
	Version string `yaml:"version"`

	Project    ProjectConfig    `yaml:"project"`
	Repository RepositoryConfig `yaml:"repository"`
	Transport  TransportConfig  `yaml:"transport"`
}

// ProjectConfig contains project-level settings
type ProjectConfig struct {
	Name   string `yaml:"name"`
	Module string `yaml:"module,omitempty"`
}

// RepositoryConfig selects where saga instances are stored.
type RepositoryConfig struct {
	// Driver is postgres or memory
	Driver string `yaml:"driver"`

	// URL is the database connection string. ${VAR} references are expanded.
	URL string `yaml:"url,omitempty"`

	Schema string `yaml:"schema"`
	Table  string `yaml:"table"`

	// OutboxTable and ReceivedTable name the optional outbox and
	// duplicate detection tables. Empty leaves them out of migrations.
	OutboxTable   string `yaml:"outbox_table,omitempty"`
	ReceivedTable string `yaml:"received_table,omitempty"`
}

// TransportConfig selects the broker carrying commands and replies.
type TransportConfig struct {
	Kind     string         `yaml:"kind"`
	Kafka    KafkaConfig    `yaml:"kafka,omitempty"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq,omitempty"`
	SNS      SNSConfig      `yaml:"sns,omitempty"`
	Webhook  WebhookConfig  `yaml:"webhook,omitempty"`
}

// KafkaConfig configures the Kafka transport.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers,omitempty"`
	GroupID string   `yaml:"group_id,omitempty"`
}

// RabbitMQConfig configures the RabbitMQ transport.
type RabbitMQConfig struct {
	URL      string `yaml:"url,omitempty"`
	Exchange string `yaml:"exchange,omitempty"`
}

// SNSConfig configures the SNS transport.
type SNSConfig struct {
	TopicPrefix    string `yaml:"topic_prefix,omitempty"`
	MessageGroupID string `yaml:"message_group_id,omitempty"`
}

// WebhookConfig configures the webhook transport.
type WebhookConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Project: ProjectConfig{
			Name: "my-tram-app",
		},
		Repository: RepositoryConfig{
			Driver: DriverPostgres,
			URL:    "${DATABASE_URL}",
			Schema: "public",
			Table:  "saga_instance",
		},
		Transport: TransportConfig{
			Kind: TransportNone,
		},
	}
}

// ConfigFileName is the default config file name
const ConfigFileName = "tram.yaml"

// Load loads configuration from the specified directory
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile loads configuration from a specific file path
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save saves the configuration to the specified directory
func (c *Config) Save(dir string) error {
	return c.SaveFile(filepath.Join(dir, ConfigFileName))
}

// SaveFile saves the configuration to a specific file path
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Exists checks if a config file exists in the directory
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindConfig searches for a config file starting from dir and going up
func FindConfig(dir string) (string, *Config, error) {
	current := dir
	for {
		configPath := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			cfg, err := LoadFile(configPath)
			if err != nil {
				return "", nil, err
			}
			return current, cfg, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", nil, os.ErrNotExist
		}
		current = parent
	}
}

// DatabaseURL returns the repository URL with environment references expanded.
func (c *Config) DatabaseURL() string {
	return os.ExpandEnv(c.Repository.URL)
}

// KafkaBrokers returns the Kafka brokers with environment references expanded.
// A single entry may hold a comma-separated list.
func (c *Config) KafkaBrokers() []string {
	var brokers []string
	for _, b := range c.Transport.Kafka.Brokers {
		for _, part := range strings.Split(os.ExpandEnv(b), ",") {
			if part = strings.TrimSpace(part); part != "" {
				brokers = append(brokers, part)
			}
		}
	}
	return brokers
}

// RabbitMQURL returns the AMQP URL with environment references expanded.
func (c *Config) RabbitMQURL() string {
	return os.ExpandEnv(c.Transport.RabbitMQ.URL)
}

// WebhookBaseURL returns the webhook base URL with environment references expanded.
func (c *Config) WebhookBaseURL() string {
	return os.ExpandEnv(c.Transport.Webhook.BaseURL)
}

// Validate validates the configuration
func (c *Config) Validate() []string {
	var errors []string

	if c.Project.Name == "" {
		errors = append(errors, "project.name is required")
	}

	switch c.Repository.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Repository.URL == "" {
			errors = append(errors, "repository.url is required for postgres driver")
		}
		if c.Repository.Table == "" {
			errors = append(errors, "repository.table is required for postgres driver")
		}
	case "":
		errors = append(errors, "repository.driver is required")
	default:
		errors = append(errors, "repository.driver must be 'postgres' or 'memory'")
	}

	switch c.Transport.Kind {
	case "", TransportNone:
	case TransportKafka:
		if len(c.Transport.Kafka.Brokers) == 0 {
			errors = append(errors, "transport.kafka.brokers is required for kafka transport")
		}
	case TransportRabbitMQ:
		if c.Transport.RabbitMQ.URL == "" {
			errors = append(errors, "transport.rabbitmq.url is required for rabbitmq transport")
		}
	case TransportSNS:
		if c.Transport.SNS.TopicPrefix == "" {
			errors = append(errors, "transport.sns.topic_prefix is required for sns transport")
		}
	case TransportWebhook:
		if c.Transport.Webhook.BaseURL == "" {
			errors = append(errors, "transport.webhook.base_url is required for webhook transport")
		}
	default:
		errors = append(errors, "transport.kind must be one of none, kafka, rabbitmq, sns, webhook")
	}

	return errors
}

// GenerateYAML generates YAML content with comments
func GenerateYAML(cfg *Config) string {
	var b strings.Builder
	b.WriteString(`# Tram Configuration File
# This file configures the tram CLI

version: "1"

# Project settings
project:
  name: "` + cfg.Project.Name + `"
`)
	if cfg.Project.Module != "" {
		b.WriteString(`  module: "` + cfg.Project.Module + `"
`)
	}

	b.WriteString(`
# Saga instance storage
repository:
  # Driver: postgres or memory
  driver: "` + cfg.Repository.Driver + `"

  # Connection URL (postgres only); ${VAR} is expanded from the environment
  url: "` + cfg.Repository.URL + `"

  schema: "` + cfg.Repository.Schema + `"
  table: "` + cfg.Repository.Table + `"
`)
	if cfg.Repository.OutboxTable != "" {
		b.WriteString(`  outbox_table: "` + cfg.Repository.OutboxTable + "\"\n")
	}
	if cfg.Repository.ReceivedTable != "" {
		b.WriteString(`  received_table: "` + cfg.Repository.ReceivedTable + "\"\n")
	}

	b.WriteString(`
# Message transport for commands and replies
transport:
  # Kind: none, kafka, rabbitmq, sns or webhook
  kind: "` + cfg.Transport.Kind + `"
`)

	switch cfg.Transport.Kind {
	case TransportKafka:
		b.WriteString("  kafka:\n    brokers:\n")
		for _, broker := range cfg.Transport.Kafka.Brokers {
			b.WriteString(`      - "` + broker + "\"\n")
		}
		if cfg.Transport.Kafka.GroupID != "" {
			b.WriteString(`    group_id: "` + cfg.Transport.Kafka.GroupID + "\"\n")
		}
	case TransportRabbitMQ:
		b.WriteString("  rabbitmq:\n    url: \"" + cfg.Transport.RabbitMQ.URL + "\"\n")
		if cfg.Transport.RabbitMQ.Exchange != "" {
			b.WriteString(`    exchange: "` + cfg.Transport.RabbitMQ.Exchange + "\"\n")
		}
	case TransportSNS:
		b.WriteString("  sns:\n    topic_prefix: \"" + cfg.Transport.SNS.TopicPrefix + "\"\n")
	case TransportWebhook:
		b.WriteString("  webhook:\n    base_url: \"" + cfg.Transport.Webhook.BaseURL + "\"\n")
	}

	return b.String()
}
