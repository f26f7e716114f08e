package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/toolsascode/schemaflow/internal/backends"
	"github.com/toolsascode/schemaflow/internal/state"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration. Values come from an optional
// YAML file named by SCHEMAFLOW_CONFIG; environment variables override it.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Registry RegistryConfig `yaml:"registry"`
	Paths    PathsConfig    `yaml:"paths"`
	Session  SessionConfig  `yaml:"session"`
	Lock     LockConfig     `yaml:"lock"`
	Queue    QueueConfig    `yaml:"queue"`
}

type ServerConfig struct {
	HTTPPort string `yaml:"http_port"`
	GRPCPort string `yaml:"grpc_port"`
	APIToken string `yaml:"api_token"`
}

// DatabaseConfig is the target database connection
type DatabaseConfig struct {
	Backend  string            `yaml:"backend"`
	Host     string            `yaml:"host"`
	Port     string            `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Database string            `yaml:"database"`
	Schema   string            `yaml:"schema"`
	Extra    map[string]string `yaml:"extra"`
}

// RegistryConfig locates the execution registry table. It lives in the
// target database.
type RegistryConfig struct {
	Table  string `yaml:"table"`
	Schema string `yaml:"schema"`
}

type PathsConfig struct {
	Descriptors string `yaml:"descriptors"` // directory scanned for *.xml / *.yaml descriptors
	Scripts     string `yaml:"scripts"`     // directory holding schema/ and migration/
}

type SessionConfig struct {
	FailOnError   bool   `yaml:"fail_on_error"`
	AppliedPolicy string `yaml:"applied_policy"` // "any" or "all"
	DatabaseType  string `yaml:"database_type"`  // overrides the backend name for descriptor filtering
}

type LockConfig struct {
	Type          string   `yaml:"type"` // "local", "postgresql", "etcd" or "none"
	Key           string   `yaml:"key"`
	EtcdEndpoints []string `yaml:"etcd_endpoints"`
	EtcdPrefix    string   `yaml:"etcd_prefix"`
	EtcdUsername  string   `yaml:"etcd_username"`
	EtcdPassword  string   `yaml:"etcd_password"`
	TTLSeconds    int      `yaml:"ttl_seconds"`
}

type QueueConfig struct {
	Enabled            bool     `yaml:"enabled"` // false = synchronous execution
	Type               string   `yaml:"type"`    // "kafka" or "pulsar"
	KafkaBrokers       []string `yaml:"kafka_brokers"`
	KafkaTopic         string   `yaml:"kafka_topic"`
	KafkaGroupID       string   `yaml:"kafka_group_id"`
	PulsarURL          string   `yaml:"pulsar_url"`
	PulsarTopic        string   `yaml:"pulsar_topic"`
	PulsarSubscription string   `yaml:"pulsar_subscription"`
}

// Default returns the built-in defaults
func Default() *Config {
	cfg := &Config{}
	cfg.Server.HTTPPort = "7070"
	cfg.Server.GRPCPort = "9090"
	cfg.Database.Backend = "postgresql"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = "5432"
	cfg.Database.Username = "postgres"
	cfg.Database.Schema = "public"
	cfg.Database.Extra = make(map[string]string)
	cfg.Registry.Table = state.DefaultTable
	cfg.Paths.Descriptors = "descriptors"
	cfg.Paths.Scripts = "."
	cfg.Session.FailOnError = true
	cfg.Session.AppliedPolicy = "any"
	cfg.Lock.Type = "local"
	cfg.Lock.Key = "schemaflow:migrate"
	cfg.Lock.EtcdPrefix = "/schemaflow/locks/"
	cfg.Lock.TTLSeconds = 60
	cfg.Queue.Type = "kafka"
	cfg.Queue.KafkaBrokers = []string{"localhost:9092"}
	cfg.Queue.KafkaTopic = "schemaflow-runs"
	cfg.Queue.KafkaGroupID = "schemaflow-workers"
	cfg.Queue.PulsarURL = "pulsar://localhost:6650"
	cfg.Queue.PulsarTopic = "schemaflow-runs"
	cfg.Queue.PulsarSubscription = "schemaflow-workers"
	return cfg
}

// LoadFromEnv loads configuration from the optional config file and the
// environment
func LoadFromEnv() (*Config, error) {
	config := Default()

	if path := os.Getenv("SCHEMAFLOW_CONFIG"); path != "" {
		if err := config.LoadFile(path); err != nil {
			return nil, err
		}
	}

	config.applyEnv(os.Environ())
	return config, nil
}

// LoadFile merges a YAML config file over the current values
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if c.Database.Extra == nil {
		c.Database.Extra = make(map[string]string)
	}
	return nil
}

func (c *Config) applyEnv(environ []string) {
	// Server configuration
	c.Server.HTTPPort = getEnvOrDefault("SCHEMAFLOW_HTTP_PORT", c.Server.HTTPPort)
	c.Server.GRPCPort = getEnvOrDefault("SCHEMAFLOW_GRPC_PORT", c.Server.GRPCPort)
	c.Server.APIToken = getEnvOrDefault("SCHEMAFLOW_API_TOKEN", c.Server.APIToken)

	// Target database
	c.Database.Backend = getEnvOrDefault("SCHEMAFLOW_DB_BACKEND", c.Database.Backend)
	c.Database.Host = getEnvOrDefault("SCHEMAFLOW_DB_HOST", c.Database.Host)
	c.Database.Port = getEnvOrDefault("SCHEMAFLOW_DB_PORT", c.Database.Port)
	c.Database.Username = getEnvOrDefault("SCHEMAFLOW_DB_USERNAME", c.Database.Username)
	c.Database.Password = getEnvOrDefault("SCHEMAFLOW_DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnvOrDefault("SCHEMAFLOW_DB_NAME", c.Database.Database)
	c.Database.Schema = getEnvOrDefault("SCHEMAFLOW_DB_SCHEMA", c.Database.Schema)

	// SCHEMAFLOW_DB_EXTRA_SSLMODE=require -> Extra["sslmode"] = "require"
	const extraPrefix = "SCHEMAFLOW_DB_EXTRA_"
	for _, envVar := range environ {
		parts := strings.SplitN(envVar, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], extraPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(parts[0], extraPrefix))
		if key != "" {
			c.Database.Extra[key] = parts[1]
		}
	}

	c.Registry.Table = getEnvOrDefault("SCHEMAFLOW_REGISTRY_TABLE", c.Registry.Table)
	c.Registry.Schema = getEnvOrDefault("SCHEMAFLOW_REGISTRY_SCHEMA", c.Registry.Schema)

	c.Paths.Descriptors = getEnvOrDefault("SCHEMAFLOW_DESCRIPTORS_PATH", c.Paths.Descriptors)
	c.Paths.Scripts = getEnvOrDefault("SCHEMAFLOW_SCRIPTS_PATH", c.Paths.Scripts)

	c.Session.FailOnError = getEnvBool("SCHEMAFLOW_FAIL_ON_ERROR", c.Session.FailOnError)
	c.Session.AppliedPolicy = getEnvOrDefault("SCHEMAFLOW_APPLIED_POLICY", c.Session.AppliedPolicy)
	c.Session.DatabaseType = getEnvOrDefault("SCHEMAFLOW_DATABASE_TYPE", c.Session.DatabaseType)

	// Run lock
	c.Lock.Type = getEnvOrDefault("SCHEMAFLOW_LOCK_TYPE", c.Lock.Type)
	c.Lock.Key = getEnvOrDefault("SCHEMAFLOW_LOCK_KEY", c.Lock.Key)
	if endpoints := os.Getenv("SCHEMAFLOW_LOCK_ETCD_ENDPOINTS"); endpoints != "" {
		c.Lock.EtcdEndpoints = splitList(endpoints)
	}
	c.Lock.EtcdPrefix = getEnvOrDefault("SCHEMAFLOW_LOCK_ETCD_PREFIX", c.Lock.EtcdPrefix)
	c.Lock.EtcdUsername = getEnvOrDefault("SCHEMAFLOW_LOCK_ETCD_USERNAME", c.Lock.EtcdUsername)
	c.Lock.EtcdPassword = getEnvOrDefault("SCHEMAFLOW_LOCK_ETCD_PASSWORD", c.Lock.EtcdPassword)
	c.Lock.TTLSeconds = getEnvInt("SCHEMAFLOW_LOCK_TTL_SECONDS", c.Lock.TTLSeconds)

	// Queue configuration
	c.Queue.Enabled = getEnvBool("SCHEMAFLOW_QUEUE_ENABLED", c.Queue.Enabled)
	c.Queue.Type = getEnvOrDefault("SCHEMAFLOW_QUEUE_TYPE", c.Queue.Type)
	if kafkaBrokers := os.Getenv("SCHEMAFLOW_QUEUE_KAFKA_BROKERS"); kafkaBrokers != "" {
		c.Queue.KafkaBrokers = splitList(kafkaBrokers)
	}
	c.Queue.KafkaTopic = getEnvOrDefault("SCHEMAFLOW_QUEUE_KAFKA_TOPIC", c.Queue.KafkaTopic)
	c.Queue.KafkaGroupID = getEnvOrDefault("SCHEMAFLOW_QUEUE_KAFKA_GROUP_ID", c.Queue.KafkaGroupID)
	c.Queue.PulsarURL = getEnvOrDefault("SCHEMAFLOW_QUEUE_PULSAR_URL", c.Queue.PulsarURL)
	c.Queue.PulsarTopic = getEnvOrDefault("SCHEMAFLOW_QUEUE_PULSAR_TOPIC", c.Queue.PulsarTopic)
	c.Queue.PulsarSubscription = getEnvOrDefault("SCHEMAFLOW_QUEUE_PULSAR_SUBSCRIPTION", c.Queue.PulsarSubscription)
}

// Validate checks values shared by every binary
func (c *Config) Validate() error {
	backend, err := backends.Normalize(c.Database.Backend)
	if err != nil {
		return err
	}
	c.Database.Backend = backend

	if backend != "sqlite" && c.Database.Database == "" {
		return fmt.Errorf("database name is required (SCHEMAFLOW_DB_NAME)")
	}

	switch strings.ToLower(c.Session.AppliedPolicy) {
	case "", "any", "all":
	default:
		return fmt.Errorf("invalid applied policy %q (supported: any, all)", c.Session.AppliedPolicy)
	}

	switch strings.ToLower(c.Lock.Type) {
	case "", "none", "local":
	case "postgresql":
		if backend != "postgresql" {
			return fmt.Errorf("postgresql advisory lock requires a postgresql target, got %s", backend)
		}
	case "etcd":
		if len(c.Lock.EtcdEndpoints) == 0 {
			return fmt.Errorf("etcd lock requires SCHEMAFLOW_LOCK_ETCD_ENDPOINTS")
		}
	default:
		return fmt.Errorf("unsupported lock type: %s (supported: none, local, postgresql, etcd)", c.Lock.Type)
	}

	return nil
}

// ValidateServer additionally requires what the API server needs
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Server.APIToken == "" {
		return fmt.Errorf("SCHEMAFLOW_API_TOKEN environment variable is required")
	}
	return nil
}

// Connection converts the database section for the backend layer
func (c *Config) Connection() *backends.ConnectionConfig {
	extra := make(map[string]string, len(c.Database.Extra))
	for k, v := range c.Database.Extra {
		extra[k] = v
	}
	return &backends.ConnectionConfig{
		Backend:  c.Database.Backend,
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		Username: c.Database.Username,
		Password: c.Database.Password,
		Database: c.Database.Database,
		Schema:   c.Database.Schema,
		Extra:    extra,
	}
}

// DatabaseType is the name descriptors are filtered against
func (c *Config) DatabaseType() string {
	if name := strings.TrimSpace(c.Session.DatabaseType); name != "" {
		if normalized, err := backends.Normalize(name); err == nil {
			return normalized
		}
		return strings.ToLower(name)
	}
	return c.Database.Backend
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
