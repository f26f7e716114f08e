package queuefactory

import (
	"fmt"
	"strings"

	"github.com/toolsascode/schemaflow/internal/config"
	"github.com/toolsascode/schemaflow/internal/queue"
	"github.com/toolsascode/schemaflow/internal/queue/kafka"
	"github.com/toolsascode/schemaflow/internal/queue/pulsar"
)

// DefaultGroup is the consumer group / subscription used when none is set
const DefaultGroup = "schemaflow-workers"

// QueueConfig holds configuration for creating a queue
type QueueConfig struct {
	Type               string   // "kafka" or "pulsar"
	KafkaBrokers       []string // Kafka broker addresses
	KafkaTopic         string   // Kafka topic name
	KafkaGroupID       string   // Kafka consumer group ID
	PulsarURL          string   // Pulsar service URL
	PulsarTopic        string   // Pulsar topic name
	PulsarSubscription string   // Pulsar subscription name
}

// FromConfig copies the queue section of the application config
func FromConfig(cfg config.QueueConfig) *QueueConfig {
	return &QueueConfig{
		Type:               cfg.Type,
		KafkaBrokers:       cfg.KafkaBrokers,
		KafkaTopic:         cfg.KafkaTopic,
		KafkaGroupID:       cfg.KafkaGroupID,
		PulsarURL:          cfg.PulsarURL,
		PulsarTopic:        cfg.PulsarTopic,
		PulsarSubscription: cfg.PulsarSubscription,
	}
}

// Validate checks the configuration and fills in defaults
func (c *QueueConfig) Validate() error {
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if c.Type == "" {
		c.Type = "kafka"
	}

	switch c.Type {
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka brokers are required")
		}
		if c.KafkaTopic == "" {
			return fmt.Errorf("kafka topic is required")
		}
		if c.KafkaGroupID == "" {
			c.KafkaGroupID = DefaultGroup
		}
	case "pulsar":
		if c.PulsarURL == "" {
			return fmt.Errorf("pulsar URL is required")
		}
		if c.PulsarTopic == "" {
			return fmt.Errorf("pulsar topic is required")
		}
		if c.PulsarSubscription == "" {
			c.PulsarSubscription = DefaultGroup
		}
	default:
		return fmt.Errorf("unsupported queue type: %s (supported: kafka, pulsar)", c.Type)
	}
	return nil
}

// NewQueue creates a new queue based on the configuration
func NewQueue(config *QueueConfig) (queue.Queue, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Type == "pulsar" {
		return pulsar.NewQueue(config.PulsarURL, config.PulsarTopic, config.PulsarSubscription)
	}
	return kafka.NewQueue(config.KafkaBrokers, config.KafkaTopic, config.KafkaGroupID), nil
}
