package kafka

import (
	"fmt"
	"log"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// TopicConfig defines Kafka topic configuration
type TopicConfig struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	RetentionMs       int64
	CleanupPolicy     string
	KeyField          string
}

// Topics defines all Kafka topics the retention engine publishes to or
// consumes from. Delivery consumers (email, in-app notification)
// subscribe downstream.
var Topics = map[string]TopicConfig{
	"retention.health.scores": {
		Name:              "retention.health.scores",
		Partitions:        8,
		ReplicationFactor: 3,
		RetentionMs:       2592000000, // 30 days
		CleanupPolicy:     "delete",
		KeyField:          "tenant_id",
	},
	"retention.churn.predictions": {
		Name:              "retention.churn.predictions",
		Partitions:        8,
		ReplicationFactor: 3,
		RetentionMs:       7776000000, // 90 days
		CleanupPolicy:     "delete",
		KeyField:          "tenant_id",
	},
	"retention.expansion.signals": {
		Name:              "retention.expansion.signals",
		Partitions:        4,
		ReplicationFactor: 3,
		RetentionMs:       7776000000, // 90 days
		CleanupPolicy:     "delete",
		KeyField:          "tenant_id",
	},
	"retention.playbook.actions": {
		Name:              "retention.playbook.actions",
		Partitions:        8,
		ReplicationFactor: 3,
		RetentionMs:       2592000000, // 30 days
		CleanupPolicy:     "delete",
		KeyField:          "tenant_id",
	},
	"retention.alerts": {
		Name:              "retention.alerts",
		Partitions:        4,
		ReplicationFactor: 3,
		RetentionMs:       2592000000, // 30 days
		CleanupPolicy:     "delete",
		KeyField:          "tenant_id",
	},
	"retention.tenant.facts": {
		Name:              "retention.tenant.facts",
		Partitions:        8,
		ReplicationFactor: 3,
		RetentionMs:       604800000, // 7 days
		CleanupPolicy:     "delete",
		KeyField:          "tenant_id",
	},
}

// TopicManager handles Kafka topic creation and management
type TopicManager struct {
	brokers []string
}

// NewTopicManager creates a new topic manager
func NewTopicManager(brokers []string) *TopicManager {
	return &TopicManager{
		brokers: brokers,
	}
}

// CreateTopics creates all Kafka topics if they don't exist
func (tm *TopicManager) CreateTopics() error {
	conn, err := kafka.Dial("tcp", tm.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get controller: %w", err)
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to connect to controller: %w", err)
	}
	defer controllerConn.Close()

	for topicName, config := range Topics {
		topicConfigs := []kafka.TopicConfig{
			{
				Topic:             config.Name,
				NumPartitions:     config.Partitions,
				ReplicationFactor: config.ReplicationFactor,
				ConfigEntries: []kafka.ConfigEntry{
					{
						ConfigName:  "retention.ms",
						ConfigValue: fmt.Sprintf("%d", config.RetentionMs),
					},
					{
						ConfigName:  "cleanup.policy",
						ConfigValue: config.CleanupPolicy,
					},
				},
			},
		}

		err := controllerConn.CreateTopics(topicConfigs...)
		if err != nil {
			// Topic might already exist, log warning but continue
			log.Printf("Warning creating topic %s: %v", topicName, err)
		} else {
			log.Printf("Created topic: %s", topicName)
		}
	}

	return nil
}

// ListTopics lists all Kafka topics
func (tm *TopicManager) ListTopics() ([]string, error) {
	conn, err := kafka.Dial("tcp", tm.brokers[0])
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka broker: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("failed to read partitions: %w", err)
	}

	topicMap := make(map[string]bool)
	for _, partition := range partitions {
		topicMap[partition.Topic] = true
	}

	topics := make([]string, 0, len(topicMap))
	for topic := range topicMap {
		topics = append(topics, topic)
	}

	return topics, nil
}

// GetTopicConfig retrieves the configuration for a specific topic
func GetTopicConfig(topicName string) (TopicConfig, error) {
	config, exists := Topics[topicName]
	if !exists {
		return TopicConfig{}, fmt.Errorf("topic %s not found in configuration", topicName)
	}
	return config, nil
}
