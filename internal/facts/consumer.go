package facts

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/retainly/internal/tenant"
	"github.com/retainly/pkg/models"
)

// TopicTenantFacts carries tenant usage/billing fact updates produced
// by the upstream product and billing pipelines.
const TopicTenantFacts = "retention.tenant.facts"

// TenantRegistry receives tenant metadata carried on fact messages.
// The upstream pipelines are the source of truth for the directory, so
// every message upserts the tenant it belongs to.
type TenantRegistry interface {
	Put(t *tenant.Tenant)
}

// factUpdate is the wire shape of one fact update message
type factUpdate struct {
	TenantID string             `json:"tenant_id"`
	Tenant   *tenantUpdate      `json:"tenant,omitempty"`
	Facts    models.TenantFacts `json:"facts"`
}

// tenantUpdate is the tenant metadata block on a fact message
type tenantUpdate struct {
	Name     string `json:"name"`
	Plan     string `json:"plan"`
	Vertical string `json:"vertical"`
	Status   string `json:"status"`
}

// ConsumerConfig represents facts consumer configuration
type ConsumerConfig struct {
	Brokers []string      `json:"brokers" yaml:"brokers"`
	GroupID string        `json:"group_id" yaml:"group_id"`
	Topic   string        `json:"topic" yaml:"topic"`
	MaxWait time.Duration `json:"max_wait" yaml:"max_wait"`
}

// DefaultConsumerConfig returns default consumer configuration
func DefaultConsumerConfig(brokers []string) ConsumerConfig {
	return ConsumerConfig{
		Brokers: brokers,
		GroupID: "retainly-facts",
		Topic:   TopicTenantFacts,
		MaxWait: time.Second,
	}
}

// Consumer streams fact updates from Kafka into a MemorySource and
// keeps the tenant directory current from the metadata on each message
type Consumer struct {
	reader   *kafka.Reader
	source   *MemorySource
	registry TenantRegistry
}

// NewConsumer creates a new facts consumer
func NewConsumer(config ConsumerConfig, source *MemorySource, registry TenantRegistry) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		GroupID:        config.GroupID,
		Topic:          config.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        config.MaxWait,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
	})

	return &Consumer{
		reader:   reader,
		source:   source,
		registry: registry,
	}
}

// Run consumes fact updates until the context is cancelled. Malformed
// messages are logged and skipped.
func (c *Consumer) Run(ctx context.Context) {
	log.Printf("Facts consumer started on topic %s", c.reader.Config().Topic)

	for {
		message, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("Facts consumer stopping: %v", ctx.Err())
				return
			}
			log.Printf("Error reading facts message: %v", err)
			continue
		}

		c.handle(message.Value)
	}
}

// handle applies one fact message: the tenant metadata upserts into
// the directory, the facts replace the tenant's snapshot.
func (c *Consumer) handle(value []byte) {
	var update factUpdate
	if err := json.Unmarshal(value, &update); err != nil {
		log.Printf("Error unmarshaling facts message: %v", err)
		return
	}
	if update.TenantID == "" {
		log.Printf("Skipping facts message with no tenant id")
		return
	}

	if update.Tenant != nil && c.registry != nil {
		status := tenant.TenantStatus(update.Tenant.Status)
		if status == "" {
			status = tenant.TenantStatusActive
		}
		c.registry.Put(&tenant.Tenant{
			ID:       update.TenantID,
			Name:     update.Tenant.Name,
			Plan:     update.Tenant.Plan,
			Vertical: update.Tenant.Vertical,
			Status:   status,
		})
	}

	c.source.SetFacts(update.TenantID, &update.Facts)
}

// Close releases the underlying reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
