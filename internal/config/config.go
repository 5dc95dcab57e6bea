package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration
type Config struct {
	API       APIConfig       `yaml:"api"`
	Events    EventsConfig    `yaml:"events"`
	Graph     GraphConfig     `yaml:"graph"`
	Cache     CacheConfig     `yaml:"cache"`
	Billing   BillingConfig   `yaml:"billing"`
	Score     ScoreConfig     `yaml:"score"`
	Churn     ChurnConfig     `yaml:"churn"`
	Expansion ExpansionConfig `yaml:"expansion"`
	Nps       NpsConfig       `yaml:"nps"`
	Sweep     SweepConfig     `yaml:"sweep"`
}

// APIConfig represents API gateway configuration
type APIConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	EnableCORS     bool          `yaml:"enable_cors"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// EventsConfig represents Kafka event bus configuration
type EventsConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"client_id"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// GraphConfig represents Neo4j database configuration
type GraphConfig struct {
	Enabled     bool          `yaml:"enabled"`
	URI         string        `yaml:"uri"`
	Database    string        `yaml:"database"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	MaxPoolSize int           `yaml:"max_pool_size"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
}

// CacheConfig represents Redis cache configuration
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// BillingConfig represents Stripe plan catalog configuration
type BillingConfig struct {
	StripeKey       string        `yaml:"stripe_key"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// ScoreConfig represents health score calculator configuration
type ScoreConfig struct {
	TicketPenalty            int           `yaml:"ticket_penalty"`
	DefaultSatisfaction      int           `yaml:"default_satisfaction"`
	DefaultMaxInactivityDays int           `yaml:"default_max_inactivity_days"`
	TrendDelta               int           `yaml:"trend_delta"`
	MinInterval              time.Duration `yaml:"min_interval"`
	TenantTimeout            time.Duration `yaml:"tenant_timeout"`
	WorkerCount              int           `yaml:"worker_count"`
}

// ChurnConfig represents churn predictor configuration
type ChurnConfig struct {
	HealthBlend         float64 `yaml:"health_blend"`
	SupportSpikeTickets int     `yaml:"support_spike_tickets"`
	UsageDeclineWeeks   int     `yaml:"usage_decline_weeks"`
}

// ExpansionConfig represents expansion detector configuration
type ExpansionConfig struct {
	UsageThreshold     float64 `yaml:"usage_threshold"`
	ConsecutivePeriods int     `yaml:"consecutive_periods"`
}

// NpsConfig represents NPS survey configuration
type NpsConfig struct {
	CooldownDays    int `yaml:"cooldown_days"`
	ScoreWindowDays int `yaml:"score_window_days"`
}

// SweepConfig represents background sweep configuration
type SweepConfig struct {
	HealthInterval    time.Duration `yaml:"health_interval"`
	ExpansionInterval time.Duration `yaml:"expansion_interval"`
	StepInterval      time.Duration `yaml:"step_interval"`
	TriggerUrgency    string        `yaml:"trigger_urgency"`
	DefaultPlaybookID string        `yaml:"default_playbook_id"`
}

// Load loads configuration from file
func Load() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := LoadFrom(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom loads configuration from an explicit path
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a configuration suitable for local development
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 15 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 15 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if len(c.Events.Brokers) == 0 {
		c.Events.Brokers = []string{"localhost:9092"}
	}
	if c.Events.ClientID == "" {
		c.Events.ClientID = "retainly"
	}
	if c.Events.BatchSize == 0 {
		c.Events.BatchSize = 100
	}
	if c.Events.BatchTimeout == 0 {
		c.Events.BatchTimeout = time.Second
	}

	if c.Graph.Database == "" {
		c.Graph.Database = "neo4j"
	}
	if c.Graph.MaxPoolSize == 0 {
		c.Graph.MaxPoolSize = 50
	}
	if c.Graph.ConnTimeout == 0 {
		c.Graph.ConnTimeout = 30 * time.Second
	}

	if c.Cache.Addr == "" {
		c.Cache.Addr = "localhost:6379"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "retainly"
	}

	if c.Billing.RefreshInterval == 0 {
		c.Billing.RefreshInterval = 24 * time.Hour
	}

	if c.Score.TicketPenalty == 0 {
		c.Score.TicketPenalty = 10
	}
	if c.Score.DefaultSatisfaction == 0 {
		c.Score.DefaultSatisfaction = 50
	}
	if c.Score.DefaultMaxInactivityDays == 0 {
		c.Score.DefaultMaxInactivityDays = 30
	}
	if c.Score.TrendDelta == 0 {
		c.Score.TrendDelta = 3
	}
	if c.Score.MinInterval == 0 {
		c.Score.MinInterval = 6 * time.Hour
	}
	if c.Score.TenantTimeout == 0 {
		c.Score.TenantTimeout = 30 * time.Second
	}
	if c.Score.WorkerCount == 0 {
		c.Score.WorkerCount = 8
	}

	if c.Churn.HealthBlend == 0 {
		c.Churn.HealthBlend = 0.6
	}
	if c.Churn.SupportSpikeTickets == 0 {
		c.Churn.SupportSpikeTickets = 5
	}
	if c.Churn.UsageDeclineWeeks == 0 {
		c.Churn.UsageDeclineWeeks = 3
	}

	if c.Expansion.UsageThreshold == 0 {
		c.Expansion.UsageThreshold = 0.9
	}
	if c.Expansion.ConsecutivePeriods == 0 {
		c.Expansion.ConsecutivePeriods = 2
	}

	if c.Nps.CooldownDays == 0 {
		c.Nps.CooldownDays = 90
	}
	if c.Nps.ScoreWindowDays == 0 {
		c.Nps.ScoreWindowDays = 90
	}

	if c.Sweep.HealthInterval == 0 {
		c.Sweep.HealthInterval = 6 * time.Hour
	}
	if c.Sweep.ExpansionInterval == 0 {
		c.Sweep.ExpansionInterval = 24 * time.Hour
	}
	if c.Sweep.StepInterval == 0 {
		c.Sweep.StepInterval = time.Minute
	}
	if c.Sweep.TriggerUrgency == "" {
		c.Sweep.TriggerUrgency = "high"
	}
	if c.Sweep.DefaultPlaybookID == "" {
		c.Sweep.DefaultPlaybookID = "pb-default-retention"
	}
}
