package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return fmt.Errorf("api config error: %v", err)
	}

	if err := c.validateEvents(); err != nil {
		return fmt.Errorf("events config error: %v", err)
	}

	if err := c.validateGraph(); err != nil {
		return fmt.Errorf("graph config error: %v", err)
	}

	if err := c.validateScore(); err != nil {
		return fmt.Errorf("score config error: %v", err)
	}

	if err := c.validateChurn(); err != nil {
		return fmt.Errorf("churn config error: %v", err)
	}

	if err := c.validateSweep(); err != nil {
		return fmt.Errorf("sweep config error: %v", err)
	}

	return nil
}

func (c *Config) validateAPI() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if c.API.EnableCORS && len(c.API.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed_origins is required when CORS is enabled")
	}

	return nil
}

func (c *Config) validateEvents() error {
	if len(c.Events.Brokers) == 0 {
		return fmt.Errorf("brokers is required")
	}

	for _, broker := range c.Events.Brokers {
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("invalid broker format: %s (expected host:port)", broker)
		}
	}

	if c.Events.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}

	return nil
}

func (c *Config) validateGraph() error {
	if !c.Graph.Enabled {
		return nil
	}

	if c.Graph.URI == "" {
		return fmt.Errorf("uri is required")
	}

	if _, err := url.Parse(c.Graph.URI); err != nil {
		return fmt.Errorf("invalid uri format: %v", err)
	}

	if c.Graph.Username == "" {
		return fmt.Errorf("username is required")
	}

	if c.Graph.MaxPoolSize <= 0 {
		return fmt.Errorf("max_pool_size must be greater than 0")
	}

	return nil
}

func (c *Config) validateScore() error {
	if c.Score.TicketPenalty < 0 {
		return fmt.Errorf("ticket_penalty must not be negative")
	}

	if c.Score.DefaultSatisfaction < 0 || c.Score.DefaultSatisfaction > 100 {
		return fmt.Errorf("default_satisfaction must be between 0 and 100")
	}

	if c.Score.DefaultMaxInactivityDays < 7 || c.Score.DefaultMaxInactivityDays > 180 {
		return fmt.Errorf("default_max_inactivity_days must be between 7 and 180")
	}

	if c.Score.WorkerCount <= 0 {
		return fmt.Errorf("worker_count must be greater than 0")
	}

	return nil
}

func (c *Config) validateChurn() error {
	if c.Churn.HealthBlend < 0 || c.Churn.HealthBlend > 1 {
		return fmt.Errorf("health_blend must be between 0 and 1")
	}

	if c.Churn.SupportSpikeTickets <= 0 {
		return fmt.Errorf("support_spike_tickets must be greater than 0")
	}

	if c.Churn.UsageDeclineWeeks <= 0 {
		return fmt.Errorf("usage_decline_weeks must be greater than 0")
	}

	return nil
}

func (c *Config) validateSweep() error {
	validTiers := map[string]bool{"none": true, "low": true, "medium": true, "high": true, "critical": true}
	tier := strings.ToLower(c.Sweep.TriggerUrgency)

	if !validTiers[tier] {
		return fmt.Errorf("invalid trigger_urgency: %s (must be none, low, medium, high, or critical)", c.Sweep.TriggerUrgency)
	}

	if c.Sweep.DefaultPlaybookID == "" {
		return fmt.Errorf("default_playbook_id is required")
	}

	return nil
}
