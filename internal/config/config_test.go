package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.API.Port = 0 }, "api config"},
		{"cors without origins", func(c *Config) {
			c.API.EnableCORS = true
			c.API.AllowedOrigins = nil
		}, "api config"},
		{"no brokers", func(c *Config) { c.Events.Brokers = nil }, "events config"},
		{"broker missing port", func(c *Config) { c.Events.Brokers = []string{"kafka"} }, "events config"},
		{"empty client id", func(c *Config) { c.Events.ClientID = "" }, "events config"},
		{"graph without username", func(c *Config) {
			c.Graph.Enabled = true
			c.Graph.Username = ""
		}, "graph config"},
		{"negative ticket penalty", func(c *Config) { c.Score.TicketPenalty = -1 }, "score config"},
		{"inactivity too low", func(c *Config) { c.Score.DefaultMaxInactivityDays = 3 }, "score config"},
		{"blend above one", func(c *Config) { c.Churn.HealthBlend = 1.5 }, "churn config"},
		{"unknown urgency tier", func(c *Config) { c.Sweep.TriggerUrgency = "severe" }, "sweep config"},
		{"missing default playbook", func(c *Config) { c.Sweep.DefaultPlaybookID = "" }, "sweep config"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadFromAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  port: 9090
score:
  ticket_penalty: 5
sweep:
  trigger_urgency: critical
`), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, 5, cfg.Score.TicketPenalty)
	assert.Equal(t, "critical", cfg.Sweep.TriggerUrgency)

	// Unset fields fall back to defaults.
	assert.Equal(t, "0.0.0.0", cfg.API.Host)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Events.Brokers)
	assert.Equal(t, 90, cfg.Nps.CooldownDays)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
