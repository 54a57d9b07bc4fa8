package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vigilhq/vigil/internal/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := config.NewDefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.AlertCooldown)
	assert.Equal(t, 4000, cfg.APIPort)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		configMod func(*config.Config)
		wantErr   error
	}{
		{
			name:      "invalid_api_port_zero",
			configMod: func(c *config.Config) { c.APIPort = 0 },
			wantErr:   config.ErrInvalidAPIPort,
		},
		{
			name:      "invalid_api_port_too_high",
			configMod: func(c *config.Config) { c.APIPort = 70000 },
			wantErr:   config.ErrInvalidAPIPort,
		},
		{
			name:      "zero_poll_interval",
			configMod: func(c *config.Config) { c.PollInterval = 0 },
			wantErr:   config.ErrInvalidPollInterval,
		},
		{
			name:      "zero_step_timeout",
			configMod: func(c *config.Config) { c.StepTimeout = 0 },
			wantErr:   config.ErrInvalidStepTimeout,
		},
		{
			name:      "negative_cooldown",
			configMod: func(c *config.Config) { c.AlertCooldown = -time.Second },
			wantErr:   config.ErrInvalidAlertCooldown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			tt.configMod(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_PORT", "8088")
	t.Setenv("SCHEDULER_POLL_MS", "2500")
	t.Setenv("ALERT_COOLDOWN_SECONDS", "60")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.example.test/T000/B000")

	cfg := config.NewDefaultConfig()
	assert.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, 8088, cfg.APIPort)
	assert.Equal(t, 2500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Minute, cfg.AlertCooldown)
	assert.True(t, cfg.SlackEnabled())
	assert.False(t, cfg.EmailEnabled())
}

func TestLoadFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("STEP_TIMEOUT_MS", "not-a-number")

	cfg := config.NewDefaultConfig()
	assert.Error(t, cfg.LoadFromEnv())
}

func TestChannelGating(t *testing.T) {
	cfg := config.NewDefaultConfig()
	assert.False(t, cfg.SlackEnabled())
	assert.False(t, cfg.EmailEnabled())

	cfg.SMTP.Host = "smtp.example.test"
	cfg.SMTP.From = "vigil@example.test"
	cfg.SMTP.To = "oncall@example.test"
	assert.True(t, cfg.EmailEnabled())
}
