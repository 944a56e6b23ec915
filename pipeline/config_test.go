package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		WindowSize:           10 * time.Second,
		SlideBy:              5 * time.Second,
		AllowedLag:           time.Second,
		SourceParallelism:    2,
		AggregateParallelism: 4,
	}
}

func TestConfigDefaults(t *testing.T) {
	config := validConfig()
	require.NoError(t, config.validate())

	assert.Equal(t, 1024, config.ChannelSize)
	assert.Equal(t, 200*time.Millisecond, config.WatermarkInterval)
	assert.Equal(t, ".", config.CheckpointsDir)
	assert.Equal(t, 2, config.CheckpointsNumRetained)
	assert.NotEmpty(t, config.RunId)
}

func TestConfigKeepsExplicitValues(t *testing.T) {
	config := validConfig()
	config.ChannelSize = 16
	config.WatermarkInterval = time.Millisecond
	config.RunId = "run-1"
	require.NoError(t, config.validate())

	assert.Equal(t, 16, config.ChannelSize)
	assert.Equal(t, time.Millisecond, config.WatermarkInterval)
	assert.Equal(t, "run-1", config.RunId)
}

func TestConfigValidation(t *testing.T) {
	cases := map[string]func(*Config){
		"zero window size":       func(c *Config) { c.WindowSize = 0 },
		"negative window size":   func(c *Config) { c.WindowSize = -time.Second },
		"zero slide":             func(c *Config) { c.SlideBy = 0 },
		"slide above size":       func(c *Config) { c.SlideBy = c.WindowSize + time.Second },
		"negative lag":           func(c *Config) { c.AllowedLag = -time.Second },
		"negative checkpointing": func(c *Config) { c.CheckpointInterval = -time.Second },
		"no source tasks":        func(c *Config) { c.SourceParallelism = 0 },
		"no aggregate tasks":     func(c *Config) { c.AggregateParallelism = 0 },
		"negative channel size":  func(c *Config) { c.ChannelSize = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			config := validConfig()
			mutate(&config)
			assert.Error(t, config.validate())
		})
	}
}
