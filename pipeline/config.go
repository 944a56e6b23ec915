package pipeline

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"
)

type Config struct {
	//window length
	WindowSize time.Duration
	//slide step; equal to WindowSize means tumbling windows
	SlideBy time.Duration
	//out-of-orderness tolerance fed to the watermark trackers
	AllowedLag time.Duration
	//0 disables checkpointing
	CheckpointInterval time.Duration

	SourceParallelism    int
	AggregateParallelism int

	//capacity of the bounded edges between stages
	ChannelSize int
	//how often partition watermarks are recomputed and broadcast
	WatermarkInterval time.Duration

	CheckpointsDir         string
	CheckpointsNumRetained int

	//identifies one pipeline run; generated at startup when empty instead of
	//relying on ambient global state
	RunId string
}

func (c *Config) validate() error {
	if c.WindowSize <= 0 {
		return errors.Errorf("windowSize is required and should be positive, got %v", c.WindowSize)
	}
	if c.SlideBy <= 0 || c.SlideBy > c.WindowSize {
		return errors.Errorf("slideBy should be in (0, windowSize], got %v", c.SlideBy)
	}
	if c.AllowedLag < 0 {
		return errors.Errorf("allowedLag can't be negative, got %v", c.AllowedLag)
	}
	if c.CheckpointInterval < 0 {
		return errors.Errorf("checkpointInterval can't be negative, got %v", c.CheckpointInterval)
	}
	if c.SourceParallelism <= 0 {
		return errors.Errorf("sourceParallelism should be at least 1, got %d", c.SourceParallelism)
	}
	if c.AggregateParallelism <= 0 {
		return errors.Errorf("aggregateParallelism should be at least 1, got %d", c.AggregateParallelism)
	}
	if c.ChannelSize == 0 {
		c.ChannelSize = 1024
	}
	if c.ChannelSize < 0 {
		return errors.Errorf("channelSize can't be negative, got %d", c.ChannelSize)
	}
	if c.WatermarkInterval <= 0 {
		c.WatermarkInterval = 200 * time.Millisecond
	}
	if c.CheckpointsDir == "" {
		c.CheckpointsDir = "."
	}
	if c.CheckpointsNumRetained <= 0 {
		c.CheckpointsNumRetained = 2
	}
	if c.RunId == "" {
		node, err := snowflake.NewNode(1)
		if err != nil {
			return errors.WithMessage(err, "failed to init run id generator")
		}
		c.RunId = node.Generate().String()
	}
	return nil
}
