package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSegmenter(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSegmenter() error {
	if c.Segmenter.WordsPerMinute <= 0 {
		return errors.New("segmenter.words_per_minute must be positive")
	}
	if c.Segmenter.MaxDurationSeconds <= 0 {
		return errors.New("segmenter.max_duration_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.ItemBatchSize <= 0 {
		return errors.New("workflow.item_batch_size must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.StaleRunThreshold <= c.Workflow.HeartbeatInterval {
		return fmt.Errorf(
			"workflow.stale_run_threshold (%d) must exceed workflow.heartbeat_interval (%d)",
			c.Workflow.StaleRunThreshold, c.Workflow.HeartbeatInterval,
		)
	}
	return nil
}

func (c *Config) validatePublish() error {
	if c.Publish.DailyUploadLimit < 0 {
		return errors.New("publish.daily_upload_limit must not be negative")
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return errors.New("render.width and render.height must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
}
