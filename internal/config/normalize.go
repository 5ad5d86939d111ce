package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeRewrite()
	c.normalizeSpeech()
	c.normalizeRender()
	c.normalizeStorage()
	c.normalizePublish()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.UserAgent = strings.TrimSpace(c.Source.UserAgent)
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = defaultUserAgent
	}
	if c.Source.FetchLimit <= 0 {
		c.Source.FetchLimit = defaultFetchLimit
	}
	if c.Source.RequestTimeout <= 0 {
		c.Source.RequestTimeout = defaultSourceTimeout
	}
	if expanded, err := expandPath(c.Source.OriginsFile); err == nil {
		c.Source.OriginsFile = expanded
	}
}

func (c *Config) normalizeRewrite() {
	for i := range c.Rewrite.Providers {
		p := &c.Rewrite.Providers[i]
		p.Name = strings.ToLower(strings.TrimSpace(p.Name))
		p.APIKey = strings.TrimSpace(p.APIKey)
		p.BaseURL = strings.TrimSpace(p.BaseURL)
		p.Model = strings.TrimSpace(p.Model)
		if p.APIKey == "" && p.Name != "" {
			envKey := strings.ToUpper(p.Name) + "_API_KEY"
			if value, ok := os.LookupEnv(envKey); ok {
				p.APIKey = strings.TrimSpace(value)
			}
		}
		if p.BaseURL == "" {
			p.BaseURL = defaultRewriteBaseURL
		}
	}
	if c.Rewrite.TimeoutSeconds <= 0 {
		c.Rewrite.TimeoutSeconds = defaultRewriteTimeout
	}
}

func (c *Config) normalizeSpeech() {
	c.Speech.BaseURL = strings.TrimSpace(c.Speech.BaseURL)
	c.Speech.Voice = strings.TrimSpace(c.Speech.Voice)
	if c.Speech.Voice == "" {
		c.Speech.Voice = defaultSpeechVoice
	}
	if c.Speech.TimeoutSeconds <= 0 {
		c.Speech.TimeoutSeconds = defaultSpeechTimeout
	}
}

func (c *Config) normalizeRender() {
	c.Render.FFmpegBinary = strings.TrimSpace(c.Render.FFmpegBinary)
	if c.Render.FFmpegBinary == "" {
		c.Render.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Render.Width <= 0 {
		c.Render.Width = defaultRenderWidth
	}
	if c.Render.Height <= 0 {
		c.Render.Height = defaultRenderHeight
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.BaseURL = strings.TrimSpace(c.Storage.BaseURL)
	if c.Storage.APIKey == "" {
		if value, ok := os.LookupEnv("STORYREEL_STORAGE_API_KEY"); ok {
			c.Storage.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Storage.TimeoutSeconds <= 0 {
		c.Storage.TimeoutSeconds = defaultStorageTimeout
	}
}

func (c *Config) normalizePublish() {
	c.Publish.BaseURL = strings.TrimSpace(c.Publish.BaseURL)
	if c.Publish.APIKey == "" {
		if value, ok := os.LookupEnv("STORYREEL_PUBLISH_API_KEY"); ok {
			c.Publish.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Publish.TimeoutSeconds <= 0 {
		c.Publish.TimeoutSeconds = defaultPublishTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
