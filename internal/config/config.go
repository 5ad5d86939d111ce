package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

//go:embed origins.sample.yaml
var sampleOrigins string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Source contains configuration for the content source collaborator.
type Source struct {
	OriginsFile    string `toml:"origins_file"`
	UserAgent      string `toml:"user_agent"`
	FetchLimit     int    `toml:"fetch_limit"`
	MinScore       int    `toml:"min_score"`
	MinWordCount   int    `toml:"min_word_count"`
	RequestTimeout int    `toml:"request_timeout"`
}

// RewriteProvider identifies one rewrite backend in the fallback chain.
type RewriteProvider struct {
	Name    string `toml:"name"`
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// Rewrite contains the ordered rewrite provider chain. The pipeline selects
// the first provider with an API key at startup.
type Rewrite struct {
	Providers      []RewriteProvider `toml:"providers"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
}

// Speech contains configuration for the voice synthesizer.
type Speech struct {
	BaseURL        string `toml:"base_url"`
	Voice          string `toml:"voice"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Render contains configuration for video rendering.
type Render struct {
	FFmpegBinary string `toml:"ffmpeg_binary"`
	Width        int    `toml:"width"`
	Height       int    `toml:"height"`
	FontName     string `toml:"font_name"`
}

// Storage contains configuration for the remote object store.
type Storage struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Folder         string `toml:"folder"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	EvictLocal     bool   `toml:"evict_local"`
}

// Publish contains configuration for the publish service and its daily quota.
type Publish struct {
	BaseURL          string `toml:"base_url"`
	APIKey           string `toml:"api_key"`
	DailyUploadLimit int    `toml:"daily_upload_limit"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// Segmenter contains the text segmentation bounds.
type Segmenter struct {
	WordsPerMinute     int `toml:"words_per_minute"`
	MaxDurationSeconds int `toml:"max_duration_seconds"`
}

// Workflow contains run timing and batching.
type Workflow struct {
	ItemBatchSize      int `toml:"item_batch_size"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	StaleRunThreshold  int `toml:"stale_run_threshold"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Runs           bool   `toml:"runs"`
	Errors         bool   `toml:"errors"`
}

// Logging contains log output configuration.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for storyreel.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Source        Source        `toml:"source"`
	Rewrite       Rewrite       `toml:"rewrite"`
	Speech        Speech        `toml:"speech"`
	Render        Render        `toml:"render"`
	Storage       Storage       `toml:"storage"`
	Publish       Publish       `toml:"publish"`
	Segmenter     Segmenter     `toml:"segmenter"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/storyreel/config.toml")
}

// SampleConfig returns the embedded sample configuration file contents.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("storyreel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories required for a run.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the SQLite database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "storyreel.db")
}

// RunLockPath returns the location of the single-run lock file.
func (c *Config) RunLockPath() string {
	return filepath.Join(c.Paths.DataDir, "run.lock")
}

// ExpandPath resolves ~ and relative segments to an absolute path.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to the given path.
func CreateSample(path string) error {
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// CreateSampleOrigins writes the embedded sample origins file to the given
// path.
func CreateSampleOrigins(path string) error {
	if err := os.WriteFile(path, []byte(sampleOrigins), 0o644); err != nil {
		return fmt.Errorf("write sample origins: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
