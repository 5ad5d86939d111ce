package testsupport

import (
	"path/filepath"
	"testing"

	"storyreel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Source.OriginsFile = filepath.Join(base, "origins.yaml")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDailyUploadLimit overrides the publish quota on the test config.
func WithDailyUploadLimit(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Publish.DailyUploadLimit = limit
	}
}

// WithSegmenter overrides the narration pacing on the test config.
func WithSegmenter(wordsPerMinute, maxDurationSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Segmenter.WordsPerMinute = wordsPerMinute
		b.cfg.Segmenter.MaxDurationSeconds = maxDurationSeconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
