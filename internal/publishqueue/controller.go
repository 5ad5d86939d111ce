// Package publishqueue drains the publish queue against the daily upload
// quota. Admission is strictly ordered: higher priority first, then oldest
// first, so a starved entry eventually wins on age.
package publishqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyreel/internal/config"
	"storyreel/internal/item"
	"storyreel/internal/logging"
	"storyreel/internal/notifications"
	"storyreel/internal/retry"
	"storyreel/internal/services"
	"storyreel/internal/services/publish"
	"storyreel/internal/store"
)

// Publisher uploads one video to the publish platform.
type Publisher interface {
	Publish(ctx context.Context, request publish.Request) (*publish.Published, error)
}

// Downloader retrieves an evicted artifact from remote storage. Nil disables
// remote retrieval and evicted entries fail immediately.
type Downloader interface {
	Download(ctx context.Context, remoteID, dest string) error
}

// Result summarizes one drain pass.
type Result struct {
	Uploaded  int
	Failed    int
	Skipped   int
	Remaining int
}

// Controller admits queue entries up to the daily limit and publishes them.
type Controller struct {
	cfg        *config.Config
	store      *store.Store
	logger     *slog.Logger
	publisher  Publisher
	downloader Downloader
	notifier   notifications.Service
}

// Deps bundles the collaborators a Controller needs.
type Deps struct {
	Store      *store.Store
	Logger     *slog.Logger
	Publisher  Publisher
	Downloader Downloader
	Notifier   notifications.Service
}

// New wires a controller. Downloader may be nil when no object store is
// configured.
func New(cfg *config.Config, deps Deps) (*Controller, error) {
	if cfg == nil || deps.Store == nil || deps.Publisher == nil {
		return nil, errors.New("publish queue controller requires config, store and publisher")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Controller{
		cfg:        cfg,
		store:      deps.Store,
		logger:     logger,
		publisher:  deps.Publisher,
		downloader: deps.Downloader,
		notifier:   notifier,
	}, nil
}

// Drain publishes admissible entries until the queue empties, the daily
// limit is hit, or the platform reports its quota exhausted.
func (c *Controller) Drain(ctx context.Context) (*Result, error) {
	today := store.CounterDate(time.Now())
	counters, err := c.store.CountersFor(ctx, today)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	limit := c.cfg.Publish.DailyUploadLimit
	remaining := limit - counters.UploadsDone
	if remaining <= 0 {
		c.logger.Info("daily upload limit reached",
			logging.Int("limit", limit),
			logging.Int("uploads_done", counters.UploadsDone))
		return result, nil
	}

	entries, err := c.store.AdmissibleEntries(ctx, remaining)
	if err != nil {
		return nil, err
	}
	result.Remaining = remaining - len(entries)
	if result.Remaining < 0 {
		result.Remaining = 0
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		entryCtx := services.WithRequestID(ctx, uuid.NewString())
		entryLogger := logging.WithContext(entryCtx, c.logger).With(
			logging.Int64("entry_id", entry.ID),
			logging.String("title", entry.Title))

		published, err := c.publishEntry(entryCtx, today, entry, entryLogger)
		if err != nil {
			if errors.Is(err, services.ErrQuotaExhausted) {
				entryLogger.Warn("platform quota exhausted, stopping drain")
				return result, nil
			}
			result.Failed++
			entryLogger.Error("publish failed", logging.Error(err))
			if markErr := c.store.MarkEntryFailed(ctx, entry, err.Error()); markErr != nil {
				return result, markErr
			}
			if services.IsFatal(err) {
				return result, err
			}
			continue
		}

		result.Uploaded++
		entryLogger.Info("video published",
			logging.String("external_id", published.ExternalID),
			logging.String("url", published.URL))
		if notifyErr := c.notifier.NotifyVideoPublished(ctx, entry.Title, published.URL); notifyErr != nil {
			entryLogger.Warn("notify publish", logging.Error(notifyErr))
		}
	}
	return result, nil
}

// publishEntry uploads one entry, materializing an evicted artifact from
// remote storage first when needed.
func (c *Controller) publishEntry(ctx context.Context, today string, entry *item.QueueEntry, logger *slog.Logger) (*publish.Published, error) {
	artifact, err := c.store.ArtifactByID(ctx, entry.ArtifactID)
	if err != nil {
		return nil, fmt.Errorf("artifact %d for entry %d: %w", entry.ArtifactID, entry.ID, err)
	}

	filePath, cleanup, err := c.materialize(ctx, artifact, logger)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var published *publish.Published
	err = retry.Do(ctx, retry.PublishPolicy, logger, "publish video", func(ctx context.Context) error {
		result, publishErr := c.publisher.Publish(ctx, publish.Request{
			FilePath:    filePath,
			Title:       entry.Title,
			Description: entry.Description,
			Tags:        entry.Tags,
		})
		if publishErr != nil {
			return publishErr
		}
		published = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.store.MarkEntryUploaded(ctx, entry, published.ExternalID, published.URL); err != nil {
		return nil, err
	}
	if err := c.store.IncrementCounter(ctx, today, store.CounterUploadsDone, 1); err != nil {
		return nil, err
	}
	if err := c.store.IncrementCounter(ctx, today, store.CounterAPIUnitsSpent, publish.UploadUnitCost); err != nil {
		return nil, err
	}
	return published, nil
}

// materialize returns a readable local path for the artifact's video. Local
// copies are used in place; evicted copies are fetched to a temp file the
// returned cleanup removes.
func (c *Controller) materialize(ctx context.Context, artifact *item.Artifact, logger *slog.Logger) (string, func(), error) {
	noop := func() {}
	if artifact.LocalPath != "" {
		if _, err := os.Stat(artifact.LocalPath); err == nil {
			return artifact.LocalPath, noop, nil
		}
		logger.Warn("local copy missing, falling back to remote",
			logging.String("path", artifact.LocalPath))
	}

	if artifact.RemoteID == "" {
		return "", noop, services.Wrap(services.ErrValidation, "publish", "materialize",
			fmt.Sprintf("artifact %d has no local or remote copy", artifact.ID), nil)
	}
	if c.downloader == nil {
		return "", noop, services.Wrap(services.ErrConfiguration, "publish", "materialize",
			fmt.Sprintf("artifact %d is remote only and no object store is configured", artifact.ID), nil)
	}

	dir, err := os.MkdirTemp("", "storyreel-publish-")
	if err != nil {
		return "", noop, fmt.Errorf("temp dir for artifact %d: %w", artifact.ID, err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("remove temp download", logging.Error(err))
		}
	}

	dest := filepath.Join(dir, downloadName(artifact))
	err = retry.Do(ctx, retry.StoragePolicy, logger, "download video", func(ctx context.Context) error {
		return c.downloader.Download(ctx, artifact.RemoteID, dest)
	})
	if err != nil {
		cleanup()
		return "", noop, err
	}
	return dest, cleanup, nil
}

func downloadName(artifact *item.Artifact) string {
	base := filepath.Base(artifact.LocalPath)
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = strings.ReplaceAll(artifact.RemoteID, string(filepath.Separator), "_") + ".mp4"
	}
	return base
}
