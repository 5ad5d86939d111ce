// Package pipeline drives work items through discovery, rewrite, media
// generation and publish enqueueing as one crash-recoverable run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"storyreel/internal/censor"
	"storyreel/internal/config"
	"storyreel/internal/item"
	"storyreel/internal/logging"
	"storyreel/internal/notifications"
	"storyreel/internal/segment"
	"storyreel/internal/services"
	"storyreel/internal/services/objstore"
	"storyreel/internal/services/render"
	"storyreel/internal/services/rewrite"
	"storyreel/internal/services/source"
	"storyreel/internal/services/speech"
	"storyreel/internal/store"
)

// ErrRunActive indicates another process already holds the run lock.
var ErrRunActive = errors.New("another run is active")

// Fetcher discovers story candidates at an origin.
type Fetcher interface {
	Fetch(ctx context.Context, origin source.Origin) ([]source.Candidate, error)
}

// Synthesizer narrates text to an audio file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, dest string) (*speech.Result, error)
}

// VideoRenderer renders one part video.
type VideoRenderer interface {
	Render(ctx context.Context, spec render.Spec) (*render.Result, error)
}

// ObjectStore uploads artifacts to remote storage. Nil disables uploads.
type ObjectStore interface {
	Upload(ctx context.Context, localPath string) (*objstore.Stored, error)
}

// Runner executes one pipeline run end to end.
type Runner struct {
	cfg      *config.Config
	store    *store.Store
	logger   *slog.Logger
	origins  []source.Origin
	fetcher  Fetcher
	rewriter rewrite.Rewriter
	vocab    *censor.Vocabulary
	speech   Synthesizer
	renderer VideoRenderer
	storage  ObjectStore
	notifier notifications.Service
	splitter *segment.Segmenter
}

// Deps bundles the collaborators a Runner needs.
type Deps struct {
	Store    *store.Store
	Logger   *slog.Logger
	Origins  []source.Origin
	Fetcher  Fetcher
	Rewriter rewrite.Rewriter
	Vocab    *censor.Vocabulary
	Speech   Synthesizer
	Renderer VideoRenderer
	Storage  ObjectStore
	Notifier notifications.Service
}

// NewRunner wires a runner. Storage may be nil when no object store is
// configured.
func NewRunner(cfg *config.Config, deps Deps) (*Runner, error) {
	if cfg == nil || deps.Store == nil {
		return nil, errors.New("pipeline runner requires config and store")
	}
	if deps.Fetcher == nil || deps.Rewriter == nil || deps.Speech == nil || deps.Renderer == nil {
		return nil, errors.New("pipeline runner requires fetcher, rewriter, speech and renderer")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Runner{
		cfg:      cfg,
		store:    deps.Store,
		logger:   logger,
		origins:  deps.Origins,
		fetcher:  deps.Fetcher,
		rewriter: deps.Rewriter,
		vocab:    deps.Vocab,
		speech:   deps.Speech,
		renderer: deps.Renderer,
		storage:  deps.Storage,
		notifier: notifier,
		splitter: segment.New(segment.Config{
			WordsPerMinute:     cfg.Segmenter.WordsPerMinute,
			MaxDurationSeconds: cfg.Segmenter.MaxDurationSeconds,
		}),
	}, nil
}

// Run executes one pipeline pass: reclaim crashed runs, discover new items,
// then process each pending item in turn. Cancellation stops between items,
// never mid-transaction.
func (r *Runner) Run(ctx context.Context) (*item.Run, error) {
	lock := flock.New(r.cfg.RunLockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, ErrRunActive
	}
	defer func() { _ = lock.Unlock() }()

	staleCutoff := time.Now().Add(-time.Duration(r.cfg.Workflow.StaleRunThreshold) * time.Second)
	reclaimed, err := r.store.ReclaimStaleRuns(ctx, staleCutoff)
	if err != nil {
		return nil, err
	}
	if reclaimed > 0 {
		r.logger.Warn("reclaimed stale runs", logging.Int("count", reclaimed))
	}

	run, err := r.store.CreateRun(ctx, "pipeline")
	if err != nil {
		return nil, err
	}
	ctx = services.WithRunID(ctx, run.ID)
	logger := r.logger.With(logging.String(logging.FieldRunID, run.ID))
	started := time.Now()

	stopHeartbeat := r.startHeartbeat(ctx, run.ID, logger)
	defer stopHeartbeat()

	runErr := r.execute(ctx, run, logger)

	// Finalization must land even when the run context was cancelled.
	finalCtx := context.WithoutCancel(ctx)
	status := item.RunStatusCompleted
	message := ""
	if runErr != nil {
		status = item.RunStatusFailed
		message = runErr.Error()
	}
	if err := r.store.CompleteRun(finalCtx, run, status, message); err != nil {
		logger.Error("finalize run", logging.Error(err))
	}

	if runErr != nil {
		if notifyErr := r.notifier.NotifyError(finalCtx, runErr, "pipeline run"); notifyErr != nil {
			logger.Warn("notify error", logging.Error(notifyErr))
		}
		return run, runErr
	}
	if err := r.notifier.NotifyRunCompleted(finalCtx, run.ItemsProcessed, run.ItemsFailed, time.Since(started)); err != nil {
		logger.Warn("notify run completed", logging.Error(err))
	}
	return run, nil
}

func (r *Runner) execute(ctx context.Context, run *item.Run, logger *slog.Logger) error {
	discovered, err := r.discover(ctx, run, logger)
	if err != nil {
		return err
	}
	run.ItemsDiscovered = discovered

	pending, err := r.store.ItemsByStatus(ctx, r.cfg.Workflow.ItemBatchSize,
		item.StatusNew, item.StatusRewriting, item.StatusRewritten)
	if err != nil {
		return err
	}

	if err := r.notifier.NotifyRunStarted(ctx, len(pending)); err != nil {
		logger.Warn("notify run started", logging.Error(err))
	}
	if err := r.store.UpdateRunProgress(ctx, run); err != nil {
		return err
	}

	for _, pendingItem := range pending {
		if ctx.Err() != nil {
			logger.Info("run interrupted, stopping at item boundary")
			break
		}

		itemCtx := services.WithItemID(ctx, pendingItem.ID)
		itemLogger := logging.WithContext(itemCtx, r.logger)

		if err := r.processItem(itemCtx, run, pendingItem, itemLogger); err != nil {
			run.ItemsFailed++
			itemLogger.Error("item failed", logging.Error(err))
			if services.IsFatal(err) {
				return err
			}
			if notifyErr := r.notifier.NotifyError(itemCtx, err, fmt.Sprintf("item %d", pendingItem.ID)); notifyErr != nil {
				itemLogger.Warn("notify error", logging.Error(notifyErr))
			}
			r.pauseAfterFailure(ctx)
		} else {
			run.ItemsProcessed++
		}

		run.CurrentStage = ""
		run.CurrentItemID = 0
		if err := r.store.UpdateRunProgress(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

// pauseAfterFailure waits ErrorRetryInterval before the next item is
// attempted, or returns early when the run is cancelled.
func (r *Runner) pauseAfterFailure(ctx context.Context) {
	pause := time.Duration(r.cfg.Workflow.ErrorRetryInterval) * time.Second
	if pause <= 0 {
		return
	}
	timer := time.NewTimer(pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// startHeartbeat refreshes the run's liveness stamp until stopped. The
// returned stop function blocks until the loop exits.
func (r *Runner) startHeartbeat(ctx context.Context, runID string, logger *slog.Logger) func() {
	interval := time.Duration(r.cfg.Workflow.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.store.HeartbeatRun(ctx, runID); err != nil {
					logger.Warn("heartbeat failed", logging.Error(err))
				}
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}
