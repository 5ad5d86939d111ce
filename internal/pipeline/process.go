package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storyreel/internal/censor"
	"storyreel/internal/item"
	"storyreel/internal/logging"
	"storyreel/internal/retry"
	"storyreel/internal/services"
	"storyreel/internal/services/render"
	"storyreel/internal/services/speech"
	"storyreel/internal/store"
)

// maxPublishTitleLength is the longest title the publish service accepts.
const maxPublishTitleLength = 100

// processItem moves one item as far through the pipeline as it can get.
// Rewriting is committed atomically, so a crash mid-rewrite leaves the item
// in rewriting with no parts and the next run redoes the stage from the
// original text.
func (r *Runner) processItem(ctx context.Context, run *item.Run, it *item.WorkItem, logger *slog.Logger) error {
	run.CurrentItemID = it.ID

	if it.Status == item.StatusNew || it.Status == item.StatusRewriting {
		if err := r.rewriteItem(ctx, run, it, logger); err != nil {
			if markErr := r.store.MarkItemFailed(ctx, it, err.Error()); markErr != nil {
				logger.Error("mark item failed", logging.Error(markErr))
			}
			r.countFailure(ctx, logger)
			return err
		}
	}

	if err := r.generateMedia(ctx, run, it, logger); err != nil {
		return err
	}
	return r.finalizeItem(ctx, it, logger)
}

// rewriteItem runs the language model stage: rewrite the story, split it into
// parts, title and caption each part, and commit everything in one shot.
func (r *Runner) rewriteItem(ctx context.Context, run *item.Run, it *item.WorkItem, logger *slog.Logger) error {
	run.CurrentStage = "rewrite"
	ctx = services.WithStage(ctx, run.CurrentStage)
	logger = logging.WithContext(ctx, r.logger)
	if err := r.store.UpdateRunProgress(ctx, run); err != nil {
		return err
	}

	if it.Status == item.StatusNew {
		if err := r.store.TransitionItem(ctx, it, item.StatusRewriting); err != nil {
			return err
		}
	}

	var rewritten struct {
		Title string
		Body  string
		Tags  []string
	}
	err := retry.Do(ctx, retry.RewritePolicy, logger, "rewrite story", func(ctx context.Context) error {
		result, rewriteErr := r.rewriter.RewriteStory(ctx, it.Title, it.Body)
		if rewriteErr != nil {
			return rewriteErr
		}
		rewritten.Title = result.Title
		rewritten.Body = result.Body
		rewritten.Tags = result.Tags
		return nil
	})
	if err != nil {
		return err
	}

	if len(rewritten.Tags) == 0 {
		tags, tagErr := r.rewriter.SuggestTags(ctx, rewritten.Title)
		if tagErr != nil {
			logger.Warn("tag suggestion failed, publishing untagged", logging.Error(tagErr))
		} else {
			rewritten.Tags = tags
		}
	}

	cen, err := r.censorFor(ctx, rewritten.Body)
	if err != nil {
		return err
	}

	segments := r.splitter.Split(rewritten.Body)
	if len(segments) == 0 {
		return fmt.Errorf("rewrite of item %d produced no narratable text", it.ID)
	}

	baseTitle, err := r.partBaseTitle(ctx, rewritten.Title, len(segments), logger)
	if err != nil {
		return err
	}

	parts := make([]*item.Part, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, &item.Part{
			PartNumber: seg.Index,
			TotalParts: seg.Total,
			Body:       seg.Body,
			WordCount:  seg.WordCount,
			Title:      partTitle(baseTitle, seg.Index, seg.Total),
			Caption:    cen.MaskText(seg.Body),
		})
	}

	it.RewrittenTitle = rewritten.Title
	it.RewrittenBody = rewritten.Body
	it.Tags = rewritten.Tags
	it.WordCount = wordCount(rewritten.Body)
	it.EstimatedDuration = r.splitter.EstimateDuration(rewritten.Body)

	if err := r.store.SaveRewrite(ctx, it, parts); err != nil {
		return err
	}
	logger.Info("item rewritten",
		logging.Int("parts", len(parts)),
		logging.Int("estimated_duration", it.EstimatedDuration))
	return nil
}

// generateMedia narrates, renders and enqueues every unfinished part. A
// failed part is recorded and skipped; the remaining parts still run.
func (r *Runner) generateMedia(ctx context.Context, run *item.Run, it *item.WorkItem, logger *slog.Logger) error {
	run.CurrentStage = "media"
	ctx = services.WithStage(ctx, run.CurrentStage)
	logger = logging.WithContext(ctx, r.logger)
	if err := r.store.UpdateRunProgress(ctx, run); err != nil {
		return err
	}

	parts, err := r.store.PartsForItem(ctx, it.ID)
	if err != nil {
		return err
	}

	var cen *censor.Censor
	for _, part := range parts {
		switch part.Status {
		case item.PartStatusPending, item.PartStatusMediaGenerated:
		default:
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if cen == nil {
			cen, err = r.censorFor(ctx, it.RewrittenBody)
			if err != nil {
				return err
			}
		}

		partLogger := logger.With(logging.Int("part", part.PartNumber))
		if err := r.processPart(ctx, it, part, cen, partLogger); err != nil {
			run.ArtifactsFailed++
			partLogger.Error("part failed", logging.Error(err))
			if markErr := r.store.MarkPartFailed(ctx, part, err.Error()); markErr != nil {
				return markErr
			}
			continue
		}
		run.ArtifactsCreated++
	}
	return nil
}

// processPart takes one part from its current status to completed.
func (r *Runner) processPart(ctx context.Context, it *item.WorkItem, part *item.Part, cen *censor.Censor, logger *slog.Logger) error {
	if part.Status == item.PartStatusPending {
		if err := r.renderPart(ctx, it, part, cen, logger); err != nil {
			return err
		}
		if err := r.store.TransitionPart(ctx, part, item.PartStatusMediaGenerated); err != nil {
			return err
		}
	}

	video, err := r.store.ArtifactForPart(ctx, part.ID, item.ArtifactVideo)
	if err != nil {
		return fmt.Errorf("video artifact for part %d: %w", part.ID, err)
	}

	if err := r.uploadArtifact(ctx, video, logger); err != nil {
		return err
	}

	if err := r.enqueueForPublish(ctx, it, part, video); err != nil {
		return err
	}
	return r.store.TransitionPart(ctx, part, item.PartStatusCompleted)
}

// renderPart narrates the part and renders its video into the staging area.
func (r *Runner) renderPart(ctx context.Context, it *item.WorkItem, part *item.Part, cen *censor.Censor, logger *slog.Logger) error {
	dir := r.stagingDir(it)
	audioPath := filepath.Join(dir, fmt.Sprintf("part%02d.mp3", part.PartNumber))
	videoPath := filepath.Join(dir, fmt.Sprintf("part%02d.mp4", part.PartNumber))

	var narration *speech.Result
	err := retry.Do(ctx, retry.SpeechPolicy, logger, "synthesize narration", func(ctx context.Context) error {
		result, synthErr := r.speech.Synthesize(ctx, part.Body, audioPath)
		if synthErr != nil {
			return synthErr
		}
		narration = result
		return nil
	})
	if err != nil {
		return err
	}

	if err := r.store.SaveArtifact(ctx, &item.Artifact{
		PartID:          part.ID,
		Kind:            item.ArtifactAudio,
		LocalPath:       narration.Path,
		DurationSeconds: narration.DurationSeconds,
		SizeBytes:       narration.SizeBytes,
	}); err != nil {
		return err
	}

	rendered, err := r.renderer.Render(ctx, render.Spec{
		AudioPath:       narration.Path,
		Caption:         part.Caption,
		Title:           part.Title,
		OutputPath:      videoPath,
		DurationSeconds: narration.DurationSeconds,
		Bleeps:          cen.Intervals(narration.Marks),
	})
	if err != nil {
		return err
	}

	if err := r.store.SaveArtifact(ctx, &item.Artifact{
		PartID:          part.ID,
		Kind:            item.ArtifactVideo,
		LocalPath:       rendered.Path,
		DurationSeconds: narration.DurationSeconds,
		SizeBytes:       rendered.SizeBytes,
	}); err != nil {
		return err
	}

	if err := r.store.IncrementCounter(ctx, store.CounterDate(time.Now()), store.CounterArtifactsGenerated, 1); err != nil {
		return err
	}
	logger.Info("part rendered",
		logging.Float64("duration_seconds", narration.DurationSeconds),
		logging.String("video", videoPath))
	return nil
}

// uploadArtifact pushes the video to remote storage when one is configured,
// optionally dropping the local copy afterwards.
func (r *Runner) uploadArtifact(ctx context.Context, video *item.Artifact, logger *slog.Logger) error {
	if r.storage == nil || video.RemoteID != "" {
		return nil
	}

	err := retry.Do(ctx, retry.StoragePolicy, logger, "upload video", func(ctx context.Context) error {
		stored, uploadErr := r.storage.Upload(ctx, video.LocalPath)
		if uploadErr != nil {
			return uploadErr
		}
		return r.store.MarkArtifactUploaded(ctx, video, stored.RemoteID, stored.URL)
	})
	if err != nil {
		return err
	}

	if r.cfg.Storage.EvictLocal {
		localPath := video.LocalPath
		if err := r.store.EvictArtifactLocal(ctx, video); err != nil {
			return err
		}
		if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("remove local video", logging.Error(err))
		}
	}
	logger.Info("video uploaded",
		logging.String("remote_id", video.RemoteID),
		logging.Bool("local_evicted", r.cfg.Storage.EvictLocal))
	return nil
}

// enqueueForPublish hands the finished video to the publish queue. A second
// pass over the same artifact is a no-op.
func (r *Runner) enqueueForPublish(ctx context.Context, it *item.WorkItem, part *item.Part, video *item.Artifact) error {
	_, _, err := r.store.EnqueueArtifact(ctx, video, &item.QueueEntry{
		ArtifactID:  video.ID,
		Title:       part.Title,
		Description: buildDescription(it),
		Tags:        it.Tags,
		Priority:    it.Priority,
	})
	return err
}

// finalizeItem settles the item once all parts are terminal. Partial success
// still completes the item; only a total wipeout fails it.
func (r *Runner) finalizeItem(ctx context.Context, it *item.WorkItem, logger *slog.Logger) error {
	parts, err := r.store.PartsForItem(ctx, it.ID)
	if err != nil {
		return err
	}
	if !item.Terminal(parts) {
		logger.Info("item left in progress, parts remain unfinished")
		return nil
	}

	completed := 0
	for _, part := range parts {
		if part.Status == item.PartStatusCompleted {
			completed++
		}
	}

	if completed == 0 {
		err := fmt.Errorf("all %d parts of item %d failed", len(parts), it.ID)
		if markErr := r.store.MarkItemFailed(ctx, it, err.Error()); markErr != nil {
			logger.Error("mark item failed", logging.Error(markErr))
		}
		r.countFailure(ctx, logger)
		return err
	}

	if err := r.store.TransitionItem(ctx, it, item.StatusCompleted); err != nil {
		return err
	}
	if err := r.store.IncrementCounter(ctx, store.CounterDate(time.Now()), store.CounterItemsCompleted, 1); err != nil {
		return err
	}
	logger.Info("item completed",
		logging.Int("parts_completed", completed),
		logging.Int("parts_total", len(parts)))
	return nil
}

// censorFor builds the bleep vocabulary for a text. Without a vocabulary the
// text passes through unmasked.
func (r *Runner) censorFor(ctx context.Context, text string) (*censor.Censor, error) {
	if r.vocab == nil {
		return censor.New(nil), nil
	}
	return r.vocab.CensorFor(ctx, text)
}

// partBaseTitle shrinks the rewritten title until it fits the publish
// service's limit alongside the part suffix. Shortening failures fall back
// to a hard cut at a word boundary.
func (r *Runner) partBaseTitle(ctx context.Context, title string, totalParts int, logger *slog.Logger) (string, error) {
	budget := maxPublishTitleLength
	if totalParts > 1 {
		budget -= len(partSuffix(totalParts, totalParts))
	}
	title = strings.TrimSpace(title)
	if len(title) <= budget {
		return title, nil
	}

	shortened, err := r.rewriter.ShortenTitle(ctx, title, budget)
	if err != nil {
		logger.Warn("title shortening failed, truncating", logging.Error(err))
		return truncateAtWord(title, budget), nil
	}
	shortened = strings.TrimSpace(shortened)
	if shortened == "" || len(shortened) > budget {
		return truncateAtWord(title, budget), nil
	}
	return shortened, nil
}

func partTitle(base string, index, total int) string {
	if total <= 1 {
		return base
	}
	return base + partSuffix(index, total)
}

func partSuffix(index, total int) string {
	return fmt.Sprintf(" [Part %d/%d]", index, total)
}

func truncateAtWord(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

func buildDescription(it *item.WorkItem) string {
	var b strings.Builder
	b.WriteString(it.RewrittenTitle)
	if len(it.Tags) > 0 {
		b.WriteString("\n\n")
		for i, tag := range it.Tags {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString("#" + strings.ReplaceAll(strings.TrimSpace(tag), " ", ""))
		}
	}
	return b.String()
}

func (r *Runner) stagingDir(it *item.WorkItem) string {
	return filepath.Join(r.cfg.Paths.StagingDir, "items", fmt.Sprintf("%d", it.ID))
}

func (r *Runner) countFailure(ctx context.Context, logger *slog.Logger) {
	if err := r.store.IncrementCounter(ctx, store.CounterDate(time.Now()), store.CounterItemsFailed, 1); err != nil {
		logger.Error("increment failure counter", logging.Error(err))
	}
}
