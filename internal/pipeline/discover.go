package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"storyreel/internal/item"
	"storyreel/internal/logging"
	"storyreel/internal/retry"
	"storyreel/internal/services"
	"storyreel/internal/services/source"
	"storyreel/internal/store"
)

// discover fetches candidates from every origin and ingests the ones that
// pass validation. One unreachable origin never sinks the whole run.
func (r *Runner) discover(ctx context.Context, run *item.Run, logger *slog.Logger) (int, error) {
	run.CurrentStage = "discover"
	ctx = services.WithStage(ctx, run.CurrentStage)
	logger = logging.WithContext(ctx, r.logger)
	if err := r.store.UpdateRunProgress(ctx, run); err != nil {
		return 0, err
	}

	created := 0
	for _, origin := range r.origins {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}

		var candidates []source.Candidate
		err := retry.Do(ctx, retry.SourcePolicy, logger, "fetch "+origin.Name, func(ctx context.Context) error {
			var fetchErr error
			candidates, fetchErr = r.fetcher.Fetch(ctx, origin)
			return fetchErr
		})
		if err != nil {
			logger.Error("origin fetch failed",
				logging.String("origin", origin.Name),
				logging.Error(err))
			continue
		}

		for _, candidate := range candidates {
			if reason := r.rejectReason(candidate); reason != "" {
				logger.Debug("candidate skipped",
					logging.String("external_id", candidate.ExternalID),
					logging.String("reason", reason))
				continue
			}

			stored, isNew, err := r.store.IngestItem(ctx, &item.WorkItem{
				ExternalID: candidate.ExternalID,
				Origin:     candidate.Origin,
				Title:      candidate.Title,
				Body:       candidate.Body,
				Author:     candidate.Author,
				Score:      candidate.Score,
				Priority:   candidate.Priority,
				WordCount:  wordCount(candidate.Body),
			})
			if err != nil {
				return created, err
			}
			if !isNew {
				continue
			}
			created++
			logger.Info("item discovered",
				logging.Int64("item_id", stored.ID),
				logging.String("origin", stored.Origin),
				logging.String("title", stored.Title))
			if err := r.store.IncrementCounter(ctx, store.CounterDate(stored.DiscoveredAt), store.CounterItemsDiscovered, 1); err != nil {
				return created, err
			}
		}
	}
	return created, nil
}

// rejectReason applies the discovery filters. An empty string means the
// candidate is acceptable.
func (r *Runner) rejectReason(candidate source.Candidate) string {
	if strings.TrimSpace(candidate.Title) == "" || strings.TrimSpace(candidate.Body) == "" {
		return "missing title or body"
	}
	if min := r.cfg.Source.MinScore; min > 0 && candidate.Score < min {
		return "score below threshold"
	}
	if min := r.cfg.Source.MinWordCount; min > 0 && wordCount(candidate.Body) < min {
		return "too short"
	}
	return ""
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
