package censor

import (
	"context"
	"log/slog"

	"storyreel/internal/logging"
	"storyreel/internal/store"
)

// TermLister asks a language model which profane words appear in a text.
type TermLister interface {
	ListCensorTerms(ctx context.Context, text string) ([]string, error)
}

// Vocabulary maintains the store-cached censor term set, extending it with
// model-detected terms as new texts flow through.
type Vocabulary struct {
	store  *store.Store
	lister TermLister
	logger *slog.Logger
}

// NewVocabulary wires the cached vocabulary. A nil lister disables detection
// and the cache alone is used.
func NewVocabulary(st *store.Store, lister TermLister, logger *slog.Logger) *Vocabulary {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Vocabulary{store: st, lister: lister, logger: logger}
}

// CensorFor returns a censor covering cached terms plus any new terms the
// model finds in the text. Detection failures fall back to the cache: a
// missing bleep list must not fail the pipeline.
func (v *Vocabulary) CensorFor(ctx context.Context, text string) (*Censor, error) {
	cached, err := v.store.CensorTerms(ctx)
	if err != nil {
		return nil, err
	}

	if v.lister == nil {
		return New(cached), nil
	}

	detected, err := v.lister.ListCensorTerms(ctx, text)
	if err != nil {
		v.logger.Warn("censor term detection failed, using cached vocabulary",
			logging.Error(err))
		return New(cached), nil
	}
	if len(detected) > 0 {
		if err := v.store.SaveCensorTerms(ctx, detected); err != nil {
			return nil, err
		}
	}
	return New(append(cached, detected...)), nil
}
