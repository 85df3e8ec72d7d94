package scoring

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"quotewire/internal/store"
)

// Pass scores every unprocessed quote in the store.
type Pass struct {
	store     store.Store
	scorer    Scorer
	logger    *zap.Logger
	batchSize int
}

func NewPass(st store.Store, scorer Scorer, batchSize int, logger *zap.Logger) *Pass {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Pass{store: st, scorer: scorer, logger: logger, batchSize: batchSize}
}

type Result struct {
	Scored int
	Failed int
}

// Run works through unscored quotes a batch at a time. Quotes the scorer
// fails on stay unprocessed for the next run; once a batch yields no
// progress the pass stops.
func (p *Pass) Run(ctx context.Context) (Result, error) {
	var res Result
	failed := make(map[string]struct{})

	for {
		pending, err := p.store.Unscored(ctx, p.batchSize+len(failed))
		if err != nil {
			return res, err
		}

		var scores []store.Score
		for _, q := range pending {
			if _, skip := failed[q.ID]; skip {
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}

			text := Clean(q.Text)
			v, err := p.scorer.Score(ctx, text)
			if err != nil {
				p.logger.Warn("Scoring failed", zap.String("quote_id", q.ID), zap.Error(err))
				failed[q.ID] = struct{}{}
				res.Failed++
				continue
			}
			scores = append(scores, store.Score{ID: q.ID, Text: text, Value: v})
			if len(scores) == p.batchSize {
				break
			}
		}

		if len(scores) == 0 {
			break
		}
		if err := p.store.RecordScores(ctx, scores); err != nil {
			return res, err
		}
		res.Scored += len(scores)
		p.logger.Info("Scored batch", zap.Int("count", len(scores)))
	}
	return res, nil
}

// Clean strips wrapping quote marks and a trailing comma from quote text.
func Clean(text string) string {
	t := strings.TrimSpace(text)
	t = strings.Trim(t, `"'“”‘’`)
	t = strings.TrimSpace(t)
	return strings.TrimSuffix(t, ",")
}
