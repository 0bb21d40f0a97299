// Package pipeline orchestrates one meal job end to end: claim the
// idempotency key, fetch the photo, identify food items, resolve each
// item against the nutrition database, aggregate, persist, notify, and
// commit. All collaborators are injected as interfaces.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/platewise/platewise/aggregate"
	"github.com/platewise/platewise/dedup"
	"github.com/platewise/platewise/gemini"
	"github.com/platewise/platewise/log"
	"github.com/platewise/platewise/metrics"
	"github.com/platewise/platewise/telegram"
	"github.com/platewise/platewise/types"
)

// DefaultMaxConcurrentItems bounds per-item resolution within one job.
const DefaultMaxConcurrentItems = 4

// ImageFetcher downloads the meal photo referenced by a job.
type ImageFetcher interface {
	FetchImage(ctx context.Context, fileID string) ([]byte, error)
}

// Identifier extracts food items from an image.
type Identifier interface {
	Identify(ctx context.Context, image []byte) (*gemini.Identification, error)
}

// Resolver resolves one identified item to nutrition facts.
type Resolver interface {
	Resolve(ctx context.Context, item types.FoodItemCandidate) (types.ResolvedNutrition, error)
}

// Sink persists a completed meal.
type Sink interface {
	Append(ctx context.Context, job types.MealJob, items []types.ResolvedNutrition, summary *types.MealSummary) error
}

// Notifier delivers a message back to the submitting chat.
type Notifier interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Archiver stores the raw meal photo. Optional.
type Archiver interface {
	Store(ctx context.Context, key string, image []byte) error
}

// Config wires a Pipeline.
type Config struct {
	Guard      dedup.Guard
	Fetcher    ImageFetcher
	Identifier Identifier
	Resolver   Resolver
	Sink       Sink
	Notifier   Notifier
	// Archiver is optional; nil disables photo archival.
	Archiver Archiver
	// MaxConcurrentItems bounds the per-item fan-out (default 4).
	MaxConcurrentItems int
	// Collector records pipeline metrics. Optional.
	Collector *metrics.Collector
}

// Pipeline processes meal jobs. Safe for concurrent use.
type Pipeline struct {
	config Config
}

// NewPipeline validates the wiring and creates a Pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Guard == nil:
		return nil, errors.New("pipeline requires a dedup guard")
	case cfg.Fetcher == nil:
		return nil, errors.New("pipeline requires an image fetcher")
	case cfg.Identifier == nil:
		return nil, errors.New("pipeline requires an identifier")
	case cfg.Resolver == nil:
		return nil, errors.New("pipeline requires a resolver")
	case cfg.Sink == nil:
		return nil, errors.New("pipeline requires a sink")
	case cfg.Notifier == nil:
		return nil, errors.New("pipeline requires a notifier")
	}
	if cfg.MaxConcurrentItems <= 0 {
		cfg.MaxConcurrentItems = DefaultMaxConcurrentItems
	}
	return &Pipeline{config: cfg}, nil
}

// Process runs one job to a terminal outcome. It never panics a bad
// job back to the consumer: every path maps to a JobOutcome status
// the consumer can translate into a queue action.
func (p *Pipeline) Process(ctx context.Context, job types.MealJob, logger *log.Logger) *types.JobOutcome {
	p.config.Collector.IncJobStarted()

	claim, err := p.config.Guard.Claim(ctx, job.IdempotencyKey)
	if err != nil {
		logger.Error("claim failed", map[string]any{"error": err.Error()})
		p.config.Collector.IncJobRetryable()
		return &types.JobOutcome{Status: types.JobRetryable, Err: err}
	}

	switch claim.Result {
	case dedup.AlreadyCompleted:
		logger.Info("duplicate delivery, already committed", nil)
		p.config.Collector.IncJobDuplicate()
		p.resendCached(ctx, job, claim.Summary, logger)
		return &types.JobOutcome{Status: types.JobDuplicate, Summary: claim.Summary}
	case dedup.AlreadyInProgress:
		logger.Info("another attempt holds the claim", nil)
		p.config.Collector.IncJobInProgress()
		return &types.JobOutcome{Status: types.JobInProgress}
	}

	outcome := p.process(ctx, job, logger)

	switch outcome.Status {
	case types.JobCommitted:
		p.config.Collector.IncJobCommitted()
	case types.JobRejected:
		p.config.Collector.IncJobRejected()
		p.release(ctx, job, logger)
	case types.JobRetryable:
		p.config.Collector.IncJobRetryable()
		p.release(ctx, job, logger)
	}
	return outcome
}

// process runs the claimed path. The caller owns claim bookkeeping.
func (p *Pipeline) process(ctx context.Context, job types.MealJob, logger *log.Logger) *types.JobOutcome {
	image, err := p.config.Fetcher.FetchImage(ctx, job.ImageReference)
	if err != nil {
		logger.Error("image fetch failed", map[string]any{"error": err.Error()})
		return failure(err)
	}
	logger.Debug("image fetched", map[string]any{"bytes": len(image)})

	p.archive(ctx, job, image, logger)

	identification, err := p.config.Identifier.Identify(ctx, image)
	if err != nil {
		if errors.Is(err, types.ErrIdentification) {
			// No food in the photo (or unusable model output after a
			// retry). Terminal: tell the user instead of redelivering.
			logger.Warn("nothing identifiable in image", map[string]any{"error": err.Error()})
			p.notify(ctx, job, telegram.NoFoodMessage, logger)
			return &types.JobOutcome{Status: types.JobRejected, Err: err}
		}
		logger.Error("identification failed", map[string]any{"error": err.Error()})
		return failure(err)
	}

	p.config.Collector.AddItemsIdentified(len(identification.Items))
	p.config.Collector.AddItemsDropped(identification.Dropped)
	logger.Info("items identified", map[string]any{
		"items":   len(identification.Items),
		"dropped": identification.Dropped,
	})

	outcomes := p.resolveAll(ctx, identification.Items, logger)

	summary, resolved, err := aggregate.Summarize(outcomes)
	if err != nil {
		logger.Error("aggregation failed", map[string]any{"error": err.Error()})
		return failure(err)
	}

	if err := p.config.Sink.Append(ctx, job, resolved, summary); err != nil {
		logger.Error("sink append failed", map[string]any{"error": err.Error()})
		return failure(types.NewStageError(types.ErrStore, "sink", err))
	}

	p.notify(ctx, job, telegram.FormatSummary(resolved, summary), logger)

	if err := p.config.Guard.Commit(ctx, job.IdempotencyKey, summary); err != nil {
		// The meal is already persisted; redelivering would duplicate
		// the write. Ack anyway and let the in_progress record expire.
		logger.Error("commit failed after persist, acking regardless", map[string]any{
			"error": err.Error(),
		})
	}

	logger.Info("job committed", map[string]any{
		"item_count": summary.ItemCount,
		"unresolved": summary.Unresolved,
		"calories":   summary.Totals.Calories,
	})
	return &types.JobOutcome{Status: types.JobCommitted, Summary: summary, Items: resolved}
}

// resolveAll fans out item resolution with bounded concurrency,
// preserving identification order in the returned outcomes.
func (p *Pipeline) resolveAll(ctx context.Context, items []types.FoodItemCandidate, logger *log.Logger) []aggregate.Outcome {
	outcomes := make([]aggregate.Outcome, len(items))
	sem := make(chan struct{}, p.config.MaxConcurrentItems)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item types.FoodItemCandidate) {
			defer wg.Done()
			defer func() { <-sem }()

			resolved, err := p.config.Resolver.Resolve(ctx, item)
			if err != nil {
				p.config.Collector.IncItemUnresolved()
				logger.Warn("item unresolved", map[string]any{
					"item":  item.Name,
					"error": err.Error(),
				})
				outcomes[i] = aggregate.Outcome{Item: item, Err: err}
				return
			}
			p.config.Collector.IncItemResolved()
			outcomes[i] = aggregate.Outcome{Item: item, Resolved: &resolved}
		}(i, item)
	}
	wg.Wait()
	return outcomes
}

// archive stores the raw photo best-effort; archival never fails a job.
func (p *Pipeline) archive(ctx context.Context, job types.MealJob, image []byte, logger *log.Logger) {
	if p.config.Archiver == nil {
		return
	}
	if err := p.config.Archiver.Store(ctx, job.IdempotencyKey, image); err != nil {
		p.config.Collector.IncArchiveFailure()
		logger.Warn("photo archive failed", map[string]any{"error": err.Error()})
	}
}

// notify sends best-effort: a delivery failure is recorded but never
// changes the job outcome, since the durable write may already exist.
func (p *Pipeline) notify(ctx context.Context, job types.MealJob, text string, logger *log.Logger) {
	if err := p.config.Notifier.SendMessage(ctx, job.ChatIdentity, text); err != nil {
		p.config.Collector.IncNotifyFailure()
		logger.Warn("notification failed", map[string]any{"error": err.Error()})
	}
}

// resendCached replays the summary notification on a duplicate
// delivery when the committing attempt's summary is still cached.
// Covers the crash window between commit and ack.
func (p *Pipeline) resendCached(ctx context.Context, job types.MealJob, summary *types.MealSummary, logger *log.Logger) {
	if summary == nil {
		return
	}
	p.notify(ctx, job, telegram.FormatSummary(nil, summary), logger)
}

func (p *Pipeline) release(ctx context.Context, job types.MealJob, logger *log.Logger) {
	if err := p.config.Guard.Release(ctx, job.IdempotencyKey); err != nil {
		logger.Warn("claim release failed, expiry will reclaim", map[string]any{
			"error": err.Error(),
		})
	}
}

// failure maps a stage error to its queue-facing outcome.
func failure(err error) *types.JobOutcome {
	if types.Retryable(err) {
		return &types.JobOutcome{Status: types.JobRetryable, Err: err}
	}
	return &types.JobOutcome{Status: types.JobRejected, Err: fmt.Errorf("terminal: %w", err)}
}
