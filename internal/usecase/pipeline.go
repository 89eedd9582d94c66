package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"TenderRadar/internal/domain"
	"TenderRadar/internal/ports"
	"TenderRadar/internal/scanner"
)

// ErrSourceNotFound is returned by HarvestByID for an unknown source id.
var ErrSourceNotFound = errors.New("source not found")

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Repository ports.NoticeRepository
	Registry   *scanner.Registry
	Stage      *Stage
	Logger     *slog.Logger
}

// Pipeline runs sources one at a time through adapter, filter stage and
// dispatcher. It never returns a harvesting failure to its caller.
type Pipeline struct {
	repository ports.NoticeRepository
	registry   *scanner.Registry
	stage      *Stage
	logger     *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		repository: deps.Repository,
		registry:   deps.Registry,
		stage:      deps.Stage,
		logger:     logger,
	}
}

// HarvestAll processes every enabled source in list order.
func (p *Pipeline) HarvestAll(ctx context.Context) domain.HarvestStats {
	logger := p.logger.With("run_id", uuid.NewString())
	started := time.Now()

	var total domain.HarvestStats
	sources, err := p.repository.GetSources(ctx)
	if err != nil {
		logger.Error("load sources failed", "error", err)
		return total
	}

	enabled := 0
	for _, source := range sources {
		if !source.Enabled {
			continue
		}
		if ctx.Err() != nil {
			logger.Warn("run cancelled", "error", ctx.Err())
			break
		}
		enabled++
		total.Add(p.harvest(ctx, source, logger))
	}

	logger.Info("run finished",
		"sources", enabled,
		"candidates", total.Candidates,
		"known", total.Known,
		"discarded", total.Discarded,
		"persisted", total.Persisted,
		"dispatched", total.Dispatched,
		"elapsed", time.Since(started).Round(time.Millisecond))
	return total
}

// HarvestOne runs the full pipeline for a single source.
func (p *Pipeline) HarvestOne(ctx context.Context, source domain.Source) domain.HarvestStats {
	return p.harvest(ctx, source, p.logger.With("run_id", uuid.NewString()))
}

// HarvestByID looks the source up and harvests it regardless of its enabled
// flag.
func (p *Pipeline) HarvestByID(ctx context.Context, id int64) (domain.HarvestStats, error) {
	sources, err := p.repository.GetSources(ctx)
	if err != nil {
		return domain.HarvestStats{}, fmt.Errorf("load sources: %w", err)
	}
	for _, source := range sources {
		if source.ID == id {
			return p.HarvestOne(ctx, source), nil
		}
	}
	return domain.HarvestStats{}, fmt.Errorf("%w: %d", ErrSourceNotFound, id)
}

func (p *Pipeline) harvest(ctx context.Context, source domain.Source, runLogger *slog.Logger) (stats domain.HarvestStats) {
	logger := runLogger.With("site_id", source.ID, "site", source.Name)
	stats = domain.HarvestStats{SourceID: source.ID, SourceName: source.Name}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("source run panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	adapter, err := p.registry.Resolve(source)
	if err != nil {
		logger.Warn("source skipped", "error", err)
		return stats
	}

	rules, err := p.repository.GetActiveKeywordRules(ctx)
	if err != nil {
		logger.Error("load keyword rules failed", "error", err)
		return stats
	}

	items := adapter.Harvest(ctx, source)
	stats.Candidates = len(items)
	logger.Info("source harvested", "crawler_type", source.CrawlerType, "candidates", len(items))

	for _, item := range items {
		outcome, dispatched := p.stage.Process(ctx, item, rules, logger)
		switch outcome {
		case OutcomeKnown, OutcomeDuplicate:
			stats.Known++
		case OutcomeDiscarded, OutcomeRejected:
			stats.Discarded++
		case OutcomePersisted:
			stats.Persisted++
		}
		stats.Dispatched += dispatched
	}

	logger.Info("source processed",
		"known", stats.Known,
		"discarded", stats.Discarded,
		"persisted", stats.Persisted,
		"dispatched", stats.Dispatched)
	return stats
}
