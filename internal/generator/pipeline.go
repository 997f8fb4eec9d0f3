package generator

import (
	"context"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/llm"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/metrics"
)

// Pipeline generates crawler strategies. It holds no per-run state and is safe
// for concurrent use across sources.
type Pipeline struct {
	graph   *Graph
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewPipeline creates a pipeline over the default stage graph.
func NewPipeline(fetcher PageFetcher, gateway llm.Gateway, cfg Config, log logger.Logger, m *metrics.Metrics) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	stages := NewStages(fetcher, gateway, cfg, log)
	return NewPipelineWithGraph(DefaultGraph(stages, log, m), log, m)
}

// NewPipelineWithGraph creates a pipeline over a custom graph.
func NewPipelineWithGraph(graph *Graph, log logger.Logger, m *metrics.Metrics) *Pipeline {
	if log == nil {
		log = logger.NewNop()
	}
	return &Pipeline{graph: graph, log: log, metrics: m}
}

// Generate runs the graph for source and reports the outcome. Failures are
// returned in the result, never as a panic or error.
func (p *Pipeline) Generate(ctx context.Context, source domain.Source) Result {
	p.log.Info("Generating crawler",
		logger.SourceID(source.ID),
		logger.String("url", source.URL),
	)

	final := p.graph.Run(ctx, NewState(source))
	result := final.Result()
	p.metrics.RecordGeneratorRun(result.Status)

	if result.Status == StatusFailed {
		p.log.Error("Crawler generation failed",
			logger.SourceID(source.ID),
			logger.String("error", result.Error),
		)
		return result
	}

	p.log.Info("Crawler generated",
		logger.SourceID(source.ID),
		logger.StrategyID(result.Strategy.ID),
	)
	return result
}
