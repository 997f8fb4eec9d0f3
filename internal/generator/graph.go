package generator

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/metrics"
)

// Node is a named stage in the graph.
type Node struct {
	Name string
	Run  StageFunc
}

// Graph runs nodes strictly in order and stops at the first halted state.
// It does not retry.
type Graph struct {
	nodes   []Node
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewGraph creates a graph over nodes.
func NewGraph(nodes []Node, log logger.Logger, m *metrics.Metrics) *Graph {
	if log == nil {
		log = logger.NewNop()
	}
	return &Graph{nodes: nodes, log: log, metrics: m}
}

// DefaultGraph wires the six stages in their fixed order.
func DefaultGraph(st *Stages, log logger.Logger, m *metrics.Metrics) *Graph {
	return NewGraph([]Node{
		{Name: StageFetch, Run: st.Fetch},
		{Name: StageAnalyze, Run: st.Analyze},
		{Name: StageIdentifyPatterns, Run: st.IdentifyPatterns},
		{Name: StageGenerateCode, Run: st.GenerateCode},
		{Name: StageTestCode, Run: st.TestCode},
		{Name: StageFinalize, Run: st.Finalize},
	}, log, m)
}

// Run threads state through every node and returns the final state.
func (g *Graph) Run(ctx context.Context, state State) State {
	for _, node := range g.nodes {
		if state.Halted() {
			g.log.Debug("Skipping stage",
				logger.SourceID(state.Source.ID),
				logger.Stage(node.Name),
			)
			continue
		}

		log := g.log.With(logger.SourceID(state.Source.ID), logger.Stage(node.Name))
		log.Info("Stage started")

		start := time.Now()
		next := seal(state, node.Run(ctx, state))
		elapsed := time.Since(start)
		g.metrics.ObserveStage(node.Name, elapsed)

		if next.Error != "" {
			log.Error("Stage failed",
				logger.String("error", next.Error),
				logger.Duration("elapsed", elapsed),
			)
		} else {
			log.Info("Stage finished", logger.Duration("elapsed", elapsed))
		}

		state = next
	}
	return state
}

// seal keeps the error set-once and finished monotonic regardless of what a
// stage returned.
func seal(prev, next State) State {
	if prev.Error != "" {
		next.Error = prev.Error
	}
	if prev.Finished {
		next.Finished = true
	}
	return next
}
