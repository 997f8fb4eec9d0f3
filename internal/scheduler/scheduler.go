// Package scheduler runs periodic crawls on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
)

// Crawler runs a crawl over every source.
type Crawler interface {
	CrawlAll(ctx context.Context, opts crawler.CrawlOptions) ([]domain.CrawlResult, error)
}

// Scheduler triggers CrawlAll on a standard five-field cron expression.
// Overlapping runs are skipped.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	crawler  Crawler
	log      logger.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New validates the cron expression and creates a stopped scheduler.
func New(expr string, c Crawler, log logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.NewNop()
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cron expression %q: %w", expr, err)
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithParser(parser)),
		schedule: schedule,
		crawler:  c,
		log:      log,
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.tick))
	return s, nil
}

// Next returns the next activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Start begins scheduling. Runs use a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("Scheduler started", logger.String("next_run", s.Next(time.Now()).Format(time.RFC3339)))
}

// Stop cancels an in-flight run and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// RunOnce performs a crawl immediately unless one is already running and
// reports whether it ran.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("Previous crawl still running, skipping")
		return false
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	results, err := s.crawler.CrawlAll(ctx, crawler.CrawlOptions{})
	if err != nil {
		s.log.Error("Scheduled crawl failed", logger.Error(err))
		return true
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	s.log.Info("Scheduled crawl finished",
		logger.Int("sources", len(results)),
		logger.Int("failed", failed),
		logger.Duration("duration", time.Since(start)),
	)
	return true
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.RunOnce(ctx)
}
