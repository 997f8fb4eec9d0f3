package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/scheduler"
)

type blockingCrawler struct {
	calls   atomic.Int32
	forced  atomic.Bool
	release chan struct{}
	started chan struct{}
	err     error
}

func (c *blockingCrawler) CrawlAll(ctx context.Context, opts crawler.CrawlOptions) ([]domain.CrawlResult, error) {
	c.calls.Add(1)
	c.forced.Store(opts.Force)
	if c.started != nil {
		close(c.started)
	}
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
		}
	}
	return []domain.CrawlResult{{Success: true}, {Success: false}}, c.err
}

func TestNew_ValidatesSchedule(t *testing.T) {
	t.Parallel()

	_, err := scheduler.New("not a cron", &blockingCrawler{}, nil)
	require.Error(t, err)

	s, err := scheduler.New("0 */6 * * *", &blockingCrawler{}, nil)
	require.NoError(t, err)

	from := time.Date(2025, 1, 1, 1, 0, 0, 0, time.Local)
	assert.Equal(t, time.Date(2025, 1, 1, 6, 0, 0, 0, time.Local), s.Next(from))

	_, err = scheduler.New("@hourly", &blockingCrawler{}, nil)
	require.NoError(t, err)
}

func TestRunOnce_SkipsOverlappingRuns(t *testing.T) {
	t.Parallel()

	c := &blockingCrawler{release: make(chan struct{}), started: make(chan struct{})}
	s, err := scheduler.New("@daily", c, nil)
	require.NoError(t, err)

	done := make(chan bool)
	go func() { done <- s.RunOnce(context.Background()) }()
	<-c.started

	assert.False(t, s.RunOnce(context.Background()))

	close(c.release)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestRunOnce_DoesNotForce(t *testing.T) {
	t.Parallel()

	c := &blockingCrawler{}
	s, err := scheduler.New("@daily", c, nil)
	require.NoError(t, err)

	require.True(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(1), c.calls.Load())
	assert.False(t, c.forced.Load())
}

func TestRunOnce_ReportsErrors(t *testing.T) {
	t.Parallel()

	c := &blockingCrawler{err: errors.New("list failed")}
	s, err := scheduler.New("@daily", c, nil)
	require.NoError(t, err)

	assert.True(t, s.RunOnce(context.Background()))
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	s, err := scheduler.New("@daily", &blockingCrawler{}, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	s.Stop()
}
