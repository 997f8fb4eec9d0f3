package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/storage"
)

func backends(t *testing.T) map[string]func(t *testing.T) *storage.Store {
	t.Helper()

	return map[string]func(t *testing.T) *storage.Store{
		"file": func(t *testing.T) *storage.Store {
			store, err := storage.NewFileStore(t.TempDir())
			require.NoError(t, err)
			return store
		},
		"redis": func(t *testing.T) *storage.Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			store := storage.NewRedisStore(client, "test:")
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
}

func TestSources_PutGetList(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := open(t)
			ctx := context.Background()

			b := domain.NewSource("https://b.example", "B", domain.SourceTypeWebsite)
			a := domain.NewSource("https://a.example", "A", domain.SourceTypeAwesomeList)
			require.NoError(t, store.Sources.Put(ctx, b))
			require.NoError(t, store.Sources.Put(ctx, a))

			got, err := store.Sources.Get(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, a.URL, got.URL)
			assert.True(t, got.HasKnownCrawler)

			list, err := store.Sources.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "https://a.example", list[0].URL)
		})
	}
}

func TestSources_GetMissing(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := open(t)

			_, err := store.Sources.Get(context.Background(), "source-missing")
			require.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestSources_UpdateLastCrawl(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := open(t)
			ctx := context.Background()

			src := domain.NewSource("https://a.example", "A", domain.SourceTypeWebsite)
			require.NoError(t, store.Sources.Put(ctx, src))

			at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, store.Sources.UpdateLastCrawl(ctx, src.ID, domain.CrawlStatusFailed, at))

			got, err := store.Sources.Get(ctx, src.ID)
			require.NoError(t, err)
			require.NotNil(t, got.LastCrawled)
			assert.True(t, at.Equal(*got.LastCrawled))
			assert.Equal(t, domain.CrawlStatusFailed, got.LastCrawlStatus)

			err = store.Sources.UpdateLastCrawl(ctx, "source-missing", domain.CrawlStatusSuccess, at)
			require.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestSources_LinkCrawlerAndUpdateLastCrawlDoNotClobber(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := open(t)
			ctx := context.Background()

			src := domain.NewSource("https://a.example", "A", domain.SourceTypeWebsite)
			require.NoError(t, store.Sources.Put(ctx, src))

			at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

			var wg sync.WaitGroup
			for i := range 20 {
				wg.Add(2)
				go func() {
					defer wg.Done()
					assert.NoError(t, store.Sources.UpdateLastCrawl(ctx, src.ID, domain.CrawlStatusSuccess, at.Add(time.Duration(i)*time.Minute)))
				}()
				go func() {
					defer wg.Done()
					_, err := store.Sources.LinkCrawler(ctx, src.ID, "crawler-1")
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			got, err := store.Sources.Get(ctx, src.ID)
			require.NoError(t, err)
			assert.Equal(t, "crawler-1", got.CrawlerID)
			require.NotNil(t, got.LastCrawled)
			assert.Equal(t, domain.CrawlStatusSuccess, got.LastCrawlStatus)

			_, err = store.Sources.LinkCrawler(ctx, "source-missing", "crawler-1")
			require.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func tool(id, name, url string, at time.Time) domain.MCPTool {
	return domain.MCPTool{
		ID: id, Name: name, Description: name + " desc", URL: url,
		SourceURL: "https://src", FirstDiscovered: at, LastUpdated: at,
		Metadata: map[string]any{"tags": []string{"x"}},
	}
}

func TestTools_SaveDeduplicatesByURL(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := open(t)
			ctx := context.Background()

			first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			later := first.Add(24 * time.Hour)

			stats, err := store.Tools.Save(ctx, []domain.MCPTool{
				tool("tool-1", "Alpha", "https://github.com/a/alpha", first),
				tool("tool-2", "Beta", "https://github.com/b/beta", first),
			})
			require.NoError(t, err)
			assert.Equal(t, storage.SaveStats{New: 2}, stats)

			renamed := tool("tool-3", "Alpha Server", "https://github.com/a/alpha", later)
			stats, err = store.Tools.Save(ctx, []domain.MCPTool{
				renamed,
				tool("tool-4", "Gamma", "https://github.com/c/gamma", later),
			})
			require.NoError(t, err)
			assert.Equal(t, storage.SaveStats{New: 1, Updated: 1}, stats)

			tools, err := store.Tools.Load(ctx)
			require.NoError(t, err)
			require.Len(t, tools, 3)

			alpha := tools[0]
			assert.Equal(t, "Alpha Server", alpha.Name)
			assert.Equal(t, "tool-1", alpha.ID)
			assert.True(t, first.Equal(alpha.FirstDiscovered))
			assert.True(t, later.Equal(alpha.LastUpdated))
			assert.Equal(t, []string{"x"}, alpha.Tags())
		})
	}
}

func TestTools_DuplicatesWithinBatchCountOnce(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := open(t)
			now := time.Now().UTC()

			stats, err := store.Tools.Save(context.Background(), []domain.MCPTool{
				tool("tool-1", "A", "https://same", now),
				tool("tool-2", "A", "https://same", now),
			})
			require.NoError(t, err)
			assert.Equal(t, storage.SaveStats{New: 1}, stats)

			tools, err := store.Tools.Load(context.Background())
			require.NoError(t, err)
			require.Len(t, tools, 1)
			assert.Equal(t, "tool-1", tools[0].ID)
		})
	}
}

func TestStrategies_PutGet(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := open(t)
			ctx := context.Background()

			src := domain.NewSource("https://a.example", "A", domain.SourceTypeWebsite)
			strategy := domain.NewCrawlerStrategy(src, "function extract_tools(html) return {} end", "desc", time.Now())
			require.NoError(t, store.Strategies.Put(ctx, strategy))

			got, err := store.Strategies.Get(ctx, strategy.ID)
			require.NoError(t, err)
			assert.Equal(t, strategy.Implementation, got.Implementation)
			assert.Equal(t, src.ID, got.SourceID)

			list, err := store.Strategies.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)

			_, err = store.Strategies.Get(ctx, "crawler-missing")
			require.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestCrawlResults_AppendRecent(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := open(t)
			ctx := context.Background()

			for _, id := range []string{"s1", "s2", "s3"} {
				require.NoError(t, store.CrawlResults.Append(ctx, domain.CrawlResult{SourceID: id, Success: true}))
			}

			recent, err := store.CrawlResults.Recent(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "s3", recent[0].SourceID)
			assert.Equal(t, "s2", recent[1].SourceID)

			all, err := store.CrawlResults.Recent(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestFileStore_WritesJSONFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := storage.NewFileStore(dir)
	require.NoError(t, err)

	src := domain.NewSource("https://a.example", "A", domain.SourceTypeWebsite)
	require.NoError(t, store.Sources.Put(context.Background(), src))

	data, err := os.ReadFile(filepath.Join(dir, "sources.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), src.ID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, err := storage.NewFileStore(dir)
	require.NoError(t, err)

	src := domain.NewSource("https://a.example", "A", domain.SourceTypeWebsite)
	require.NoError(t, first.Sources.Put(context.Background(), src))

	second, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	got, err := second.Sources.Get(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Equal(t, src.Name, got.Name)
}

func TestOpen_SelectsDriver(t *testing.T) {
	t.Parallel()

	store, err := storage.Open(context.Background(), config.StorageConfig{
		Driver: config.StorageDriverFile,
		Path:   t.TempDir(),
	}, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	mr := miniredis.RunT(t)
	store, err = storage.Open(context.Background(), config.StorageConfig{
		Driver: config.StorageDriverRedis,
		Redis:  config.RedisConfig{Address: mr.Addr()},
	}, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = storage.Open(context.Background(), config.StorageConfig{Driver: "s3"}, logger.NewNop())
	require.ErrorIs(t, err, config.ErrInvalidStorageDriver)
}
