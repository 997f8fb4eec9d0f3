package sandbox

import (
	"context"
	"runtime/metrics"
	"time"
)

const (
	heapObjectsMetric   = "/memory/classes/heap/objects:bytes"
	memoryCheckInterval = 5 * time.Millisecond
)

// watchMemory cancels ctx with ErrMemoryLimit once the heap has grown by more
// than limit bytes since the call. It returns when ctx is done.
func watchMemory(ctx context.Context, limit uint64, cancel context.CancelCauseFunc) {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	heapBytes := func() uint64 {
		metrics.Read(sample)
		if sample[0].Value.Kind() != metrics.KindUint64 {
			return 0
		}
		return sample[0].Value.Uint64()
	}

	baseline := heapBytes()
	ticker := time.NewTicker(memoryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if current := heapBytes(); current > baseline && current-baseline > limit {
				cancel(ErrMemoryLimit)
				return
			}
		}
	}
}
