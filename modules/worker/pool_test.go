package worker

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockingPool_DrainsAllJobs(t *testing.T) {
	jobs := make(chan int, 100)
	for i := range 100 {
		jobs <- i
	}
	close(jobs)

	var sum atomic.Int64
	BlockingPool(context.Background(), 4, jobs, func(_ context.Context, n int) {
		sum.Add(int64(n))
	})

	assert.Equal(t, int64(4950), sum.Load())
}

func TestBlockingPool_RecoversPanicsAndContinues(t *testing.T) {
	jobs := make(chan int, 3)
	jobs <- 1
	jobs <- 2
	jobs <- 3
	close(jobs)

	var (
		mu        sync.Mutex
		done      []int
		recovered []int
	)
	BlockingPoolWithRecovery(context.Background(), 1, jobs,
		func(_ context.Context, n int) {
			if n == 2 {
				panic("boom")
			}
			mu.Lock()
			done = append(done, n)
			mu.Unlock()
		},
		func(_ context.Context, n int, err error) {
			require.ErrorContains(t, err, "boom")
			recovered = append(recovered, n)
		},
	)

	assert.Equal(t, []int{1, 3}, done)
	assert.Equal(t, []int{2}, recovered)
}

func TestBlockingPool_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	jobs := make(chan int)

	finished := make(chan struct{})
	go func() {
		BlockingPool(ctx, 2, jobs, func(context.Context, int) {})
		close(finished)
	}()

	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}
}

func Benchmark_BlockingPool_SHA256(b *testing.B) {
	payload := make([]byte, 1024)

	for _, size := range []int{1, 4, 16} {
		b.Run(fmt.Sprintf("pool_size=%d", size), func(b *testing.B) {
			b.SetBytes(int64(len(payload)))
			b.ReportAllocs()

			jobs := make(chan []byte, 1024)
			go func(n int) {
				for range n {
					jobs <- payload
				}
				close(jobs)
			}(b.N)

			b.ResetTimer()
			BlockingPool(context.Background(), size, jobs, func(_ context.Context, p []byte) {
				_ = sha256.Sum256(p)
			})
		})
	}
}
