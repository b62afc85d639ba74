package mapreduce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolRunsAllSubmittedJobs(t *testing.T) {
	p := NewPool(3, nil, nil)
	var completed int64
	const n = 50
	for i := 0; i < n; i++ {
		p.Submit(func() { atomic.AddInt64(&completed, 1) })
	}
	p.Shutdown()
	require.EqualValues(t, n, atomic.LoadInt64(&completed))
}

func TestPoolSingleWorkerStillDrainsQueue(t *testing.T) {
	p := NewPool(1, nil, nil)
	order := make(chan int, 5)
	for i := 0; i < 5; i++ {
		i := i
		p.Submit(func() { order <- i })
	}
	p.Shutdown()
	close(order)

	var got []int
	for v := range order {
		got = append(got, v)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestPoolShutdownBlocksUntilWorkersExit(t *testing.T) {
	p := NewPool(2, nil, nil)
	done := make(chan struct{})
	p.Submit(func() {
		time.Sleep(20 * time.Millisecond)
		close(done)
	})

	p.Shutdown()
	select {
	case <-done:
	default:
		t.Fatal("Shutdown returned before submitted job finished")
	}
}
