package mapreduce

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Pool is the bounded worker pool described in §4.3: a fixed number of
// goroutines draining one shared FIFO job queue. Submission never blocks
// the caller and never drops a job submitted before Shutdown: the queue
// itself is unbounded, guarded
// by a mutex/condvar pair the way the teacher repo already guards its
// registration queue in master.go.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	wg     sync.WaitGroup

	queueDepth prometheus.Gauge
	inFlight   prometheus.Gauge
}

// NewPool starts size worker goroutines. queueDepth/inFlight may be nil if
// the caller doesn't want the pool instrumented (e.g. in unit tests).
func NewPool(size int, queueDepth, inFlight prometheus.Gauge) *Pool {
	p := &Pool{queueDepth: queueDepth, inFlight: inFlight}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.runWorker()
	}
	return p
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		p.setGauge(p.queueDepth, float64(len(p.queue)))
		p.mu.Unlock()

		if p.inFlight != nil {
			p.inFlight.Inc()
		}
		job()
		if p.inFlight != nil {
			p.inFlight.Dec()
		}
	}
}

func (p *Pool) setGauge(g prometheus.Gauge, v float64) {
	if g != nil {
		g.Set(v)
	}
}

// Submit enqueues job for execution by the next free worker. Submitting
// after Shutdown is a no-op; callers must not rely on ordering across a
// Shutdown race.
func (p *Pool) Submit(job func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.queue = append(p.queue, job)
	p.setGauge(p.queueDepth, float64(len(p.queue)))
	p.cond.Signal()
}

// Shutdown closes the submission side, waking every worker, and blocks
// until the workers have run every job still queued and exited.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}
