// Package dispatch is a reference Dispatcher that executes frame plans on
// goroutines. Each LCU is one task; tasks start only when the scoreboard
// allows and run over a bounded pool. Coding cost comes from a seeded
// synthetic content model instead of real video.
package dispatch

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/five82/brcplan/internal/capability"
	"github.com/five82/brcplan/internal/logging"
	"github.com/five82/brcplan/internal/orchestrator"
	"github.com/five82/brcplan/internal/partition"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers bounds concurrent LCU tasks. The default is one per CPU.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) { d.workers = n }
}

// WithSeed selects the synthetic content.
func WithSeed(seed uint64) Option {
	return func(d *Dispatcher) { d.model.seed = seed }
}

// WithComplexity sets the content complexity, see DefaultComplexity.
func WithComplexity(c float64) Option {
	return func(d *Dispatcher) {
		if c > 0 {
			d.model.complexity = c
		}
	}
}

// WithDelay holds back each frame's statistics for delay after execution.
func WithDelay(delay time.Duration) Option {
	return func(d *Dispatcher) { d.delay = delay }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

type job struct {
	frame int64
	done  chan struct{}
	stats orchestrator.FrameStatistics
	err   error
}

// work is the part of a plan execution reads. It is copied at submission
// because the session reuses the slice map buffer.
type work struct {
	frame     orchestrator.FrameDescriptor
	part      *partition.Result
	qp        int
	qpMap     []uint8
	passCount int
}

func (w work) qpAt(col, row int) int {
	if w.qpMap == nil {
		return w.qp
	}
	return int(w.qpMap[row*w.part.WidthLCU+col])
}

// Dispatcher implements orchestrator.Dispatcher.
type Dispatcher struct {
	mu     sync.Mutex
	jobs   map[orchestrator.Handle]*job
	closed bool

	workers int
	sem     *Semaphore
	model   contentModel
	delay   time.Duration
	log     *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	frames     atomic.Int64
	lcus       atomic.Int64
	running    atomic.Int64
	maxRunning atomic.Int64
	violations atomic.Int64
}

// New creates a dispatcher. Close releases its goroutines.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		jobs:    make(map[orchestrator.Handle]*job),
		workers: capability.Host().Workers(),
		model:   contentModel{seed: 1, complexity: DefaultComplexity},
		log:     logging.Global(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.sem = NewSemaphore(d.workers)
	d.log = d.log.WithPrefix("dispatch")
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Workers returns the size of the LCU pool.
func (d *Dispatcher) Workers() int { return d.sem.Capacity() }

// SubmitRegionWork starts executing plan and returns its handle.
func (d *Dispatcher) SubmitRegionWork(_ context.Context, plan *orchestrator.FramePlan) (orchestrator.Handle, error) {
	if plan == nil || plan.Partition == nil {
		return "", ErrInvalidPlan
	}
	if plan.QPMap != nil && len(plan.QPMap) != plan.Partition.WidthLCU*plan.Partition.HeightLCU {
		return "", fmt.Errorf("%w: QP map has %d entries for %dx%d LCUs",
			ErrInvalidPlan, len(plan.QPMap), plan.Partition.WidthLCU, plan.Partition.HeightLCU)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", ErrClosed
	}

	w := work{
		frame:     plan.Frame,
		part:      plan.Partition,
		qp:        plan.Decision.QP,
		qpMap:     plan.QPMap,
		passCount: max(1, plan.Decision.PassCount),
	}
	h := orchestrator.Handle(uuid.NewString())
	j := &job{frame: plan.Frame.FrameNumber, done: make(chan struct{})}
	d.jobs[h] = j

	d.wg.Add(1)
	go d.run(j, w)
	return h, nil
}

func (d *Dispatcher) run(j *job, w work) {
	defer d.wg.Done()
	defer close(j.done)

	start := time.Now()
	j.stats, j.err = d.execute(d.ctx, w)
	if j.err == nil && d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-d.ctx.Done():
			j.err = d.ctx.Err()
		}
	}
	if j.err != nil {
		d.log.Warn("frame failed", "frame", j.frame, "error", j.err)
		return
	}
	d.frames.Add(1)
	d.log.Debug("frame executed",
		"frame", j.frame,
		"bits", j.stats.BitsProduced,
		"avg_qp", j.stats.AverageQP,
		"elapsed", time.Since(start))
}

// execute runs every LCU of the frame in scoreboard order.
func (d *Dispatcher) execute(ctx context.Context, w work) (orchestrator.FrameStatistics, error) {
	sched := NewScheduler(w.part)
	n := w.part.WidthLCU * w.part.HeightLCU
	results := make([]lcuResult, n)
	done := make(chan partition.Point, n)
	inflight := 0

	for sched.Remaining() > 0 || inflight > 0 {
		for {
			p, ok := sched.Next()
			if !ok {
				break
			}
			if err := d.sem.Acquire(ctx); err != nil {
				return orchestrator.FrameStatistics{}, err
			}
			inflight++
			go func(p partition.Point) {
				defer d.sem.Release()
				d.enter()
				if err := sched.Check(p); err != nil {
					d.violations.Add(1)
					d.log.Error("scoreboard violation", "error", err)
				}
				results[p.Row*w.part.WidthLCU+p.Col] = d.model.code(w.frame, p.Col, p.Row, w.qpAt(p.Col, p.Row))
				d.running.Add(-1)
				done <- p
			}(p)
		}
		if inflight == 0 {
			return orchestrator.FrameStatistics{}, fmt.Errorf("%w: %d units left", ErrStalled, sched.Remaining())
		}
		p := <-done
		inflight--
		if err := sched.MarkComplete(p); err != nil {
			return orchestrator.FrameStatistics{}, err
		}
	}
	d.lcus.Add(int64(n))
	return aggregate(w, results), nil
}

func (d *Dispatcher) enter() {
	cur := d.running.Add(1)
	for {
		prev := d.maxRunning.Load()
		if cur <= prev || d.maxRunning.CompareAndSwap(prev, cur) {
			return
		}
	}
}

// aggregate sums LCU results in raster order.
func aggregate(w work, results []lcuResult) orchestrator.FrameStatistics {
	regions := len(w.part.Regions)
	dist := make([]float64, regions)
	counts := make([]int, regions)
	var bits, qpSum float64
	for idx, r := range results {
		col, row := idx%w.part.WidthLCU, idx/w.part.WidthLCU
		bits += r.bits
		qpSum += float64(r.qp)
		if ri := w.part.RegionOf(col, row); ri >= 0 {
			dist[ri] += r.distortion
			counts[ri]++
		}
	}
	for i := range dist {
		if counts[i] > 0 {
			dist[i] /= float64(counts[i])
		}
	}
	return orchestrator.FrameStatistics{
		BitsProduced:        int64(math.Round(bits)),
		AverageQP:           qpSum / float64(len(results)),
		DistortionPerRegion: dist,
		PassCount:           w.passCount,
	}
}

// GetFrameStatistics waits for the frame behind h. A handle can be
// collected once.
func (d *Dispatcher) GetFrameStatistics(ctx context.Context, h orchestrator.Handle) (orchestrator.FrameStatistics, error) {
	d.mu.Lock()
	j, ok := d.jobs[h]
	d.mu.Unlock()
	if !ok {
		return orchestrator.FrameStatistics{}, fmt.Errorf("%w: %q", ErrUnknownHandle, h)
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		return orchestrator.FrameStatistics{}, fmt.Errorf("frame %d: %w", j.frame, ctx.Err())
	}

	d.mu.Lock()
	delete(d.jobs, h)
	d.mu.Unlock()
	return j.stats, j.err
}

// Close stops outstanding frames and waits for their goroutines.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	return nil
}

// Stats counts executed work.
type Stats struct {
	Frames      int64 `json:"frames"`
	LCUs        int64 `json:"lcus"`
	MaxParallel int64 `json:"max_parallel"`
	Violations  int64 `json:"violations"`
}

// Stats returns the execution counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Frames:      d.frames.Load(),
		LCUs:        d.lcus.Load(),
		MaxParallel: d.maxRunning.Load(),
		Violations:  d.violations.Load(),
	}
}
