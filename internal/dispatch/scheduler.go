package dispatch

import (
	"fmt"
	"sync"

	"github.com/five82/brcplan/internal/partition"
)

// Scheduler tracks the LCUs of one frame and hands out those whose
// scoreboard dependencies have completed, lowest wavefront step first.
type Scheduler struct {
	mu   sync.Mutex
	part *partition.Result

	waiting    []int   // unfinished dependencies per LCU
	dependents [][]int // LCUs waiting on each LCU
	ready      []int
	completed  []bool
	started    int
	finished   int
}

// NewScheduler builds the dependency graph of a partitioned frame.
func NewScheduler(part *partition.Result) *Scheduler {
	n := part.WidthLCU * part.HeightLCU
	s := &Scheduler{
		part:       part,
		waiting:    make([]int, n),
		dependents: make([][]int, n),
		completed:  make([]bool, n),
	}
	for idx := range n {
		col, row := idx%part.WidthLCU, idx/part.WidthLCU
		deps := part.Dependencies(col, row)
		s.waiting[idx] = len(deps)
		for _, d := range deps {
			di := d.Row*part.WidthLCU + d.Col
			s.dependents[di] = append(s.dependents[di], idx)
		}
		if len(deps) == 0 {
			s.ready = append(s.ready, idx)
		}
	}
	return s
}

// Next returns the ready LCU with the lowest step, ties going to the lower
// raster index. It returns false when nothing is ready.
func (s *Scheduler) Next() (partition.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ready) == 0 {
		return partition.Point{}, false
	}
	best, bestStep := 0, s.step(s.ready[0])
	for i := 1; i < len(s.ready); i++ {
		st := s.step(s.ready[i])
		if st < bestStep || (st == bestStep && s.ready[i] < s.ready[best]) {
			best, bestStep = i, st
		}
	}
	idx := s.ready[best]
	s.ready[best] = s.ready[len(s.ready)-1]
	s.ready = s.ready[:len(s.ready)-1]
	s.started++
	return s.point(idx), true
}

// Check verifies that every dependency of p has completed.
func (s *Scheduler) Check(p partition.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.part.Dependencies(p.Col, p.Row) {
		if !s.completed[d.Row*s.part.WidthLCU+d.Col] {
			return fmt.Errorf("%w: (%d,%d) waits on (%d,%d)", ErrScoreboard, p.Col, p.Row, d.Col, d.Row)
		}
	}
	return nil
}

// MarkComplete records p as finished and releases its dependents.
func (s *Scheduler) MarkComplete(p partition.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := p.Row*s.part.WidthLCU + p.Col
	if s.completed[idx] {
		return fmt.Errorf("%w: (%d,%d)", ErrAlreadyComplete, p.Col, p.Row)
	}
	s.completed[idx] = true
	s.finished++
	for _, dep := range s.dependents[idx] {
		s.waiting[dep]--
		if s.waiting[dep] == 0 {
			s.ready = append(s.ready, dep)
		}
	}
	return nil
}

// Remaining returns the count of unstarted LCUs.
func (s *Scheduler) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed) - s.started
}

// Finished returns the count of completed LCUs.
func (s *Scheduler) Finished() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *Scheduler) step(idx int) int {
	return s.part.Step(idx%s.part.WidthLCU, idx/s.part.WidthLCU)
}

func (s *Scheduler) point(idx int) partition.Point {
	return partition.Point{Col: idx % s.part.WidthLCU, Row: idx / s.part.WidthLCU}
}
