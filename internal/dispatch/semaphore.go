package dispatch

import "context"

// Semaphore is a counting semaphore bounding how many LCUs execute at once.
type Semaphore struct {
	permits chan struct{}
}

// NewSemaphore creates a semaphore with count permits, at least one.
func NewSemaphore(count int) *Semaphore {
	if count <= 0 {
		count = 1
	}
	s := &Semaphore{
		permits: make(chan struct{}, count),
	}
	for range count {
		s.permits <- struct{}{}
	}
	return s
}

// Acquire takes a permit, waiting until one is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case <-s.permits:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit to the semaphore.
func (s *Semaphore) Release() {
	select {
	case s.permits <- struct{}{}:
	default:
		// unmatched Release; capacity stays fixed
	}
}

// Capacity returns the number of permits.
func (s *Semaphore) Capacity() int {
	return cap(s.permits)
}
