package sys

import "sync"

// Semaphore_t implements a classical sleeping counted semaphore. Down()
// is a suspension point: the calling thread blocks without holding any
// spinlock.
type Semaphore_t struct {
	mu      sync.Mutex
	cond    *sync.Cond
	count   int
	waiters int
}

// MkSemaphore allocates a semaphore initialized to count.
func MkSemaphore(count int) *Semaphore_t {
	s := &Semaphore_t{count: count}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Up increases the count by one, waking one waiter if any are queued.
func (s *Semaphore_t) Up() {
	s.mu.Lock()
	s.count++
	if s.waiters > 0 {
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// Down decreases the count by one, sleeping until the count is nonzero
// if necessary.
func (s *Semaphore_t) Down() {
	s.mu.Lock()
	for s.count == 0 {
		s.waiters++
		s.cond.Wait()
		s.waiters--
	}
	s.count--
	s.mu.Unlock()
}

// TryDown attempts to decrease the count without blocking. It reports
// whether the attempt succeeded.
func (s *Semaphore_t) TryDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return false
	}
	s.count--
	return true
}
