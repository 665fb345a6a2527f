package browse

import (
	"sync"
	"time"
)

// DebounceDelay is how long a search session waits after the last keystroke
// before issuing a request.
const DebounceDelay = 300 * time.Millisecond

// scheduler defers a function and returns a cancel handle. Injectable so
// tests can fire the timer deterministically.
type scheduler func(d time.Duration, f func()) (cancel func())

func timerScheduler(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

// searchSession debounces query input and versions outgoing requests so a
// slow response for an old query can never overwrite a newer one.
type searchSession struct {
	mu      sync.Mutex
	delay   time.Duration
	sched   scheduler
	version uint64
	cancel  func()
}

func newSearchSession(delay time.Duration, sched scheduler) *searchSession {
	if sched == nil {
		sched = timerScheduler
	}
	return &searchSession{delay: delay, sched: sched}
}

// schedule cancels any pending fire, bumps the version and defers f. The
// version passed to f identifies the request; results must be dropped when
// it no longer matches current().
func (s *searchSession) schedule(f func(version uint64)) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.version++
	v := s.version
	s.cancel = s.sched(s.delay, func() { f(v) })
	s.mu.Unlock()
}

// invalidate cancels any pending fire and bumps the version, marking all
// in-flight requests stale.
func (s *searchSession) invalidate() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.version++
	s.mu.Unlock()
}

// current returns the version of the most recent schedule or invalidate.
func (s *searchSession) current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}
