package widget

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterSet holds one token bucket per tab.
type limiterSet struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newLimiterSet(perSecond float64, burst int) *limiterSet {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &limiterSet{limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

func (s *limiterSet) allow(tabID string) bool {
	s.mu.Lock()
	l, ok := s.limiters[tabID]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[tabID] = l
	}
	s.mu.Unlock()
	return l.Allow()
}

func (s *limiterSet) forget(tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.limiters, tabID)
}
