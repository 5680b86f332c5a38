package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL    = 2 * time.Minute
	defaultGCInterval = 30 * time.Second
)

type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per key and forgets keys idle longer than the TTL.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// New returns a Limiter allowing perSecond events per key with the given burst.
// Call Start to run idle-key collection and Stop to end it.
func New(perSecond float64, burst int, ttl time.Duration) *Limiter {
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	return &Limiter{
		limiters: make(map[string]*keyLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// Allow reports whether one more event for key fits in its bucket.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.limiters[key]
	if ok {
		entry.lastSeen = l.now()
		return entry.limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters[key] = &keyLimiter{limiter: limiter, lastSeen: l.now()}
	return limiter
}

// Start collects idle keys until Stop is called.
func (l *Limiter) Start() {
	go func() {
		ticker := time.NewTicker(defaultGCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				l.collect()
			}
		}
	}()
}

func (l *Limiter) collect() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.ttl {
			delete(l.limiters, key)
		}
	}
}

// Stop ends idle-key collection. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
