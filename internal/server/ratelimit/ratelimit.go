// Package ratelimit provides per-client admission control for the HTTP API,
// backed by golang.org/x/time/rate token buckets.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long an untouched bucket survives a cleanup sweep.
const idleTTL = time.Hour

// Info describes the outcome of one admission decision.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

type bucket struct {
	limiter  *rate.Limiter
	burst    int
	lastSeen time.Time
}

// Limiter keeps one token bucket per client, path and method.
type Limiter struct {
	config *Config

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	stop     chan struct{}
	now      func() time.Time
}

// NewLimiter creates a Limiter. A nil config enables a lenient global default.
func NewLimiter(config *Config) *Limiter {
	if config == nil {
		config = &Config{
			Enabled:         true,
			DefaultLimit:    1000,
			DefaultWindow:   time.Minute,
			CleanupInterval: 5 * time.Minute,
		}
	}

	l := &Limiter{
		config:  config,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	if config.Enabled && config.CleanupInterval > 0 {
		go l.cleanupLoop(config.CleanupInterval)
	}
	return l
}

// Allow consumes a token for clientID on method+path if one is available.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}
	if l.config.Blacklist[clientID] {
		return false, Info{}
	}

	ec := MatchEndpoint(path, method, l.config.EndpointConfigs)
	if ec == nil {
		ec = &EndpointConfig{
			Limit:  l.config.DefaultLimit,
			Window: l.config.DefaultWindow,
			Burst:  l.config.DefaultLimit,
		}
	}
	if ec.Limit <= 0 || ec.Window <= 0 {
		return true, Info{Allowed: true}
	}

	now := l.now()
	b := l.bucketFor(clientID+":"+path+":"+method, ec, now)

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	info := Info{
		Allowed:   allowed,
		Limit:     ec.Limit,
		Remaining: max(0, int(math.Floor(tokens))),
		ResetTime: now.Add(refillTime(b, float64(b.burst)-tokens)),
	}
	if !allowed {
		info.RetryAfter = refillTime(b, 1-tokens)
	}
	return allowed, info
}

func refillTime(b *bucket, tokens float64) time.Duration {
	if tokens <= 0 {
		return 0
	}
	perSecond := float64(b.limiter.Limit())
	if perSecond <= 0 {
		return 0
	}
	return time.Duration(tokens / perSecond * float64(time.Second))
}

func (l *Limiter) bucketFor(key string, ec *EndpointConfig, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		b.lastSeen = now
		return b
	}
	burst := ec.Burst
	if burst <= 0 {
		burst = ec.Limit
	}
	every := rate.Every(ec.Window / time.Duration(ec.Limit))
	b := &bucket{limiter: rate.NewLimiter(every, burst), burst: burst, lastSeen: now}
	l.buckets[key] = b
	return b
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle(l.now().Add(-idleTTL))
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) evictIdle(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
