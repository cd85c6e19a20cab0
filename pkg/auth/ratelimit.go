package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter decides whether an identity may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, id *Identity) error
}

// Limiter is a fixed-window, per-subject request limit kept in memory.
// Queries run for seconds each, so a one-minute window is fine-grained
// enough.
type Limiter struct {
	tiers      map[string]int
	defaultRPM int

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewLimiter allows defaultRPM requests per minute per subject, or the
// tier's own value when tiers names the identity's tier. Zero or less
// means unlimited.
func NewLimiter(tiers map[string]int, defaultRPM int) *Limiter {
	return &Limiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		windows:    make(map[string]*window),
		now:        time.Now,
	}
}

// Allow counts the request and returns ErrTooManyRequests once the
// subject's window is used up.
func (l *Limiter) Allow(_ context.Context, id *Identity) error {
	tier := tierOf(id)
	rpm := l.defaultRPM
	if v, ok := l.tiers[tier]; ok {
		rpm = v
	}
	if rpm <= 0 {
		return nil
	}

	key := tier + "/" + id.Subject
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= time.Minute {
		l.windows[key] = &window{start: now, count: 1}
		l.gc(now)
		return nil
	}
	if w.count >= rpm {
		return ErrTooManyRequests
	}
	w.count++
	return nil
}

// gc drops expired windows once the map grows. Callers hold mu.
func (l *Limiter) gc(now time.Time) {
	if len(l.windows) < 1024 {
		return
	}
	for k, w := range l.windows {
		if now.Sub(w.start) >= time.Minute {
			delete(l.windows, k)
		}
	}
}

func tierOf(id *Identity) string {
	if id.Tier == "" {
		return "default"
	}
	return id.Tier
}
