package ratelimit

import (
    "sync"
    "time"

    "golang.org/x/time/rate"
)

// Limiter enforces a per (actor, action) cooldown. State is process-local.
type Limiter struct {
    mu       sync.Mutex
    window   time.Duration
    limiters map[key]*entry
    now      func() time.Time
}

type key struct {
    actorID int64
    action  string
}

type entry struct {
    limiter *rate.Limiter
    last    time.Time
}

func New(window time.Duration) *Limiter {
    return &Limiter{
        window:   window,
        limiters: make(map[key]*entry),
        now:      time.Now,
    }
}

// WithClock replaces the time source. Used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
    l.mu.Lock()
    defer l.mu.Unlock()
    l.now = now
    return l
}

// Allow reports whether the action may run and, if so, records the call.
// A denied call leaves the cooldown untouched.
func (l *Limiter) Allow(actorID int64, action string) bool {
    l.mu.Lock()
    defer l.mu.Unlock()

    now := l.now()
    k := key{actorID: actorID, action: action}
    e, ok := l.limiters[k]
    if !ok {
        e = &entry{limiter: rate.NewLimiter(rate.Every(l.window), 1)}
        l.limiters[k] = e
    }
    if !e.limiter.AllowN(now, 1) {
        return false
    }
    e.last = now
    return true
}

// Prune drops entries whose cooldown has fully elapsed. A pruned key behaves
// exactly like a key that was never seen.
func (l *Limiter) Prune() int {
    l.mu.Lock()
    defer l.mu.Unlock()

    now := l.now()
    removed := 0
    for k, e := range l.limiters {
        if now.Sub(e.last) >= l.window {
            delete(l.limiters, k)
            removed++
        }
    }
    return removed
}

func (l *Limiter) Len() int {
    l.mu.Lock()
    defer l.mu.Unlock()
    return len(l.limiters)
}
