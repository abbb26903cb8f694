package integration

import (
	"context"
	"sync"
	"time"
)

// Default limiter parameters, matching the most conservative platform tier.
const (
	defaultRequestsPerMinute = 60
	defaultRequestsPerHour   = 3600
	defaultBurstSize         = 10
	defaultBurstInterval     = time.Minute
	defaultPerChatWindow     = time.Second
	defaultChatIdleEviction  = 10 * time.Minute
	defaultChatSweepInterval = time.Minute
	defaultPollInterval      = 100 * time.Millisecond
)

// RateTier configures the admission windows for one adapter.
// MessagesPerSecond and PerChatLimit are zero for non-messaging platforms.
type RateTier struct {
	RequestsPerMinute int
	RequestsPerHour   int
	BurstSize         int
	BurstInterval     time.Duration
	MessagesPerSecond int
	PerChatLimit      int
	// ChatIdleEviction bounds the per-chat map: chats idle longer than
	// this are dropped on the next sweep.
	ChatIdleEviction time.Duration
}

func (t RateTier) withDefaults() RateTier {
	if t.RequestsPerMinute <= 0 {
		t.RequestsPerMinute = defaultRequestsPerMinute
	}
	if t.RequestsPerHour <= 0 {
		t.RequestsPerHour = defaultRequestsPerHour
	}
	if t.BurstSize <= 0 {
		t.BurstSize = defaultBurstSize
	}
	if t.BurstInterval <= 0 {
		t.BurstInterval = defaultBurstInterval
	}
	if t.ChatIdleEviction <= 0 {
		t.ChatIdleEviction = defaultChatIdleEviction
	}
	return t
}

// Usage is a snapshot of limiter occupancy, exposed on health checks.
type Usage struct {
	RequestsLastMinute int  `json:"requests_last_minute"`
	RequestsLastHour   int  `json:"requests_last_hour"`
	BurstCount         int  `json:"burst_count"`
	ActiveChats        int  `json:"active_chats"`
	CanAdmit           bool `json:"can_admit"`
}

// window counts events inside a trailing interval ending at "now".
// Timestamps older than the interval are pruned before every check.
type window struct {
	interval time.Duration
	max      int
	stamps   []time.Time
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.interval)
	i := 0
	for ; i < len(w.stamps); i++ {
		if w.stamps[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

func (w *window) hasCapacity(now time.Time) bool {
	w.prune(now)
	return len(w.stamps) < w.max
}

func (w *window) record(now time.Time) {
	w.stamps = append(w.stamps, now)
}

// chatWindow tracks one conversation's window plus its last activity,
// which drives eviction.
type chatWindow struct {
	window
	lastSeen time.Time
}

// Limiter is the admission controller for one adapter instance. It is pure
// state, no I/O: Admit never blocks and never errors, AwaitAdmission polls
// until admission would succeed or the context ends.
//
// Limiter state is private to its adapter; only the per-chat map sees
// concurrent mutation (tasks serving different chats of the same adapter),
// so a single mutex guards everything. Throughput is bounded by the limiter
// itself, which keeps pruning amortized.
type Limiter struct {
	mu   sync.Mutex
	tier RateTier

	minute *window
	hour   *window
	second *window // nil unless MessagesPerSecond > 0

	burstCount   int
	burstResetAt time.Time

	chats     map[string]*chatWindow
	lastSweep time.Time

	now  func() time.Time
	poll time.Duration
}

// NewLimiter creates a limiter for the given tier. Zero fields fall back to
// conservative defaults.
func NewLimiter(tier RateTier) *Limiter {
	tier = tier.withDefaults()
	l := &Limiter{
		tier:   tier,
		minute: &window{interval: time.Minute, max: tier.RequestsPerMinute},
		hour:   &window{interval: time.Hour, max: tier.RequestsPerHour},
		now:    time.Now,
		poll:   defaultPollInterval,
	}
	if tier.MessagesPerSecond > 0 {
		l.second = &window{interval: time.Second, max: tier.MessagesPerSecond}
	}
	if tier.PerChatLimit > 0 {
		l.chats = make(map[string]*chatWindow)
	}
	l.burstResetAt = l.now()
	l.lastSweep = l.burstResetAt
	return l
}

// WithClock replaces the wall clock, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	l.burstResetAt = now()
	l.lastSweep = l.burstResetAt
	return l
}

// Admit reports whether a request may be dispatched right now. Every
// applicable window must have spare capacity simultaneously; the tightest
// window dominates. Admit never blocks and never errors.
func (l *Limiter) Admit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.admitLocked(l.now(), "")
}

// AdmitChat is Admit plus the per-conversation window.
func (l *Limiter) AdmitChat(chatID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.admitLocked(l.now(), chatID)
}

func (l *Limiter) admitLocked(now time.Time, chatID string) bool {
	l.sweepLocked(now)
	l.resetBurstLocked(now)

	if l.burstCount >= l.tier.BurstSize {
		return false
	}
	if l.second != nil && !l.second.hasCapacity(now) {
		return false
	}
	if !l.minute.hasCapacity(now) {
		return false
	}
	if !l.hour.hasCapacity(now) {
		return false
	}
	if chatID != "" && l.chats != nil {
		if cw, ok := l.chats[chatID]; ok && !cw.hasCapacity(now) {
			return false
		}
	}
	return true
}

// Record registers one dispatched request. Call exactly once per dispatched
// request, never per admission check.
func (l *Limiter) Record() {
	l.RecordChat("")
}

// RecordChat registers one dispatched request against the shared windows
// and, when chatID is non-empty, the conversation's window.
func (l *Limiter) RecordChat(chatID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.resetBurstLocked(now)
	l.burstCount++
	l.minute.record(now)
	l.hour.record(now)
	if l.second != nil {
		l.second.record(now)
	}
	if chatID != "" && l.chats != nil {
		cw, ok := l.chats[chatID]
		if !ok {
			cw = &chatWindow{window: window{interval: defaultPerChatWindow, max: l.tier.PerChatLimit}}
			l.chats[chatID] = cw
		}
		cw.record(now)
		cw.lastSeen = now
	}
}

// AwaitAdmission blocks until Admit would succeed, polling at a short fixed
// interval. The context bounds the wait; production callers pass a deadline
// so backpressure surfaces as an error instead of an indefinite stall.
func (l *Limiter) AwaitAdmission(ctx context.Context) error {
	return l.await(ctx, "")
}

// AwaitChatAdmission is AwaitAdmission including the per-chat window.
func (l *Limiter) AwaitChatAdmission(ctx context.Context, chatID string) error {
	return l.await(ctx, chatID)
}

func (l *Limiter) await(ctx context.Context, chatID string) error {
	if err := ctx.Err(); err != nil {
		return ErrAdmissionTimeout
	}
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		l.mu.Lock()
		ok := l.admitLocked(l.now(), chatID)
		l.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrAdmissionTimeout
		case <-ticker.C:
		}
	}
}

// Snapshot reports current occupancy for health checks.
func (l *Limiter) Snapshot() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.minute.prune(now)
	l.hour.prune(now)
	return Usage{
		RequestsLastMinute: len(l.minute.stamps),
		RequestsLastHour:   len(l.hour.stamps),
		BurstCount:         l.burstCount,
		ActiveChats:        len(l.chats),
		CanAdmit:           l.admitLocked(now, ""),
	}
}

// EvictIdleChats drops conversations idle longer than the tier's eviction
// horizon and returns how many were removed. Sweeps also run inline during
// admission, so calling this is only needed for forced maintenance.
func (l *Limiter) EvictIdleChats() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evictLocked(l.now())
}

// resetBurstLocked lazily zeroes the burst counter once a full interval has
// elapsed. Wall-clock based, tolerant of skew up to one interval.
func (l *Limiter) resetBurstLocked(now time.Time) {
	if now.Sub(l.burstResetAt) >= l.tier.BurstInterval {
		l.burstCount = 0
		l.burstResetAt = now
	}
}

func (l *Limiter) sweepLocked(now time.Time) {
	if l.chats == nil || now.Sub(l.lastSweep) < defaultChatSweepInterval {
		return
	}
	l.evictLocked(now)
}

func (l *Limiter) evictLocked(now time.Time) int {
	l.lastSweep = now
	if l.chats == nil {
		return 0
	}
	evicted := 0
	cutoff := now.Add(-l.tier.ChatIdleEviction)
	for id, cw := range l.chats {
		if cw.lastSeen.Before(cutoff) {
			delete(l.chats, id)
			evicted++
		}
	}
	return evicted
}
