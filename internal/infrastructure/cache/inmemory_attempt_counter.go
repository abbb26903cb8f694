package cache

import (
	"context"
	"sync"
	"time"
)

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// InMemoryAttemptCounter implements AttemptCounter with a process-local
// map. Suitable for single-instance deployments and testing; a background
// goroutine drops expired windows.
type InMemoryAttemptCounter struct {
	mu        sync.Mutex
	entries   map[string]*counterEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	now func() time.Time
}

// NewInMemoryAttemptCounter creates an in-memory attempt counter and starts
// its cleanup goroutine.
func NewInMemoryAttemptCounter() *InMemoryAttemptCounter {
	c := &InMemoryAttemptCounter{
		entries:  make(map[string]*counterEntry),
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
	c.wg.Add(1)
	go c.cleanupLoop()
	return c
}

// Incr increments the key's window counter. An expired window restarts
// at one.
func (c *InMemoryAttemptCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[key]
	if !ok || !e.expiresAt.After(now) {
		e = &counterEntry{expiresAt: now.Add(window)}
		c.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// Reset clears the counter, reopening the window
func (c *InMemoryAttemptCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Close stops the cleanup goroutine
func (c *InMemoryAttemptCounter) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
	})
	c.wg.Wait()
	return nil
}

func (c *InMemoryAttemptCounter) cleanupLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemoryAttemptCounter) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if !e.expiresAt.After(now) {
			delete(c.entries, key)
		}
	}
}
