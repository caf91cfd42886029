package app

import (
	"sync"
	"time"
)

// Countdown is the single authoritative attempt timer. It counts whole
// seconds down from a fixed budget, ticks once per interval while running,
// and fires its expiry callback exactly once when the counter reaches zero.
type Countdown struct {
	interval time.Duration
	onTick   func(remaining int)
	onExpire func()

	mu        sync.Mutex
	remaining int
	running   bool
	expired   bool
	stop      chan struct{}
}

// NewCountdown builds a timer over the given budget with a one-second tick.
// Callbacks may be nil and are never invoked while internal locks are held.
func NewCountdown(budget time.Duration, onTick func(int), onExpire func()) *Countdown {
	return NewCountdownWithInterval(budget, time.Second, onTick, onExpire)
}

// NewCountdownWithInterval is test-only for compressing wall-clock time.
func NewCountdownWithInterval(budget, interval time.Duration, onTick func(int), onExpire func()) *Countdown {
	return &Countdown{
		interval:  interval,
		onTick:    onTick,
		onExpire:  onExpire,
		remaining: int(budget / time.Second),
	}
}

// Start begins ticking. Starting an already-running or expired timer is a no-op.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.expired || c.remaining <= 0 {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	go c.run(c.stop)
}

func (c *Countdown) run(stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if !c.running {
				c.mu.Unlock()
				return
			}
			c.remaining--
			remaining := c.remaining
			fire := false
			if c.remaining <= 0 {
				c.remaining = 0
				c.running = false
				c.expired = true
				fire = true
			}
			c.mu.Unlock()

			if c.onTick != nil {
				c.onTick(remaining)
			}
			if fire {
				if c.onExpire != nil {
					c.onExpire()
				}
				return
			}
		}
	}
}

// Stop cancels the timer without leaking a pending firing. Safe to call from
// any state, including after expiry.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stop)
}

// Remaining returns the seconds left on the clock.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}
