package clock

import (
	"sync"
	"time"
)

// Countdown runs a deadline watcher for a single timed attempt. The deadline
// is absolute: remaining time is recomputed from the wall clock on every tick,
// so a suspended or lagging process still fires at the right moment instead of
// drifting with missed ticks.
type Countdown struct {
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	fired bool
	stop  chan struct{}
	done  bool
}

// Option configures a Countdown.
type Option func(*Countdown)

// WithInterval overrides the tick interval. Mainly useful in tests.
func WithInterval(d time.Duration) Option {
	return func(c *Countdown) { c.interval = d }
}

// WithNow overrides the wall clock source. Mainly useful in tests.
func WithNow(now func() time.Time) Option {
	return func(c *Countdown) { c.now = now }
}

// New returns an idle Countdown with a one second tick.
func New(opts ...Option) *Countdown {
	c := &Countdown{
		interval: time.Second,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins watching the deadline and invokes onTimeout exactly once when
// it passes. A nil deadline means the attempt is untimed and onTimeout never
// fires. A deadline already in the past fires onTimeout synchronously before
// Start returns. The returned cancel function stops the watcher and
// guarantees no later fire; calling it after the fire is a no-op.
func (c *Countdown) Start(deadline *time.Time, onTimeout func()) (cancel func()) {
	if deadline == nil {
		return func() {}
	}

	if deadline.Sub(c.now()) <= 0 {
		c.fire(onTimeout)
		return func() {}
	}

	go c.run(*deadline, onTimeout)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.done {
			c.done = true
			close(c.stop)
		}
	}
}

// Remaining reports the time left until the deadline, clamped at zero.
// A nil deadline reports ok=false.
func (c *Countdown) Remaining(deadline *time.Time) (time.Duration, bool) {
	if deadline == nil {
		return 0, false
	}
	r := deadline.Sub(c.now())
	if r < 0 {
		r = 0
	}
	return r, true
}

func (c *Countdown) run(deadline time.Time, onTimeout func()) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if deadline.Sub(c.now()) > 0 {
				continue
			}
			c.fire(onTimeout)
			return
		}
	}
}

// Fired reports whether the timeout callback has already run.
func (c *Countdown) Fired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}

// fire runs onTimeout at most once for the lifetime of the Countdown.
// Cancellation that loses the race to a tick does not retract the fire.
func (c *Countdown) fire(onTimeout func()) {
	c.mu.Lock()
	if c.fired || c.done {
		c.mu.Unlock()
		return
	}
	c.fired = true
	c.mu.Unlock()

	if onTimeout != nil {
		onTimeout()
	}
}
