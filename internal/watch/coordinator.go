package watch

import (
	"os"
	"sync"
	"time"
)

// Defaults for the coordinator's timing knobs.
const (
	DefaultStabilityWindow = 2 * time.Second
	DefaultCooldown        = 5 * time.Second
	DefaultPollInterval    = 500 * time.Millisecond
)

// Logger is the subset of the application logger the watcher needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Config carries the coordinator's timing parameters.
type Config struct {
	// StabilityWindow is how long size and mtime must hold still before a
	// file is dispatched.
	StabilityWindow time.Duration

	// NewDelay defers the first stability sample after a file first
	// appears, skipping editors that create a file and write to it
	// moments later. Zero disables the delay.
	NewDelay time.Duration

	// Cooldown suppresses events for a path after its dispatch, so
	// processing that touches the file's timestamp does not re-trigger
	// it.
	Cooldown time.Duration

	// PollInterval is the stability re-poll cadence.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.StabilityWindow <= 0 {
		c.StabilityWindow = DefaultStabilityWindow
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.NewDelay < 0 {
		c.NewDelay = 0
	}
	return c
}

// stabilityRecord tracks one pending path. sampledAt is when the recorded
// size/mtime pair was first observed; zero means no sample yet.
type stabilityRecord struct {
	size      int64
	mtime     time.Time
	sampledAt time.Time
	firstSeen time.Time
}

// Stats is a point-in-time snapshot of coordinator state.
type Stats struct {
	Pending    int
	Cooldowns  int
	Dispatched uint64
	Suppressed uint64
}

// Coordinator runs the per-path state machine between raw events and the
// worker pool. One lock covers the stability and cooldown maps; events,
// the poll loop, and the existing-files scan all funnel through it.
type Coordinator struct {
	cfg    Config
	submit func(path string) bool
	log    Logger

	mu        sync.Mutex
	pending   map[string]*stabilityRecord
	cooldowns map[string]time.Time

	dispatched uint64
	suppressed uint64

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewCoordinator creates a coordinator that hands stable paths to submit.
// submit must not block; it reports whether the path was accepted.
func NewCoordinator(cfg Config, submit func(path string) bool, log Logger) *Coordinator {
	if log == nil {
		log = nopLogger{}
	}
	return &Coordinator{
		cfg:       cfg.withDefaults(),
		submit:    submit,
		log:       log,
		pending:   make(map[string]*stabilityRecord),
		cooldowns: make(map[string]time.Time),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run consumes events until Stop is called or the channel closes. It owns
// the stability re-poll ticker.
func (c *Coordinator) Run(events <-chan Event) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handle(ev)
		case <-ticker.C:
			c.poll()
		}
	}
}

// Stop signals the run loop and waits for it to exit. Pending paths that
// never reached stability are abandoned.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
	<-c.done
}

func (c *Coordinator) handle(ev Event) {
	switch ev.Op {
	case OpCreate, OpWrite:
		c.Observe(ev.Path)
	case OpRemove:
		c.forget(ev.Path)
	}
}

// Observe notes a creation or modification of path. Events inside a live
// cooldown window are discarded. The existing-files scan calls this
// directly with synthetic creations.
func (c *Coordinator) Observe(path string) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if at, ok := c.cooldowns[path]; ok {
		if now.Sub(at) < c.cfg.Cooldown {
			c.suppressed++
			c.log.Debug("cooldown active, event discarded: %s", path)
			return
		}
		delete(c.cooldowns, path)
	}

	rec, ok := c.pending[path]
	if !ok {
		rec = &stabilityRecord{firstSeen: now}
		c.pending[path] = rec
	}

	if c.cfg.NewDelay > 0 && now.Sub(rec.firstSeen) < c.cfg.NewDelay {
		// First sample deferred to the poll loop.
		rec.sampledAt = time.Time{}
		return
	}

	size, mtime, err := statFile(path)
	if err != nil {
		delete(c.pending, path)
		return
	}
	rec.size, rec.mtime, rec.sampledAt = size, mtime, now
}

func (c *Coordinator) forget(path string) {
	c.mu.Lock()
	delete(c.pending, path)
	c.mu.Unlock()
}

// poll re-samples every pending path. A path whose size and mtime are
// unchanged since a sample at least one stability window old is
// dispatched: the cooldown entry is written eagerly, before the pool sees
// the path, so nothing can re-dispatch it mid-flight. A rejected submit
// clears the cooldown again so a later event can retry.
func (c *Coordinator) poll() {
	now := time.Now()

	c.mu.Lock()
	for path, at := range c.cooldowns {
		if now.Sub(at) >= c.cfg.Cooldown {
			delete(c.cooldowns, path)
		}
	}

	var ready []string
	for path, rec := range c.pending {
		if c.cfg.NewDelay > 0 && now.Sub(rec.firstSeen) < c.cfg.NewDelay {
			continue
		}

		size, mtime, err := statFile(path)
		if err != nil {
			// Vanished while pending.
			delete(c.pending, path)
			continue
		}

		if rec.sampledAt.IsZero() || size != rec.size || !mtime.Equal(rec.mtime) {
			rec.size, rec.mtime, rec.sampledAt = size, mtime, now
			continue
		}

		if now.Sub(rec.sampledAt) < c.cfg.StabilityWindow {
			continue
		}

		delete(c.pending, path)
		c.cooldowns[path] = now
		ready = append(ready, path)
	}
	c.mu.Unlock()

	for _, path := range ready {
		if c.submit(path) {
			c.mu.Lock()
			c.dispatched++
			c.mu.Unlock()
			c.log.Debug("dispatched: %s", path)
			continue
		}

		c.mu.Lock()
		delete(c.cooldowns, path)
		c.mu.Unlock()
		c.log.Warn("dispatch rejected, will retry on next event: %s", path)
	}
}

// Stats returns a snapshot of coordinator state.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Pending:    len(c.pending),
		Cooldowns:  len(c.cooldowns),
		Dispatched: c.dispatched,
		Suppressed: c.suppressed,
	}
}

func statFile(path string) (int64, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, time.Time{}, err
	}
	if info.IsDir() {
		return 0, time.Time{}, os.ErrInvalid
	}
	return info.Size(), info.ModTime(), nil
}
