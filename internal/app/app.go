package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dshills/imgc/internal/chain"
	"github.com/dshills/imgc/internal/dispatch"
	"github.com/dshills/imgc/internal/plugin"
	"github.com/dshills/imgc/internal/watch"
)

// shutdownGrace bounds how long the worker pool may spend draining
// in-flight items after a stop signal.
const shutdownGrace = 10 * time.Second

// App is the running watcher: the processor chain, the worker pool, and
// the event coordinator, wired to a single root directory.
type App struct {
	settings Settings
	log      *Logger

	registry *plugin.Registry
	chain    *chain.Chain
	pool     *dispatch.Pool
	coord    *watch.Coordinator
	source   *watch.Source

	running atomic.Bool
}

// New validates the settings and assembles the application. The registry
// must already be loaded and configured; New freezes the chain order from
// its processors.
func New(settings Settings, log *Logger, registry *plugin.Registry) (*App, error) {
	if log == nil {
		log = NullLogger
	}

	root, err := validateRoot(settings.Root)
	if err != nil {
		return nil, err
	}
	settings.Root = root
	if settings.Workers < 1 {
		settings.Workers = DefaultWorkers
	}

	a := &App{
		settings: settings,
		log:      log,
		registry: registry,
	}
	a.chain = chain.New(registry.Processors(), settings.StepTimeout())
	a.pool = dispatch.New(a.process,
		dispatch.WithWorkers(settings.Workers),
		dispatch.WithQueueSize(settings.QueueSize()),
		dispatch.WithPanicHandler(a.logPanic),
	)
	a.coord = watch.NewCoordinator(watch.Config{
		StabilityWindow: settings.StabilityWindow(),
		NewDelay:        settings.NewDelay(),
		Cooldown:        settings.CooldownWindow(),
	}, a.pool.Submit, log.WithComponent("watch"))

	return a, nil
}

// Run starts the pipeline and blocks until ctx is cancelled, then shuts
// down in reverse order: event source, coordinator, pool, plugins.
func (a *App) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)

	if err := a.pool.Start(); err != nil {
		return &InitError{Component: "pool", Err: err}
	}

	source, err := watch.NewSource(a.settings.Root)
	if err != nil {
		a.pool.Stop(context.Background())
		return &InitError{Component: "watcher", Err: err}
	}
	a.source = source

	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		a.coord.Run(source.Events())
	}()

	scanCancel := func() {}
	if a.settings.ProcessExisting {
		var scanCtx context.Context
		scanCtx, scanCancel = context.WithCancel(ctx)
		go a.scanExisting(scanCtx)
	}
	defer scanCancel()

	a.logStartup()

	for {
		select {
		case <-ctx.Done():
			return a.shutdown(coordDone)
		case err := <-source.Errors():
			a.log.Warn("watcher: %v", err)
		}
	}
}

// IsRunning reports whether Run is active.
func (a *App) IsRunning() bool {
	return a.running.Load()
}

func (a *App) shutdown(coordDone <-chan struct{}) error {
	a.log.Info("shutting down")

	// Closing the source ends the event stream, which lets the
	// coordinator's run loop drain and exit on its own.
	a.source.Close()
	<-coordDone
	a.coord.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err := a.pool.Stop(ctx)

	a.registry.Close()

	a.log.Info("done: %s", a.Stats())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrShutdownTimeout, err)
	}
	return nil
}

// process is the pool runner: one item, one chain run, per-step logging.
// The returned error marks the item failed in the pool counters.
func (a *App) process(item dispatch.Item) error {
	results := a.chain.Run(item.Path)
	if len(results) == 0 {
		a.log.Debug("no processor matched %s", item.Path)
		return nil
	}

	failed := 0
	for _, res := range results {
		switch {
		case res.TimedOut:
			failed++
			a.log.Warn("%s: %s timed out after %s", item.Path, res.Name(),
				res.Duration.Round(time.Millisecond))
		case res.Err != nil:
			failed++
			a.log.Warn("%s: %s failed: %v", item.Path, res.Name(), res.Err)
		case !res.Outcome.Success:
			failed++
			a.log.Warn("%s: %s: %s", item.Path, res.Name(), res.Outcome.Message)
		default:
			a.log.Info("%s: %s: %s", item.Path, res.Name(), res.Outcome.Message)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d steps failed for %s", failed, len(results), item.Path)
	}
	return nil
}

func (a *App) logPanic(item dispatch.Item, value any, stack []byte) {
	a.log.Error("panic processing %s: %v\n%s", item.Path, value, stack)
}

func (a *App) scanExisting(ctx context.Context) {
	log := a.log.WithComponent("scan")
	err := watch.ScanExisting(ctx, a.settings.Root, a.settings.Workers, a.coord)
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil:
		log.Warn("existing-files scan: %v", err)
	default:
		log.Info("existing-files scan complete")
	}
}

func (a *App) logStartup() {
	a.log.Info("watching %s (workers=%d queue=%d stable=%.1fs cooldown=%.1fs timeout=%.1fs)",
		a.settings.Root, a.settings.Workers, a.settings.QueueSize(),
		a.settings.StableSeconds, a.settings.CooldownSeconds, a.settings.CompressTimeout)

	for _, p := range a.registry.Processors() {
		d := p.Descriptor()
		a.log.Info("processor %q priority=%d extensions=%s",
			d.Name, d.EffectivePriority(), strings.Join(d.Extensions, ","))
	}
	if stats := a.registry.Stats(); stats.Failed > 0 {
		a.log.Warn("%d plugin(s) failed to load", stats.Failed)
	}
	if a.settings.ProcessExisting {
		a.log.Info("processing existing files under %s", a.settings.Root)
	}
}
