package app

import (
	"fmt"

	"github.com/dshills/imgc/internal/dispatch"
	"github.com/dshills/imgc/internal/plugin"
	"github.com/dshills/imgc/internal/watch"
)

// RunStats is a point-in-time snapshot of the pipeline counters, logged at
// shutdown and available to callers while running.
type RunStats struct {
	Pool    dispatch.Stats
	Watch   watch.Stats
	Plugins plugin.Stats
}

// Stats snapshots the pipeline counters.
func (a *App) Stats() RunStats {
	return RunStats{
		Pool:    a.pool.Stats(),
		Watch:   a.coord.Stats(),
		Plugins: a.registry.Stats(),
	}
}

// String formats the snapshot as a single log-friendly line.
func (s RunStats) String() string {
	return fmt.Sprintf(
		"dispatched=%d processed=%d succeeded=%d failed=%d dropped=%d suppressed=%d processors=%d",
		s.Watch.Dispatched, s.Pool.Processed, s.Pool.Succeeded,
		s.Pool.Failed, s.Pool.Dropped, s.Watch.Suppressed, s.Plugins.Loaded)
}
