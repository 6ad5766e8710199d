// Package chain runs a file through the matching processors in
// deterministic order with per-step isolation and timeouts.
package chain

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/dshills/imgc/internal/processor"
)

// ErrStepTimeout reports a step that exceeded its execution budget. The
// underlying work may still be running; the chain does not wait on it
// further.
var ErrStepTimeout = errors.New("chain: step timed out")

// StepResult is one processor invocation's outcome plus run metadata.
type StepResult struct {
	Processor processor.Processor
	Outcome   *processor.Outcome
	Err       error
	TimedOut  bool
	Duration  time.Duration
}

// Name returns the step's processor name.
func (r StepResult) Name() string {
	return r.Processor.Descriptor().Name
}

type step struct {
	proc  processor.Processor
	index int
}

// Chain executes the matching subset of processors against a path. Steps
// run lowest priority first; ties keep registration order.
type Chain struct {
	steps   []step
	timeout time.Duration
}

// New builds a chain over the given processors, which must be in
// registration order. timeout bounds each step; zero disables the bound.
func New(procs []processor.Processor, timeout time.Duration) *Chain {
	steps := make([]step, len(procs))
	for i, p := range procs {
		steps[i] = step{proc: p, index: i}
	}
	sort.SliceStable(steps, func(i, j int) bool {
		pi := steps[i].proc.Descriptor().EffectivePriority()
		pj := steps[j].proc.Descriptor().EffectivePriority()
		if pi != pj {
			return pi < pj
		}
		return steps[i].index < steps[j].index
	})
	return &Chain{steps: steps, timeout: timeout}
}

// Len returns the number of processors in the chain.
func (c *Chain) Len() int {
	return len(c.steps)
}

// Select returns the processors that apply to path, in execution order.
func (c *Chain) Select(path string) []processor.Processor {
	var out []processor.Processor
	for _, st := range c.steps {
		if matches(st.proc, path) {
			out = append(out, st.proc)
		}
	}
	return out
}

func matches(p processor.Processor, path string) bool {
	if m, ok := p.(processor.Matcher); ok {
		return m.Matches(path)
	}
	return processor.MatchesExtension(p.Descriptor().Extensions, path)
}

// Run executes every matching processor against path with a fresh context.
// A step's failure, panic, or timeout never stops the chain; the returned
// list holds one entry per matching processor, in execution order. Zero
// matches return an empty list.
func (c *Chain) Run(path string) []StepResult {
	ctx := processor.NewContext()

	var results []StepResult
	for _, st := range c.steps {
		if !matches(st.proc, path) {
			continue
		}
		res := c.runStep(st.proc, ctx, path)
		if res.Outcome != nil {
			ctx.Apply(res.Outcome.Context)
		}
		results = append(results, res)
	}
	return results
}

type stepReply struct {
	outcome *processor.Outcome
	err     error
}

func (c *Chain) runStep(p processor.Processor, ctx *processor.Context, path string) StepResult {
	// Buffered so an abandoned step can complete unobserved.
	replies := make(chan stepReply, 1)

	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- stepReply{err: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
			}
		}()
		out, err := p.Process(ctx, path)
		replies <- stepReply{outcome: out, err: err}
	}()

	var expired <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	name := p.Descriptor().Name
	select {
	case r := <-replies:
		res := StepResult{Processor: p, Duration: time.Since(start)}
		switch {
		case r.err != nil:
			res.Err = r.err
			res.Outcome = processor.Failed(fmt.Sprintf("%s: %v", name, r.err))
		case r.outcome == nil:
			res.Err = processor.ErrProcessFailed
			res.Outcome = processor.Failed(name + " returned no outcome")
		default:
			res.Outcome = r.outcome
		}
		return res
	case <-expired:
		err := fmt.Errorf("%w: %s after %s", ErrStepTimeout, name, c.timeout)
		return StepResult{
			Processor: p,
			Outcome:   processor.Failed(err.Error()),
			Err:       err,
			TimedOut:  true,
			Duration:  time.Since(start),
		}
	}
}
