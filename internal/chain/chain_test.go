package chain

import (
	"errors"
	"testing"
	"time"

	"github.com/dshills/imgc/internal/processor"
)

type fake struct {
	name string
	prio int
	exts []string
	fn   func(ctx *processor.Context, path string) (*processor.Outcome, error)
}

func (f *fake) Descriptor() processor.Descriptor {
	return processor.Descriptor{Name: f.name, Priority: f.prio, Extensions: f.exts}
}

func (f *fake) Process(ctx *processor.Context, path string) (*processor.Outcome, error) {
	if f.fn == nil {
		return processor.Succeeded("ok"), nil
	}
	return f.fn(ctx, path)
}

type pickyFake struct {
	fake
	want string
}

func (p *pickyFake) Matches(path string) bool {
	return path == p.want
}

func names(results []StepResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Name()
	}
	return out
}

func TestChainOrder(t *testing.T) {
	procs := []processor.Processor{
		&fake{name: "late", prio: 200, exts: []string{".txt"}},
		&fake{name: "early", prio: 50, exts: []string{".txt"}},
		&fake{name: "mid", prio: 100, exts: []string{".txt"}},
	}

	results := New(procs, 0).Run("/tmp/a.txt")
	got := names(results)
	want := []string{"early", "mid", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestChainTieKeepsRegistrationOrder(t *testing.T) {
	procs := []processor.Processor{
		&fake{name: "first", prio: 100, exts: []string{".txt"}},
		&fake{name: "second", prio: 100, exts: []string{".txt"}},
		&fake{name: "zero-means-default", exts: []string{".txt"}},
	}

	results := New(procs, 0).Run("/tmp/a.txt")
	got := names(results)
	want := []string{"first", "second", "zero-means-default"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestChainNoMatch(t *testing.T) {
	procs := []processor.Processor{
		&fake{name: "texty", exts: []string{".txt"}},
	}
	if results := New(procs, 0).Run("/tmp/a.jpg"); len(results) != 0 {
		t.Errorf("Run() = %d results, want 0", len(results))
	}
}

func TestChainCustomMatcher(t *testing.T) {
	picky := &pickyFake{
		fake: fake{name: "picky", exts: []string{".txt"}},
		want: "/tmp/only-this.txt",
	}
	c := New([]processor.Processor{picky}, 0)

	if results := c.Run("/tmp/other.txt"); len(results) != 0 {
		t.Errorf("Run(other) = %d results, want 0: matcher overrides extensions", len(results))
	}
	if results := c.Run("/tmp/only-this.txt"); len(results) != 1 {
		t.Errorf("Run(only-this) = %d results, want 1", len(results))
	}
}

func TestChainContextFlow(t *testing.T) {
	var sawWidth any
	procs := []processor.Processor{
		&fake{name: "measure", prio: 10, exts: []string{".txt"}, fn: func(ctx *processor.Context, path string) (*processor.Outcome, error) {
			return processor.Succeeded("measured").WithContext("width", 640), nil
		}},
		&fake{name: "report", prio: 20, exts: []string{".txt"}, fn: func(ctx *processor.Context, path string) (*processor.Outcome, error) {
			sawWidth, _ = ctx.Get("width")
			return processor.Succeeded("reported"), nil
		}},
	}

	New(procs, 0).Run("/tmp/a.txt")
	if sawWidth != 640 {
		t.Errorf("second step saw width = %v, want 640", sawWidth)
	}
}

func TestChainDeltaMergedFromFailedOutcome(t *testing.T) {
	var sawReason any
	procs := []processor.Processor{
		&fake{name: "refuse", prio: 10, exts: []string{".txt"}, fn: func(ctx *processor.Context, path string) (*processor.Outcome, error) {
			return processor.Failed("too big").WithContext("reason", "size"), nil
		}},
		&fake{name: "observe", prio: 20, exts: []string{".txt"}, fn: func(ctx *processor.Context, path string) (*processor.Outcome, error) {
			sawReason, _ = ctx.Get("reason")
			return processor.Succeeded("ok"), nil
		}},
	}

	results := New(procs, 0).Run("/tmp/a.txt")
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Outcome.Success {
		t.Error("first outcome Success = true, want false")
	}
	if sawReason != "size" {
		t.Errorf("second step saw reason = %v, want size", sawReason)
	}
}

func TestChainFailureIsolation(t *testing.T) {
	procs := []processor.Processor{
		&fake{name: "errors", prio: 10, exts: []string{".txt"}, fn: func(ctx *processor.Context, path string) (*processor.Outcome, error) {
			return nil, errors.New("disk on fire")
		}},
		&fake{name: "panics", prio: 20, exts: []string{".txt"}, fn: func(ctx *processor.Context, path string) (*processor.Outcome, error) {
			panic("unexpected nil")
		}},
		&fake{name: "survives", prio: 30, exts: []string{".txt"}},
	}

	results := New(procs, 0).Run("/tmp/a.txt")
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want one entry per matching processor", len(results))
	}

	if results[0].Err == nil || results[0].Outcome.Success {
		t.Errorf("errored step = %+v, want failed outcome with error", results[0])
	}
	if results[1].Err == nil || results[1].Outcome.Success {
		t.Errorf("panicked step = %+v, want failed outcome with error", results[1])
	}
	if results[2].Err != nil || !results[2].Outcome.Success {
		t.Errorf("final step = %+v, want success", results[2])
	}
}

func TestChainNilOutcome(t *testing.T) {
	procs := []processor.Processor{
		&fake{name: "empty-handed", exts: []string{".txt"}, fn: func(ctx *processor.Context, path string) (*processor.Outcome, error) {
			return nil, nil
		}},
	}

	results := New(procs, 0).Run("/tmp/a.txt")
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Outcome == nil || results[0].Outcome.Success {
		t.Errorf("outcome = %+v, want synthesized failure", results[0].Outcome)
	}
}

func TestChainTimeoutAbandonsStep(t *testing.T) {
	release := make(chan struct{})
	procs := []processor.Processor{
		&fake{name: "stuck", prio: 10, exts: []string{".txt"}, fn: func(ctx *processor.Context, path string) (*processor.Outcome, error) {
			<-release
			return processor.Succeeded("late"), nil
		}},
		&fake{name: "after", prio: 20, exts: []string{".txt"}},
	}
	defer close(release)

	start := time.Now()
	results := New(procs, 25*time.Millisecond).Run("/tmp/a.txt")
	elapsed := time.Since(start)

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if !results[0].TimedOut {
		t.Error("TimedOut = false, want true")
	}
	if !errors.Is(results[0].Err, ErrStepTimeout) {
		t.Errorf("Err = %v, want ErrStepTimeout", results[0].Err)
	}
	if results[0].Outcome.Success {
		t.Error("timed-out outcome Success = true, want false")
	}
	if results[1].Name() != "after" || !results[1].Outcome.Success {
		t.Errorf("chain did not continue past timeout: %+v", results[1])
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Run() took %s, want prompt return after timeout", elapsed)
	}
}

func TestChainZeroTimeoutNeverExpires(t *testing.T) {
	procs := []processor.Processor{
		&fake{name: "slowish", exts: []string{".txt"}, fn: func(ctx *processor.Context, path string) (*processor.Outcome, error) {
			time.Sleep(30 * time.Millisecond)
			return processor.Succeeded("done"), nil
		}},
	}

	results := New(procs, 0).Run("/tmp/a.txt")
	if results[0].TimedOut || !results[0].Outcome.Success {
		t.Errorf("result = %+v, want untimed success", results[0])
	}
}

func TestChainSelect(t *testing.T) {
	procs := []processor.Processor{
		&fake{name: "img", prio: 50, exts: []string{".jpg"}},
		&fake{name: "doc", prio: 200, exts: []string{".txt"}},
		&fake{name: "any-text", prio: 100, exts: []string{".txt", ".md"}},
	}
	c := New(procs, 0)

	sel := c.Select("/tmp/notes.txt")
	if len(sel) != 2 {
		t.Fatalf("Select() = %d processors, want 2", len(sel))
	}
	if sel[0].Descriptor().Name != "any-text" || sel[1].Descriptor().Name != "doc" {
		t.Errorf("Select() order = %q, %q", sel[0].Descriptor().Name, sel[1].Descriptor().Name)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}
