package lua

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/imgc/internal/processor"
)

// Processor adapts a Lua plugin script to the processor contract.
//
// The script must return a table with a `process(path, ctx, opts)` function
// returning `{success=..., message=..., stats={...}, context={...}}`.
// Optional fields: `matches(path)` overriding the extension test,
// `setup(opts)` called once after configuration, and `descriptor` declaring
// identity for single-file plugins without a manifest.
type Processor struct {
	desc   processor.Descriptor
	state  *State
	exec   *Executor
	bridge *Bridge
	logf   func(level, msg string)

	processFn *lua.LFunction
	matchesFn *lua.LFunction
	setupFn   *lua.LFunction

	mu   sync.Mutex
	opts map[string]any
}

var (
	_ processor.Processor    = (*Processor)(nil)
	_ processor.Matcher      = (*Processor)(nil)
	_ processor.Configurable = (*Processor)(nil)
)

// Load executes a plugin script and wraps the returned table as a
// Processor. desc carries manifest-declared identity; fields the manifest
// left empty are filled from the script's optional `descriptor` table.
func Load(scriptPath string, desc processor.Descriptor, host *Host) (*Processor, error) {
	state := NewState()
	if host != nil {
		host.Install(state)
	}

	ret, err := state.DoFile(scriptPath)
	if err != nil {
		state.Close()
		return nil, err
	}

	table, ok := ret.(*lua.LTable)
	if !ok {
		state.Close()
		return nil, ErrNoPluginTable
	}

	bridge := NewBridge(state.L)

	p := &Processor{
		state:  state,
		bridge: bridge,
	}
	if host != nil {
		p.logf = host.Logf
	}

	p.processFn, ok = bridge.TableFunc(table, "process")
	if !ok {
		state.Close()
		return nil, ErrNoProcessFunc
	}
	p.matchesFn, _ = bridge.TableFunc(table, "matches")
	p.setupFn, _ = bridge.TableFunc(table, "setup")

	p.desc = desc
	if dt, ok := bridge.TableTable(table, "descriptor"); ok {
		if err := p.fillDescriptor(dt); err != nil {
			state.Close()
			return nil, err
		}
	}

	p.exec = NewExecutor(state.L)
	return p, nil
}

// fillDescriptor merges the script's descriptor table into fields the
// manifest left empty. Manifest values win.
func (p *Processor) fillDescriptor(t *lua.LTable) error {
	if p.desc.Name == "" {
		p.desc.Name, _ = p.bridge.TableString(t, "name")
	}
	if p.desc.Version == "" {
		p.desc.Version, _ = p.bridge.TableString(t, "version")
	}
	if p.desc.Priority == 0 {
		p.desc.Priority, _ = p.bridge.TableInt(t, "priority")
	}
	if p.desc.Namespace == "" {
		p.desc.Namespace, _ = p.bridge.TableString(t, "namespace")
	}
	if len(p.desc.Extensions) == 0 {
		if et, ok := p.bridge.TableTable(t, "extensions"); ok {
			if arr, ok := p.bridge.ToGoValue(et).([]any); ok {
				for _, item := range arr {
					if s, ok := item.(string); ok {
						p.desc.Extensions = append(p.desc.Extensions, s)
					}
				}
			}
		}
	}
	if len(p.desc.Options) == 0 {
		if ot, ok := p.bridge.TableTable(t, "options"); ok {
			opts, err := optionsFromTable(p.bridge, ot)
			if err != nil {
				return err
			}
			p.desc.Options = opts
		}
	}
	return nil
}

// optionsFromTable parses an array of option tables:
//
//	{ {name="max_size_kb", type="int", default=1024, description="...",
//	   min=1, max=10240}, ... }
func optionsFromTable(b *Bridge, t *lua.LTable) ([]processor.Option, error) {
	arr, ok := b.ToGoValue(t).([]any)
	if !ok {
		return nil, fmt.Errorf("lua: descriptor options must be an array")
	}

	opts := make([]processor.Option, 0, len(arr))
	for i, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("lua: option %d is not a table", i+1)
		}

		opt := processor.Option{}
		opt.Name, _ = m["name"].(string)
		if opt.Name == "" {
			return nil, fmt.Errorf("lua: option %d has no name", i+1)
		}

		typeName, _ := m["type"].(string)
		if typeName != "" {
			typ, err := processor.ParseOptionType(typeName)
			if err != nil {
				return nil, fmt.Errorf("lua: option %q: %w", opt.Name, err)
			}
			opt.Type = typ
		}

		opt.Default = normalizeDefault(opt.Type, m["default"])
		opt.Description, _ = m["description"].(string)

		if v, ok := toFloat(m["min"]); ok {
			opt.Minimum = &v
		}
		if v, ok := toFloat(m["max"]); ok {
			opt.Maximum = &v
		}

		opts = append(opts, opt)
	}
	return opts, nil
}

// normalizeDefault converts bridge numerics (always int64/float64) into the
// Go types the option type expects.
func normalizeDefault(typ processor.OptionType, v any) any {
	if v == nil {
		return nil
	}
	switch typ {
	case processor.OptionInt:
		switch n := v.(type) {
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	case processor.OptionFloat:
		switch n := v.(type) {
		case int64:
			return float64(n)
		case float64:
			return n
		}
	}
	return v
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Descriptor returns the plugin's identity.
func (p *Processor) Descriptor() processor.Descriptor {
	return p.desc
}

// HasCustomMatcher reports whether the script provides a matches function.
func (p *Processor) HasCustomMatcher() bool {
	return p.matchesFn != nil
}

// Matches runs the script's matches function when present, falling back to
// the descriptor's extension test. A matches error counts as no match.
func (p *Processor) Matches(path string) bool {
	if p.matchesFn == nil {
		return processor.MatchesExtension(p.desc.Extensions, path)
	}

	matched := false
	err := p.exec.Execute(func(L *lua.LState) error {
		L.Push(p.matchesFn)
		L.Push(lua.LString(path))
		if err := L.PCall(1, 1, nil); err != nil {
			return err
		}
		ret := L.Get(-1)
		L.Pop(1)
		matched = lua.LVAsBool(ret)
		return nil
	})
	if err != nil {
		p.log("warning", fmt.Sprintf("%s: matches failed: %v", p.desc.Name, err))
		return false
	}
	return matched
}

// Configure delivers resolved option values and runs the script's setup
// function when present.
func (p *Processor) Configure(values map[string]any) error {
	p.mu.Lock()
	p.opts = values
	p.mu.Unlock()

	if p.setupFn == nil {
		return nil
	}
	return p.exec.Execute(func(L *lua.LState) error {
		L.Push(p.setupFn)
		L.Push(p.bridge.ToLuaValue(values))
		return L.PCall(1, 0, nil)
	})
}

// Process invokes the script's process function.
func (p *Processor) Process(ctx *processor.Context, path string) (*processor.Outcome, error) {
	p.mu.Lock()
	opts := p.opts
	p.mu.Unlock()

	var outcome *processor.Outcome
	err := p.exec.Execute(func(L *lua.LState) error {
		L.Push(p.processFn)
		L.Push(lua.LString(path))
		L.Push(p.bridge.ToLuaValue(ctx.Snapshot()))
		L.Push(p.bridge.ToLuaValue(opts))
		if err := L.PCall(3, 1, nil); err != nil {
			return err
		}

		ret := L.Get(-1)
		L.Pop(1)
		rt, ok := ret.(*lua.LTable)
		if !ok {
			return ErrBadResult
		}
		outcome = p.outcomeFromTable(rt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (p *Processor) outcomeFromTable(t *lua.LTable) *processor.Outcome {
	out := &processor.Outcome{}
	out.Success, _ = p.bridge.TableBool(t, "success")
	out.Message, _ = p.bridge.TableString(t, "message")

	if st, ok := p.bridge.TableTable(t, "stats"); ok {
		if m, ok := p.bridge.ToGoValue(st).(map[string]any); ok {
			out.Stats = m
		}
	}
	if ct, ok := p.bridge.TableTable(t, "context"); ok {
		if m, ok := p.bridge.ToGoValue(ct).(map[string]any); ok {
			out.Context = m
		}
	}
	return out
}

func (p *Processor) log(level, msg string) {
	if p.logf != nil {
		p.logf(level, msg)
	}
}

// Close shuts down the plugin's executor and Lua state.
func (p *Processor) Close() {
	p.exec.Close()
	p.state.Close()
}
