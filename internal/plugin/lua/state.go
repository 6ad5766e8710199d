package lua

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// State wraps a sandboxed gopher-lua state.
//
// gopher-lua's LState is not goroutine-safe. The mutex protects direct
// calls from Go code; plugin call traffic goes through an Executor instead,
// which serializes everything on one goroutine.
type State struct {
	L *lua.LState

	mu     sync.Mutex
	closed bool
}

// NewState creates a sandboxed Lua state with only the safe standard
// libraries opened.
func NewState() *State {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	openSafeLibraries(L)
	return &State{L: L}
}

// openSafeLibraries opens base, table, string, and math.
//
// Intentionally not opened: io and os (filesystem and system access goes
// through the host module), debug (can escape the sandbox), package
// (arbitrary module loading).
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// DoFile executes a Lua file and returns its first return value.
func (s *State) DoFile(path string) (lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return lua.LNil, ErrStateClosed
	}

	top := s.L.GetTop()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("lua panic: %v", r)
			}
		}()
		err = s.L.DoFile(path)
	}()
	if err != nil {
		return lua.LNil, err
	}

	nRet := s.L.GetTop() - top
	if nRet <= 0 {
		return lua.LNil, nil
	}
	ret := s.L.Get(top + 1)
	s.L.Pop(nRet)
	return ret, nil
}

// RegisterModule installs a module table with the given functions as a
// global.
func (s *State) RegisterModule(name string, funcs map[string]lua.LGFunction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	mod := s.L.SetFuncs(s.L.NewTable(), funcs)
	s.L.SetGlobal(name, mod)
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the Lua state. Safe to call more than once.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}
