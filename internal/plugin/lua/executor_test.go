package lua

import (
	"errors"
	"sync"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestExecutorSerializes(t *testing.T) {
	s := NewState()
	defer s.Close()

	e := NewExecutor(s.L)
	defer e.Close()

	// Concurrent increments through the executor must not race: every call
	// runs alone on the state goroutine.
	if err := s.L.DoString(`counter = 0`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Execute(func(L *lua.LState) error {
				return L.DoString(`counter = counter + 1`)
			})
		}()
	}
	wg.Wait()

	var got int
	if err := e.Execute(func(L *lua.LState) error {
		got = int(L.GetGlobal("counter").(lua.LNumber))
		return nil
	}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got != 50 {
		t.Errorf("counter = %d, want 50", got)
	}
}

func TestExecutorRecoversPanic(t *testing.T) {
	s := NewState()
	defer s.Close()

	e := NewExecutor(s.L)
	defer e.Close()

	err := e.Execute(func(L *lua.LState) error {
		panic("script blew up")
	})
	if err == nil || err.Error() != "script blew up" {
		t.Errorf("Execute() error = %v, want panic message", err)
	}

	// Executor keeps working after a panic.
	if err := e.Execute(func(L *lua.LState) error { return nil }); err != nil {
		t.Errorf("Execute() after panic error = %v", err)
	}
}

func TestExecutorClosed(t *testing.T) {
	s := NewState()
	defer s.Close()

	e := NewExecutor(s.L)
	e.Close()
	e.Close() // idempotent

	err := e.Execute(func(L *lua.LState) error { return nil })
	if !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("Execute() after Close() error = %v, want ErrExecutorClosed", err)
	}
}
