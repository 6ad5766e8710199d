package lua

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// maxReadBytes caps imgc.read so a plugin cannot pull an arbitrarily large
// file into the Lua heap.
const maxReadBytes = 16 * 1024 * 1024

// Host supplies the capabilities exposed to plugin scripts as the global
// `imgc` module.
type Host struct {
	// Logf receives log lines emitted by plugins via imgc.log. Level is
	// one of "debug", "info", "warning", "error". Nil discards.
	Logf func(level, msg string)
}

// Install registers the `imgc` module on the state:
//
//	imgc.log(level, msg)           -- emit a log line
//	imgc.read(path [, limit])      -- file contents as a string
//	imgc.stat(path)                -- {size=n, mtime=unix_seconds}
//	imgc.ext(path)                 -- lowercased extension with dot
func (h *Host) Install(s *State) {
	s.RegisterModule("imgc", map[string]lua.LGFunction{
		"log":  h.luaLog,
		"read": h.luaRead,
		"stat": h.luaStat,
		"ext":  h.luaExt,
	})
}

func (h *Host) luaLog(L *lua.LState) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)
	if h.Logf != nil {
		h.Logf(level, msg)
	}
	return 0
}

func (h *Host) luaRead(L *lua.LState) int {
	path := L.CheckString(1)
	limit := maxReadBytes
	if L.GetTop() >= 2 {
		if n := int(L.CheckNumber(2)); n > 0 && n < limit {
			limit = n
		}
	}

	f, err := os.Open(path)
	if err != nil {
		L.RaiseError("read %s: %s", path, err.Error())
		return 0
	}
	defer f.Close()

	buf := make([]byte, limit)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		L.RaiseError("read %s: %s", path, err.Error())
		return 0
	}

	L.Push(lua.LString(buf[:n]))
	return 1
}

func (h *Host) luaStat(L *lua.LState) int {
	path := L.CheckString(1)

	info, err := os.Stat(path)
	if err != nil {
		L.RaiseError("stat %s: %s", path, err.Error())
		return 0
	}

	t := L.NewTable()
	t.RawSetString("size", lua.LNumber(info.Size()))
	t.RawSetString("mtime", lua.LNumber(float64(info.ModTime().UnixNano())/1e9))
	L.Push(t)
	return 1
}

func (h *Host) luaExt(L *lua.LState) int {
	path := L.CheckString(1)
	L.Push(lua.LString(strings.ToLower(filepath.Ext(path))))
	return 1
}
