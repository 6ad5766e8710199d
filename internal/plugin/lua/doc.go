// Package lua hosts processor plugins written in Lua.
//
// Each plugin runs in its own sandboxed Lua state (no io, os, debug, or
// package libraries) with a host-provided `imgc` module for logging and
// restricted file access. gopher-lua states are not goroutine-safe, so all
// calls into a plugin are serialized through a per-plugin executor
// goroutine; the chain's per-step timeout applies above this layer.
package lua
