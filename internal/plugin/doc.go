// Package plugin discovers, validates, and registers file processors.
//
// A plugin is a directory holding a manifest (plugin.yaml, plugin.yml, or
// plugin.json) and a Lua entry script, or a bare <name>.lua file that
// declares its own descriptor. The Loader finds candidates, the Registry
// loads them through the lua subpackage and holds them in registration
// order. Every candidate is isolated: one broken plugin is recorded as a
// failure and never takes down discovery or its siblings.
package plugin
