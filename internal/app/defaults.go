package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/imgc/internal/processor"
)

// Default core option values.
const (
	DefaultWorkers         = 2
	DefaultStableSeconds   = 2.0
	DefaultNewDelaySeconds = 0.0
	DefaultCooldownSeconds = 5.0
	DefaultCompressTimeout = 30.0
	DefaultLogLevel        = "info"

	// QueuePerWorker sizes the dispatch queue relative to the worker count.
	QueuePerWorker = 32
)

// Settings are the resolved core options.
type Settings struct {
	// Root is the directory tree to watch. Required.
	Root string

	// Workers is the processing pool size.
	Workers int

	// StableSeconds is the stability window: size and mtime must be
	// unchanged across two samples at least this far apart.
	StableSeconds float64

	// NewDelaySeconds defers the first stability sample after a file is
	// first seen. Zero samples immediately.
	NewDelaySeconds float64

	// CooldownSeconds suppresses re-dispatch of a path after processing.
	CooldownSeconds float64

	// CompressTimeout bounds a single processor step, in seconds. Zero
	// disables the limit.
	CompressTimeout float64

	// ProcessExisting runs files already present under Root through the
	// pipeline at startup.
	ProcessExisting bool

	// PluginDirs are the plugin search directories.
	PluginDirs []string

	// LogLevel is the console verbosity: debug, info, warning, or quiet.
	LogLevel string

	// LogFile, when set, duplicates all messages to a rotated file.
	LogFile string
}

// CoreOptions declares the core configuration schema. It travels the same
// binder machinery as plugin options, under the reserved core namespace.
func CoreOptions() []processor.Option {
	return []processor.Option{
		{Name: "root", Type: processor.OptionString, Default: "",
			Description: "directory tree to watch (required)"},
		{Name: "workers", Type: processor.OptionInt, Default: DefaultWorkers,
			Description: "processing pool size", Minimum: limitOf(1), Maximum: limitOf(128)},
		{Name: "stable-seconds", Type: processor.OptionFloat, Default: DefaultStableSeconds,
			Description: "seconds a file must be unchanged before dispatch", Minimum: limitOf(0)},
		{Name: "new-delay", Type: processor.OptionFloat, Default: DefaultNewDelaySeconds,
			Description: "seconds to wait before first sampling a new file", Minimum: limitOf(0)},
		{Name: "cooldown", Type: processor.OptionFloat, Default: DefaultCooldownSeconds,
			Description: "seconds to suppress re-dispatch after processing", Minimum: limitOf(0)},
		{Name: "compress-timeout", Type: processor.OptionFloat, Default: DefaultCompressTimeout,
			Description: "per-step timeout in seconds, 0 disables", Minimum: limitOf(0)},
		{Name: "process-existing", Type: processor.OptionBool, Default: false,
			Description: "also process files already present at startup"},
		{Name: "plugin-dirs", Type: processor.OptionString, Default: "",
			Description: "comma-separated plugin directories"},
		{Name: "log-level", Type: processor.OptionString, Default: DefaultLogLevel,
			Description: "console verbosity", Enum: []any{"debug", "info", "warning", "quiet"}},
		{Name: "log-file", Type: processor.OptionString, Default: "",
			Description: "also log to this file (rotated)"},
	}
}

func limitOf(v float64) *float64 { return &v }

// SettingsFrom builds Settings from a resolved core-namespace value map.
func SettingsFrom(values map[string]any) Settings {
	return Settings{
		Root:            stringValue(values, "root", ""),
		Workers:         intValue(values, "workers", DefaultWorkers),
		StableSeconds:   floatValue(values, "stable-seconds", DefaultStableSeconds),
		NewDelaySeconds: floatValue(values, "new-delay", DefaultNewDelaySeconds),
		CooldownSeconds: floatValue(values, "cooldown", DefaultCooldownSeconds),
		CompressTimeout: floatValue(values, "compress-timeout", DefaultCompressTimeout),
		ProcessExisting: boolValue(values, "process-existing", false),
		PluginDirs:      SplitDirs(stringValue(values, "plugin-dirs", "")),
		LogLevel:        stringValue(values, "log-level", DefaultLogLevel),
		LogFile:         stringValue(values, "log-file", ""),
	}
}

// SplitDirs splits a comma-separated directory list, trimming whitespace
// and dropping empty entries.
func SplitDirs(raw string) []string {
	var dirs []string
	for _, part := range strings.Split(raw, ",") {
		if dir := strings.TrimSpace(part); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// StabilityWindow returns the stability window as a duration.
func (s Settings) StabilityWindow() time.Duration { return seconds(s.StableSeconds) }

// NewDelay returns the new-file delay as a duration.
func (s Settings) NewDelay() time.Duration { return seconds(s.NewDelaySeconds) }

// CooldownWindow returns the cooldown as a duration.
func (s Settings) CooldownWindow() time.Duration { return seconds(s.CooldownSeconds) }

// StepTimeout returns the per-step timeout as a duration. Zero disables.
func (s Settings) StepTimeout() time.Duration { return seconds(s.CompressTimeout) }

// QueueSize returns the dispatch queue capacity for the configured worker
// count.
func (s Settings) QueueSize() int {
	w := s.Workers
	if w < 1 {
		w = 1
	}
	return w * QueuePerWorker
}

func seconds(f float64) time.Duration {
	if f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// validateRoot resolves and checks the watch root.
func validateRoot(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: no root given (use --root or IMGC_ROOT)", ErrRootInvalid)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRootInvalid, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRootInvalid, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrRootInvalid, abs)
	}
	return abs, nil
}

func stringValue(values map[string]any, name, fallback string) string {
	if v, ok := values[name].(string); ok {
		return v
	}
	return fallback
}

func intValue(values map[string]any, name string, fallback int) int {
	switch v := values[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func floatValue(values map[string]any, name string, fallback float64) float64 {
	switch v := values[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

func boolValue(values map[string]any, name string, fallback bool) bool {
	if v, ok := values[name].(bool); ok {
		return v
	}
	return fallback
}
