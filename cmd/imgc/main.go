// Package main is the entry point for the imgc directory watcher.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dshills/imgc/internal/app"
	"github.com/dshills/imgc/internal/builtin/image"
	"github.com/dshills/imgc/internal/config"
	"github.com/dshills/imgc/internal/plugin"
	"github.com/dshills/imgc/internal/plugin/lua"
	"github.com/dshills/imgc/internal/processor"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := app.NewLogger(app.DefaultLoggerConfig())

	// Plugin directories must be known before flag registration because
	// every loaded plugin contributes flags of its own. This pass only
	// scans argv; flags proper are parsed below.
	dirs, err := bootPluginDirs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	registry := plugin.NewRegistry()
	registry.Register(image.New())

	host := &lua.Host{Logf: func(level, msg string) {
		plog := log.WithComponent("plugin")
		switch level {
		case "debug":
			plog.Debug("%s", msg)
		case "warn", "warning":
			plog.Warn("%s", msg)
		case "error":
			plog.Error("%s", msg)
		default:
			plog.Info("%s", msg)
		}
	}}
	registry.LoadFrom(plugin.NewLoader(dirs...), host)
	defer registry.Close()

	binder := config.NewBinder(config.DefaultEnvPrefix)
	if err := binder.Register(config.CoreNamespace, app.CoreOptions()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for _, p := range registry.Processors() {
		d := p.Descriptor()
		if len(d.Options) == 0 {
			continue
		}
		if err := binder.Register(d.ConfigNamespace(), d.Options); err != nil {
			var collision *config.CollisionError
			if errors.As(err, &collision) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return 1
			}
			// A bad option declaration excludes its plugin, nothing more.
			registry.Deregister(p, err)
		}
	}

	fl, err := declareFlags(binder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	flag.Usage = usage
	flag.Parse()

	if *fl.showHelp {
		flag.Usage()
		return 0
	}
	if *fl.showVersion {
		fmt.Printf("imgc %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		return 0
	}
	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected argument %q\n", flag.Arg(0))
		return 1
	}

	setFlags := make(map[string]string)
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c", "version", "v", "help", "h":
			return
		case "r":
			// Visited before "root"; an explicit --root overwrites it.
			setFlags["root"] = f.Value.String()
			return
		}
		setFlags[f.Name] = f.Value.String()
	})

	var fileValues map[string]map[string]any
	if *fl.config != "" {
		fileValues, err = config.LoadFile(*fl.config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	resolved := binder.Resolve(setFlags, fileValues)
	settings := app.SettingsFrom(resolved.Namespace(config.CoreNamespace))

	log.SetLevel(app.ParseLogLevel(settings.LogLevel))
	if settings.LogFile != "" {
		if err := log.AttachFile(settings.LogFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot open log file: %v\n", err)
			return 1
		}
		defer log.CloseFile()
	}

	for _, w := range resolved.Warnings() {
		log.Warn("config: %s", w)
	}
	for _, ns := range binder.Namespaces() {
		vals := resolved.Namespace(ns)
		for _, k := range config.SortedKeys(vals) {
			log.Debug("config %s.%s = %v", ns, k, vals[k])
		}
	}

	registry.ConfigureAll(resolved.Namespace)
	for _, f := range registry.Failures() {
		log.Warn("plugin %s (%s): %v", f.Name, f.Path, f.Err)
	}

	log.Info("imgc %s starting", version)

	application, err := app.New(settings, log, registry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.Info("received %s, shutting down", sig)
		cancel()
	}()

	if err := application.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// cliFlags holds the flags that steer the program itself rather than a
// configuration option.
type cliFlags struct {
	config      *string
	showVersion *bool
	showHelp    *bool
}

// declareFlags registers the fixed flags plus one flag per bound option.
// Option flags are declared as strings and coerced during resolution, so
// a malformed value degrades to a warning instead of a parse abort; bool
// options are the exception so they work as bare switches.
func declareFlags(binder *config.Binder) (*cliFlags, error) {
	fl := &cliFlags{}
	fl.config = flag.String("config", "", "Path to a TOML configuration file")
	flag.StringVar(fl.config, "c", "", "Path to a TOML configuration file (shorthand)")
	flag.String("r", "", "Directory tree to watch (shorthand)")
	fl.showVersion = flag.Bool("version", false, "Show version information")
	flag.BoolVar(fl.showVersion, "v", false, "Show version information (shorthand)")
	fl.showHelp = flag.Bool("help", false, "Show help message")
	flag.BoolVar(fl.showHelp, "h", false, "Show help message (shorthand)")

	for _, ns := range binder.Namespaces() {
		for _, opt := range binder.Options(ns) {
			name := binder.FlagName(ns, opt.Name)
			if ns == config.CoreNamespace && name == "cooldown" {
				// Settable through IMGC_COOLDOWN or the config file only.
				continue
			}
			if flag.Lookup(name) != nil {
				return nil, fmt.Errorf("flag --%s is already taken; rename the plugin option", name)
			}
			if opt.Type == processor.OptionBool {
				flag.Bool(name, false, opt.Description)
			} else {
				flag.String(name, "", opt.Description)
			}
		}
	}
	return fl, nil
}

// bootPluginDirs resolves the plugin search path ahead of flag parsing,
// applying the usual precedence by hand: command line, then environment,
// then the config file named on the command line.
func bootPluginDirs(args []string) ([]string, error) {
	if raw, ok := scanFlag(args, "plugin-dirs"); ok {
		return app.SplitDirs(raw), nil
	}
	if raw, ok := os.LookupEnv("IMGC_PLUGIN_DIRS"); ok {
		return app.SplitDirs(raw), nil
	}

	path, ok := scanFlag(args, "config")
	if !ok {
		path, ok = scanFlag(args, "c")
	}
	if !ok || path == "" {
		return nil, nil
	}
	tables, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	for key, value := range tables[config.CoreNamespace] {
		if config.CanonicalKey(key) != "plugin-dirs" {
			continue
		}
		if s, ok := value.(string); ok {
			return app.SplitDirs(s), nil
		}
	}
	return nil, nil
}

// scanFlag finds a flag's raw value in argv without the flag package:
// "--name value", "--name=value", and the single-dash forms. The last
// occurrence wins, matching flag.Parse.
func scanFlag(args []string, name string) (string, bool) {
	var val string
	var found bool
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			continue
		}
		body := strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
		if body == name {
			if i+1 < len(args) {
				val, found = args[i+1], true
				i++
			}
			continue
		}
		if strings.HasPrefix(body, name+"=") {
			val, found = body[len(name)+1:], true
		}
	}
	return val, found
}

func usage() {
	fmt.Fprintf(os.Stderr, "imgc - watch a directory and run processors on files once they settle\n\n")
	fmt.Fprintf(os.Stderr, "Usage: imgc --root DIR [options]\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  imgc --root ~/incoming                    Watch a directory\n")
	fmt.Fprintf(os.Stderr, "  imgc -r ./drop --process-existing         Include files already present\n")
	fmt.Fprintf(os.Stderr, "  imgc -r ./drop --image-jpeg-quality 70    Tune a processor option\n")
	fmt.Fprintf(os.Stderr, "  imgc -r ./drop --plugin-dirs ./plugins    Load Lua plugins from a directory\n")
}
