// binderd - keystroke text-expansion and macro daemon
//
//	binderd run             Run the daemon in the foreground
//	binderd init            Write the default configuration and profile store
//	binderd import-legacy   Import a profiles.json file of an earlier release
//	binderd version         Print version information
//
// The daemon is controlled with binderctl over a Unix socket.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"

	"binderd/internal/config"
	"binderd/internal/ipc"
	"binderd/internal/store"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	cmd := "run"
	args := []string{}
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
		args = os.Args[2:]
	}

	switch cmd {
	case "run":
		cmdRun(args)
	case "init":
		cmdInit(args)
	case "import-legacy":
		cmdImportLegacy(args)
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`binderd - Keystroke text expansion and macros

USAGE:
    binderd <command> [options]

COMMANDS:
    run                     Run the daemon in the foreground (default)
    init                    Create the configuration file and profile store
    import-legacy <file>    Import profiles from a profiles.json file
    version                 Print version information
    help                    Show this help message

OPTIONS (run, init, import-legacy):
    -config <path>          Configuration file (TOML, JSON or YAML)

ENVIRONMENT:
    BINDER_DATA_DIR, BINDER_DB_PATH, BINDER_SOCKET_PATH, BINDER_LOG_LEVEL,
    BINDER_LOG_OUTPUT, BINDER_METRICS_ADDR, BINDER_KEYBOARD_BACKEND, BINDER_NOTIFY

Use binderctl to control a running daemon.`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "binderd: "+format+"\n", args...)
	os.Exit(1)
}

func cmdVersion() {
	fmt.Printf("binderd %s\n", Version)
	fmt.Printf("  go:       %s\n", runtime.Version())
	fmt.Printf("  platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file (default "+config.ConfigPath()+")")
	fs.Parse(args)

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, created, err := config.LoadOrCreate(path)
	if err != nil {
		fatalf("load configuration: %v", err)
	}
	if created {
		fmt.Printf("Created configuration: %s\n", path)
	} else {
		fmt.Printf("Configuration exists: %s\n", path)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fatalf("%v", err)
	}

	dbPath := config.ExpandPath(cfg.Storage.Path)
	st, err := store.Open(dbPath, store.WithBusyTimeout(cfg.BusyTimeout()))
	if err != nil {
		fatalf("open store: %v", err)
	}
	defer st.Close()

	p, seeded, err := st.EnsureDefault()
	if err != nil {
		fatalf("seed profile: %v", err)
	}
	fmt.Printf("Profile store: %s\n", dbPath)
	if seeded {
		fmt.Printf("  Created profile %q with %d sample binds\n", p.Name, len(p.Binds))
	} else {
		fmt.Printf("  Active profile: %s (%d binds, %d macros)\n", p.Name, len(p.Binds), len(p.Hotkeys))
	}
	fmt.Println()
	fmt.Println("Start the daemon with: binderd run")
}

func cmdImportLegacy(args []string) {
	fs := flag.NewFlagSet("import-legacy", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: binderd import-legacy [-config path] <profiles.json>")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("load configuration: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fatalf("%v", err)
	}

	st, err := store.Open(config.ExpandPath(cfg.Storage.Path), store.WithBusyTimeout(cfg.BusyTimeout()))
	if err != nil {
		fatalf("open store: %v", err)
	}
	defer st.Close()

	profiles, err := st.ImportLegacyFile(fs.Arg(0))
	if err != nil {
		fatalf("import %s: %v", fs.Arg(0), err)
	}
	for _, p := range profiles {
		fmt.Printf("Imported %s: %d binds, %d macros (id %s)\n", p.Name, len(p.Binds), len(p.Hotkeys), p.ID)
	}

	// A running daemon has to pick up the new active profile.
	client := ipc.NewClient(ipc.ClientConfig{
		SocketPath:    config.ExpandPath(cfg.IPC.SocketPath),
		ClientName:    "binderd",
		ClientVersion: Version,
	})
	if err := client.Connect(); err != nil {
		if !errors.Is(err, ipc.ErrDaemonNotRunning) {
			fmt.Fprintf(os.Stderr, "Warning: could not reach daemon: %v\n", err)
		}
		return
	}
	defer client.Close()
	if _, err := client.Reload(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: daemon reload failed: %v\n", err)
		return
	}
	fmt.Println("Running daemon reloaded.")
}
