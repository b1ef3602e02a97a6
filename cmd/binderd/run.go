package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"binderd/internal/config"
	"binderd/internal/daemon"
	"binderd/internal/engine"
	"binderd/internal/focus"
	"binderd/internal/ipc"
	"binderd/internal/keyboard"
	"binderd/internal/logging"
	"binderd/internal/metrics"
	"binderd/internal/notify"
	"binderd/internal/store"
)

const (
	// eventLogKeep is the number of engine events kept in the store.
	eventLogKeep = 10000

	pruneInterval   = time.Hour
	shutdownTimeout = 5 * time.Second
	crashReportAge  = 30 * 24 * time.Hour
)

type runOptions struct {
	configPath string
	logLevel   string
	logOutput  string
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var opts runOptions
	fs.StringVar(&opts.configPath, "config", "", "configuration file (default "+config.ConfigPath()+")")
	fs.StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	fs.StringVar(&opts.logOutput, "log-output", "", "override the configured log output (stdout, stderr, file, both)")
	fs.Parse(args)

	if err := run(opts); err != nil {
		fatalf("%v", err)
	}
}

// newLogger builds the process logger from the logging section.
func newLogger(c config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = c.Output
	lc.FilePath = config.ExpandPath(c.FilePath)
	lc.MaxSize = int64(c.MaxSizeMB)
	lc.MaxBackups = c.MaxBackups
	lc.MaxAge = c.MaxAgeDays
	// Components are attached with WithComponent.
	lc.Component = ""
	return logging.New(lc)
}

func run(opts runOptions) (err error) {
	loader := config.NewLoader(opts.configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	defer loader.Close()

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logOutput != "" {
		cfg.Logging.Output = opts.logOutput
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)
	log := logger.WithComponent("daemon").Logger

	crash := logging.NewCrashHandler("", Version, "binderd", log)
	defer func() {
		if r := recover(); r != nil {
			crash.HandlePanic(r, map[string]any{"phase": "run"})
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := crash.Cleanup(crashReportAge); err != nil {
		log.Debug("crash report cleanup failed", "error", err)
	}

	log.Info("starting binderd", "version", Version, "config", loader.Path())

	// Profile store
	dbPath := config.ExpandPath(cfg.Storage.Path)
	st, err := store.Open(dbPath,
		store.WithBusyTimeout(cfg.BusyTimeout()),
		store.WithLogger(logger.WithComponent("store").Logger),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if p, created, err := st.EnsureDefault(); err != nil {
		return fmt.Errorf("seed profile: %w", err)
	} else if created {
		log.Info("created default profile", "profile_id", p.ID)
	}
	pruneEvents(st, log)

	// Keyboard, notifications and the engine
	kb := keyboard.New(keyboard.Options{
		Backend:     cfg.Keyboard.Backend,
		Devices:     cfg.Keyboard.Devices,
		XdotoolPath: cfg.Keyboard.XdotoolPath,
		TypeDelay:   cfg.TypeDelay(),
	})

	notifier := notify.New(notify.Options{
		Enabled: cfg.Notify.Enabled,
		Logger:  logger.WithComponent("notify").Logger,
	})
	defer notifier.Close()

	// The controller and the engine refer to each other through the
	// hotkey callbacks; ctl is set before the engine is started.
	var ctl *daemon.Controller
	sinks := engine.MultiSink{st}
	eng := engine.New(engine.Options{
		Keyboard: kb,
		Apps:     focus.New(),
		Sink:     &sinks,
		Logger:   logger.WithComponent("engine").Logger,
		Actions: engine.Actions{
			Toggle:        func() { ctl.Toggle() },
			Open:          func() { ctl.Open() },
			ProfileSwitch: func() { ctl.NextProfile() },
		},
	})
	defer eng.Close()

	m := metrics.New(nil, eng)
	socketPath := config.ExpandPath(cfg.IPC.SocketPath)
	ctl = daemon.New(daemon.Options{
		Store:        st,
		Engine:       eng,
		Notifier:     notifier,
		Metrics:      m,
		Logger:       logger.WithComponent("controller").Logger,
		Version:      Version,
		SocketPath:   socketPath,
		DatabasePath: dbPath,
	})

	// IPC server
	srvCfg := ipc.DefaultServerConfig(socketPath)
	srvCfg.Version = Version
	srvCfg.Logger = logger.WithComponent("ipc").Logger
	server := ipc.NewServer(srvCfg, ipc.NewDaemonHandler(ipc.DaemonHandlerConfig{
		Store:      st,
		Controller: ctl,
		Logger:     srvCfg.Logger,
	}))
	ctl.SetBroadcaster(server)
	sinks = append(sinks, m, server)

	if _, err := ctl.Reload(); err != nil {
		log.Error("active profile not applied, running with defaults", "error", err)
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("start ipc server: %w", err)
	}
	defer server.Stop()

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.ListenAddr, m.Registry(), func() error {
			_, err := st.ActiveProfileID()
			return err
		}, logger.WithComponent("metrics").Logger)
		if err := ms.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			ms.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Keyboard hook
	if ok, reason := kb.Available(); ok {
		if err := kb.Start(ctx); err != nil {
			log.Error("keyboard start failed", "error", err)
		} else {
			defer kb.Stop()
		}
	} else {
		log.Warn("keyboard unavailable, expansion disabled", "reason", reason)
	}
	if err := eng.Start(ctx); err != nil {
		log.Error("engine start failed", "error", err)
	}

	// Configuration hot reload
	current := cfg.Clone()
	loader.OnChange(func(next *config.Config) {
		notifier.SetEnabled(next.Notify.Enabled)
		if restartRequired(current, next) {
			log.Warn("configuration changed, restart binderd to apply storage, ipc, keyboard or logging changes")
		} else {
			log.Info("configuration reloaded")
		}
	})
	if err := loader.Watch(); err != nil {
		log.Warn("configuration watch failed", "error", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	crash.Go("event-prune", func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pruneEvents(st, log)
			}
		}
	})

	log.Info("binderd ready", "socket", server.SocketPath(), "keyboard", eng.Running())
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil

		case <-hup:
			if _, err := ctl.Reload(); err != nil {
				log.Error("reload failed", "error", err)
			}
			if _, err := loader.Reload(); err != nil {
				log.Warn("configuration reload failed", "error", err)
			}

		case err := <-loader.Errors():
			log.Warn("configuration not reloaded", "error", err)
		}
	}
}

func pruneEvents(st *store.Store, log *slog.Logger) {
	n, err := st.PruneEvents(eventLogKeep)
	if err != nil {
		log.Warn("event log prune failed", "error", err)
		return
	}
	if n > 0 {
		log.Debug("event log pruned", "removed", n)
	}
}

// restartRequired reports whether next changes sections that are only read
// at startup.
func restartRequired(cur, next *config.Config) bool {
	return cur.Storage != next.Storage ||
		cur.IPC != next.IPC ||
		cur.Logging != next.Logging ||
		cur.Metrics != next.Metrics ||
		!reflect.DeepEqual(cur.Keyboard, next.Keyboard)
}
