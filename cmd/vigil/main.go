package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vigil/internal/api"
	"vigil/internal/command"
	"vigil/internal/config"
	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/process"
	"vigil/internal/supervisor"
	"vigil/internal/version"
	"vigil/internal/watcher"
)

const (
	logBufferSize   = 1000
	shutdownTimeout = 10 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	opts, err := parseArgs(args, errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitCodeSuccess
		}
		return exitCodeUsage
	}
	if opts.ShowVersion {
		if version.Version == "" || version.Version == "dev" {
			fmt.Fprintln(out, "vigil dev")
		} else {
			fmt.Fprintf(out, "vigil version %s\n", version.Version)
		}
		return exitCodeSuccess
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return exitCodeConfig
	}
	cfg.ApplyEnv(os.LookupEnv)
	applyFlags(&cfg, opts)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(errOut, err)
		return exitCodeConfig
	}

	level, ok := logging.ParseLevel(cfg.LogLevel)
	if !ok {
		fmt.Fprintf(errOut, "unknown log level %q\n", cfg.LogLevel)
		return exitCodeConfig
	}
	buffer := logging.NewLogBuffer(logBufferSize)
	logger := logging.NewLoggerWithOutput(buffer, level, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	stopSignalWatch := watchShutdownSignals(logger, cancel, signals)
	defer stopSignalWatch()

	registry := &metrics.Registry{}
	bus := event.NewBus[event.Event](ctx, event.BusOptions{Name: "watch_events", Registry: registry})
	processes := process.NewRegistry()

	runner := &command.Runner{
		Argv:      cfg.Command,
		Dir:       cfg.Dir,
		Env:       cfg.Env,
		UsePty:    cfg.Pty,
		Stdout:    out,
		Processes: processes,
		Logger:    logger,
	}
	sup := supervisor.New(cfg.Paths, runner, supervisor.Options{
		QuietWindow:     cfg.QuietWindow(),
		CancelOnRestart: cfg.CancelOnRestart,
		Logger:          logger,
		Registry:        registry,
		Bus:             bus,
	})

	coordinator := newShutdownCoordinator(logger)
	if cfg.APIAddr != "" {
		mux := http.NewServeMux()
		api.RegisterRoutes(mux, api.Options{
			Supervisor: sup,
			Processes:  processes,
			Metrics:    registry,
			Bus:        bus,
			Logger:     logger,
		})
		server := &http.Server{Addr: cfg.APIAddr, Handler: mux}
		go func() {
			logger.Info("api listening", map[string]string{"addr": cfg.APIAddr})
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("api server failed", map[string]string{"error": err.Error()})
			}
		}()
		coordinator.Add("api", server.Shutdown)
	}
	coordinator.Add("tasks", processes.StopAll)
	coordinator.Add("events", func(context.Context) error {
		bus.Close()
		return nil
	})

	logger.Info("supervision starting", map[string]string{
		"paths":   fmt.Sprintf("%d", len(cfg.Paths)),
		"command": cfg.Command[0],
	})
	runErr := sup.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	// Phase failures are logged by the coordinator; they do not change
	// the exit code.
	_ = coordinator.Run(shutdownCtx)

	if runErr == nil || errors.Is(runErr, context.Canceled) {
		return exitCodeSuccess
	}
	fmt.Fprintln(errOut, runErr)

	var setupErr *watcher.WatchSetupError
	var channelErr *watcher.ChannelError
	if errors.As(runErr, &setupErr) || errors.As(runErr, &channelErr) {
		return exitCodeWatch
	}
	return exitCodeRuntime
}

// applyFlags layers command-line flags over the file and environment
// configuration. Only flags that actually appeared override.
func applyFlags(cfg *config.Config, opts options) {
	if len(opts.Paths) > 0 {
		cfg.Paths = opts.Paths
	}
	if len(opts.Command) > 0 {
		cfg.Command = opts.Command
	}
	if opts.isSet("quiet-window") && opts.QuietWindow > 0 {
		cfg.QuietWindowMS = int(opts.QuietWindow / time.Millisecond)
	}
	if opts.isSet("api-addr") {
		cfg.APIAddr = opts.APIAddr
	}
	if opts.isSet("log-level") {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.isSet("pty") {
		cfg.Pty = opts.Pty
	}
	if opts.isSet("cancel-on-restart") {
		cfg.CancelOnRestart = opts.CancelOnRestart
	}
}
