package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"copilotd/internal/config"
	"copilotd/internal/device"
	"copilotd/internal/logging"
	"copilotd/internal/metrics"
	"copilotd/internal/notify"
	"copilotd/internal/platform"
	"copilotd/internal/remap"
)

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file")
	devicePath := fs.String("device", "", "keyboard event node, overrides device.path")
	debug := fs.Bool("debug", false, "log at debug level")
	fs.Parse(args)

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return 1
	}
	if *devicePath != "" {
		// Keep the loader's copy as read from disk, so reloads compare like
		// with like.
		cfg = cfg.Clone()
		cfg.Device.Path = *devicePath
	}

	logCfg, err := loggingConfig(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *debug {
		logCfg.Level = logging.LevelDebug
	}
	log, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		return 1
	}
	defer log.Close()
	logging.SetDefault(log)

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		Version:   version,
		Component: "copilotd",
	})
	defer crash.Repanic(map[string]interface{}{"command": "run", "device": cfg.Device.Path})
	reportCrashes(log, crash)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := &daemon{
		cfg:    cfg,
		loader: loader,
		log:    log,
		debug:  *debug,
	}
	if err := d.run(ctx); err != nil {
		log.Error("copilotd stopped", "error", err)
		return 1
	}
	log.Info("copilotd stopped")
	return 0
}

// reportCrashes warns about crash reports left by earlier runs.
func reportCrashes(log *logging.Logger, crash *logging.CrashHandler) int {
	reports, err := crash.CrashReports()
	if err != nil {
		log.Debug("read crash reports", "error", err)
		return 0
	}
	if len(reports) == 0 {
		return 0
	}

	latest := reports[0]
	for _, r := range reports[1:] {
		if r.Timestamp.After(latest.Timestamp) {
			latest = r
		}
	}
	log.Warn("previous runs crashed",
		"reports", len(reports),
		"latest", latest.Timestamp,
		"panic", latest.PanicValue)
	return len(reports)
}

// loggingConfig maps the config file's logging section onto the logger's.
func loggingConfig(c *config.LoggingConfig) (*logging.Config, error) {
	lc := logging.DefaultConfig()

	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}

	lc.Level = level
	lc.Format = format
	lc.Output = c.Output
	if c.FilePath != "" {
		lc.FilePath = c.FilePath
	}
	lc.MaxSize = int64(c.MaxSizeMB)
	lc.MaxBackups = c.MaxBackups
	lc.MaxAge = c.MaxAgeDays
	lc.Compress = c.Compress
	lc.LogKeystrokes = c.LogKeystrokes
	return lc, nil
}

// daemon wires the devices, the dispatch loop and the ambient services for
// one run.
type daemon struct {
	cfg    *config.Config
	loader *config.Loader
	log    *logging.Logger
	debug  bool

	pipeline *metrics.PipelineMetrics
	textfile atomic.Pointer[string]
}

func (d *daemon) run(ctx context.Context) error {
	cfg := d.cfg
	log := d.log

	if err := platform.Apply(platform.Options{
		LockMemory: cfg.Runtime.LockMemory,
		Nice:       cfg.Runtime.Nice,
	}); err != nil {
		log.Warn("runtime tuning failed", "error", err)
	}

	path := cfg.Device.Path
	if path == config.AutoDevice {
		p, err := device.Discover(cfg.Device.VirtualName)
		if err != nil {
			return fmt.Errorf("discover keyboard: %w", err)
		}
		path = p
	}

	// Keys held while the daemon starts, usually Enter, must come up on the
	// real device before it is grabbed.
	if delay := cfg.StartupDelay(); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}

	kb, err := device.OpenKeyboard(path)
	if err != nil {
		return err
	}
	defer kb.Close()
	log.Info("keyboard opened", "path", kb.Path(), "name", kb.Name())

	if cfg.Device.Grab {
		if err := kb.Grab(); err != nil {
			return err
		}
	} else {
		log.Warn("keyboard not grabbed, applications receive every key twice")
	}

	vk, err := device.CloneVirtual(cfg.Device.VirtualName, kb)
	if err != nil {
		if aerr := platform.CheckAccess(platform.UinputPath); aerr != nil {
			return fmt.Errorf("%w (%v)", err, aerr)
		}
		return err
	}
	defer func() {
		if err := vk.Close(); err != nil {
			log.Warn("close virtual keyboard", "error", err)
		}
	}()
	if cfg.Device.ReleaseOnStart {
		if err := vk.ReleaseAll(); err != nil {
			log.Warn("release sweep incomplete", "error", err)
		}
	}
	log.Info("virtual keyboard created", "name", vk.Name())

	d.pipeline = metrics.NewPipelineMetrics(metrics.Default())
	d.textfile.Store(&cfg.Metrics.Textfile)

	var notifier remap.Notifier = notify.Nop{}
	if cfg.Notify.Enabled {
		desktop := notify.NewDesktop(notify.Config{
			AppName: cfg.Notify.AppName,
			Timeout: time.Duration(cfg.Notify.TimeoutMs) * time.Millisecond,
			Logger:  log.WithComponent("notify").Logger,
		})
		defer desktop.Close()
		notifier = desktop
	}

	d.watchConfig(ctx)
	defer d.loader.Close()

	go d.dumpOnSignal(ctx)

	loop := remap.New(kb, vk, remap.Options{
		Window:      cfg.Window(),
		Heartbeat:   cfg.Heartbeat(),
		Logger:      log.WithComponent("remap").Logger,
		Metrics:     d.pipeline,
		Notifier:    notifier,
		OnHeartbeat: d.writeMetrics,
	})
	return loop.Run(ctx)
}

// watchConfig applies hot-reloadable settings and warns about the rest.
func (d *daemon) watchConfig(ctx context.Context) {
	d.loader.OnChange(func(old, next *config.Config) {
		if !d.debug {
			if level, err := logging.ParseLevel(next.Logging.Level); err == nil {
				d.log.SetLevel(level)
			}
		}
		textfile := next.Metrics.Textfile
		d.textfile.Store(&textfile)

		if fields := old.RestartRequired(next); len(fields) > 0 {
			d.log.Warn("config changes take effect after a restart", "fields", fields)
		}
		d.log.Info("config reloaded", "path", d.loader.Path(), "level", logging.LevelString(d.log.Level()))
	})

	if err := d.loader.Watch(); err != nil {
		d.log.Warn("config hot reload disabled", "path", d.loader.Path(), "error", err)
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-d.loader.Errors():
				d.log.Warn("config reload rejected", "error", err)
			}
		}
	}()
}

// writeMetrics runs on the loop goroutine at each heartbeat and at exit.
func (d *daemon) writeMetrics() {
	d.pipeline.UpdateUptime()

	path := *d.textfile.Load()
	if path == "" {
		return
	}
	if err := d.pipeline.Registry().WriteTextfile(path); err != nil {
		d.log.Warn("write metrics textfile", "path", path, "error", err)
	}
}

func (d *daemon) dumpOnSignal(ctx context.Context) {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-usr1:
			var b strings.Builder
			if err := d.pipeline.Registry().WritePrometheus(&b); err != nil {
				d.log.Warn("dump metrics", "error", err)
				continue
			}
			d.log.Info("metrics", "snapshot", d.pipeline.Snapshot(), "prometheus", b.String())
		}
	}
}
