package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vpittamp/hyprdist/internal/config"
	"github.com/vpittamp/hyprdist/internal/control"
	"github.com/vpittamp/hyprdist/internal/engine"
	"github.com/vpittamp/hyprdist/internal/ipc"
	"github.com/vpittamp/hyprdist/internal/metrics"
	"github.com/vpittamp/hyprdist/internal/persist"
	"github.com/vpittamp/hyprdist/internal/util"
)

func main() {
	home, _ := os.UserHomeDir()
	defaultConfig := filepath.Join(home, ".config", "hyprdist", "config.yaml")

	cfgPath := flag.String("config", defaultConfig, "path to YAML config")
	logLevel := flag.String("log-level", "", "log level (trace|debug|info|warn|error), overrides config")
	commandStrategy := flag.String("command", string(ipc.CommandStrategySocket), "command strategy (socket|hyprctl)")
	flag.Parse()

	selectedStrategy := ipc.CommandStrategy(strings.ToLower(*commandStrategy))
	switch selectedStrategy {
	case ipc.CommandStrategySocket, ipc.CommandStrategyHyprctl:
	default:
		exitErr(fmt.Errorf("unsupported command strategy %q", *commandStrategy))
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		exitErr(fmt.Errorf("load config: %w", err))
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger := util.NewLogger(util.ParseLogLevel(level))

	cfgFullPath, err := filepath.Abs(*cfgPath)
	if err != nil {
		exitErr(fmt.Errorf("resolve config path: %w", err))
	}
	cfgFullPath = filepath.Clean(cfgFullPath)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		exitErr(fmt.Errorf("watch config: %w", err))
	}
	defer watcher.Close()
	cfgDir := filepath.Dir(cfgFullPath)
	if err := watcher.Add(cfgDir); err != nil {
		logger.Warnf("unable to watch config dir: %v", err)
	} else if err := watcher.Add(cfgFullPath); err != nil {
		logger.Debugf("unable to watch config file directly: %v", err)
	}
	reloadRequests := make(chan string, 1)
	go watchConfig(logger, watcher, cfgFullPath, reloadRequests)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hypr, strategy, err := ipc.NewEngineClient(logger, selectedStrategy)
	if err != nil {
		exitErr(fmt.Errorf("configure command strategy: %w", err))
	}
	logger.Infof("using %s command strategy", strategy)

	store := persist.NewStore(cfg.StateFile, cfg.AssignmentsFile, logger)
	collector := metrics.NewCollector()
	ctrl := engine.New(hypr, logger, store, collector, cfg)
	ctrl.RestoreState()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// reload can arrive from the main loop, SIGHUP, or a control client,
	// so the shared config pointer is guarded.
	var cfgMu sync.Mutex
	currentConfig := func() *config.Config {
		cfgMu.Lock()
		defer cfgMu.Unlock()
		return cfg
	}
	reload := func(reason string) error {
		logger.Infof("%s, reloading config", reason)
		next, err := config.Load(*cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfgMu.Lock()
		cfg = next
		cfgMu.Unlock()
		ctrl.ReloadConfig(next)
		ctrl.RequestReassign("config reloaded")
		return nil
	}

	ctrlSrv, err := control.NewServer(ctrl, logger, reload, currentConfig)
	if err != nil {
		exitErr(fmt.Errorf("start control server: %w", err))
	}

	errs := make(chan error, 2)
	go func() {
		errs <- ctrl.Run(ctx)
	}()
	go func() {
		errs <- ctrlSrv.Serve(ctx)
	}()

	for {
		select {
		case err := <-errs:
			if err != nil && err != context.Canceled {
				logger.Errorf("controller exited: %v", err)
				os.Exit(1)
			}
			logger.Infof("controller stopped")
			return
		case reason := <-reloadRequests:
			if err := reload(reason); err != nil {
				logger.Errorf("reload failed: %v", err)
			}
		case sig := <-sigs:
			switch sig {
			case syscall.SIGHUP:
				if err := reload("received SIGHUP"); err != nil {
					logger.Errorf("reload failed: %v", err)
				}
			case os.Interrupt, syscall.SIGTERM:
				logger.Infof("received %s, shutting down", sig)
				cancel()
			}
		}
	}
}

func watchConfig(logger *util.Logger, watcher *fsnotify.Watcher, target string, reloadRequests chan<- string) {
	const debounceWindow = 250 * time.Millisecond
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					<-timerCh
				}
				timer.Reset(debounceWindow)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			select {
			case reloadRequests <- "config file updated":
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("config watcher error: %v", err)
		}
	}
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
