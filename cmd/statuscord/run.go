package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"tools.zach/dev/statuscord/internal/activity"
	"tools.zach/dev/statuscord/internal/config"
	"tools.zach/dev/statuscord/internal/connection"
	"tools.zach/dev/statuscord/internal/daemon"
	"tools.zach/dev/statuscord/internal/discord"
	"tools.zach/dev/statuscord/internal/logger"
	"tools.zach/dev/statuscord/internal/metrics"
	"tools.zach/dev/statuscord/internal/paths"
	"tools.zach/dev/statuscord/internal/rulepack"
	"tools.zach/dev/statuscord/internal/update"
	"tools.zach/dev/statuscord/internal/window"
)

// runDaemon starts the presence loop and blocks until a shutdown signal.
// console receives log output while the config is being read and, when
// [log] console is enabled, afterwards as well.
func runDaemon(ctx context.Context, dataDir string, console io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dp := paths.DataDir{Root: dataDir}
	if err := os.MkdirAll(dp.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if alive, pid := checkStalePID(dp); alive {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	cfg, err := config.Load(dp.Root, consoleLogger(console, slog.LevelInfo))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logOpts := logger.Options{
		Path:      dp.Log(),
		Level:     logger.ParseLevel(cfg.Log.Level),
		MaxSizeMB: cfg.Log.MaxSizeMB,
	}
	if cfg.Log.Console {
		logOpts.Console = console
	}
	log, logCloser, err := logger.NewLogger(logOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	ver := resolveVersion()
	log.Info("statuscord starting", "version", ver, "data_dir", dp.Root)

	token := pidToken()
	pidFile, err := writePID(dp, token)
	if err != nil {
		return err
	}
	defer removePID(dp, token, pidFile)

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	if cfg.Update.Check {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("update check panic", "error", r)
				}
			}()
			if _, err := update.Check(ctx, update.ManifestURL, ver, log); err != nil {
				log.Debug("version check failed", "error", err)
			}
		}()
	}

	src, err := window.New(cfg.Behavior.WindowSource)
	if err != nil {
		return err
	}
	log.Info("window source selected", "source", src.Name())

	pack := loadRulePack(ctx, dp.Root, cfg, log)

	var reloads <-chan struct{}
	watcher, err := config.NewWatcher(dp.Root, log)
	if err != nil {
		log.Warn("config watcher unavailable, rules will not hot reload", "error", err)
	} else {
		defer watcher.Close()
		if watcher.Polling() {
			log.Info("using polling mode for config changes")
		}
		reloads = watcher.Events()
	}

	app, err := daemon.New(cfg, daemon.Options{
		DataDir:   dp.Root,
		Logger:    log,
		Window:    src,
		Metrics:   metrics.Sampler{},
		Dial:      discordDialer(log),
		PackRules: pack,
		Reloads:   reloads,
		Hostname:  metrics.Hostname(),
	})
	if err != nil {
		return fmt.Errorf("%w (set identities.apps in %s)", err, dp.Config())
	}

	err = app.Run(ctx)
	log.Info("statuscord stopped")
	return err
}

// discordDialer builds a fresh IPC client for each connection attempt.
func discordDialer(log *slog.Logger) connection.Dialer {
	return func(appID string) connection.Transport {
		return discord.NewClient(appID, discord.WithLogger(log))
	}
}

// loadRulePack fetches the configured rule pack. Failures leave the
// built-in table in charge.
func loadRulePack(ctx context.Context, dataDir string, cfg *config.Config, log *slog.Logger) []activity.Rule {
	src := rulepack.Source{
		Kind:    cfg.RulePack.Source,
		URL:     cfg.RulePack.URL,
		File:    cfg.RulePack.File,
		Timeout: time.Duration(cfg.RulePack.TimeoutSeconds) * time.Second,
	}
	rules, err := rulepack.NewLoader(dataDir, log).Load(ctx, src)
	if err != nil {
		if len(rules) == 0 {
			log.Warn("rule pack unavailable, using built-in rules only", "source", src.Kind, "error", err)
		} else {
			log.Warn("rule pack source failed, using cached pack", "source", src.Kind, "rules", len(rules))
		}
	}
	return rules
}
