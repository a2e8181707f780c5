package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oden/internal/attachment"
	"oden/internal/bus"
	"oden/internal/metrics"
	"oden/internal/pipeline"
	"oden/internal/render"
	"oden/internal/security"
	"oden/internal/store"
	"oden/internal/vault"
	"oden/internal/watcher"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const queueSize = 1000

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to signal-cli and file incoming messages",
		Long:  "Connects to the signal-cli JSON-RPC daemon and writes group messages to the vault. Press Ctrl+C to stop.",
		RunE:  runWatcher,
	}
}

func runWatcher(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, closer, err := newLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closer.Close()
	logger = log

	settings, err := cfg.Pipeline(logger)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.General.Vault, 0o755); err != nil {
		return fmt.Errorf("create vault: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store.DBPath, logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	renderer, err := render.New(cfg.Templates.Dir)
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	events := bus.NewEventBus(logger)
	reg := metrics.NewRegistry()
	metrics.NewPipeline(reg).Subscribe(events)

	guard := security.NewGuard(st, logger)
	relay := &watcher.Relay{}
	v := vault.New(cfg.General.Vault, logger)

	saver := attachment.NewSaver(attachment.SaverConfig{
		Fetcher:      relay,
		Cleaner:      guard,
		Location:     settings.Location,
		FetchTimeout: cfg.Signal.RPCTimeout(),
		Logger:       logger,
	})
	dispatcher := pipeline.NewDispatcher(pipeline.DispatcherConfig{
		Responses: st,
		Sender:    relay,
		Guard:     guard,
		Events:    events,
		Logger:    logger,
	})

	orch := pipeline.New(pipeline.Config{
		Settings:    settings,
		Writer:      v,
		Repository:  vault.NewRepository(settings.Location, logger),
		Attachments: saver,
		Renderer:    renderer,
		Dispatcher:  dispatcher,
		Events:      events,
		Logger:      logger,
	})

	startup := watcher.Startup{
		Account:     cfg.Signal.Number,
		DisplayName: cfg.Signal.DisplayName,
		Mode:        watcher.StartupMode(cfg.Signal.StartupMessage),
		Version:     version,
		Location:    settings.Location,
		AllowsGroup: settings.AllowsGroup,
	}
	w := watcher.New(watcher.Config{
		Dial:         watcher.SignalDialer(cfg.Signal.Addr(), cfg.Signal.Number, cfg.Signal.RPCTimeout(), logger),
		Processor:    orch,
		Queue:        bus.NewQueue(queueSize, logger),
		Relay:        relay,
		Startup:      startup,
		ReconnectMax: cfg.Signal.ReconnectMax(),
		Events:       events,
		Logger:       logger,
	})

	logger.Info("oden starting",
		"version", version,
		"vault", cfg.General.Vault,
		"signal", cfg.Signal.Addr(),
		"account", cfg.Signal.Number,
	)

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Listen, cfg.Metrics.Endpoint, reg, logger)
		})
	}

	err = g.Wait()
	logger.Info("shutdown complete", sessionSummary(events, started)...)
	return err
}

// sessionSummary counts the recorded pipeline outcomes since started as
// slog attributes. The bus history is bounded, so long sessions report only
// the most recent events.
func sessionSummary(events *bus.EventBus, started time.Time) []any {
	return []any{
		"uptime", time.Since(started).Round(time.Second),
		"created", len(events.Replay(bus.EventDocumentCreated, started)),
		"appended", len(events.Replay(bus.EventDocumentAppended, started)),
		"failed", len(events.Replay(bus.EventFailed, started)),
	}
}
