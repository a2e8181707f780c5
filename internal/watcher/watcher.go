// Package watcher keeps a connection to signal-cli alive and feeds received
// messages, one at a time and in order, to the pipeline.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"oden/internal/bus"
	"oden/internal/domain"
	"oden/internal/pipeline"
	"oden/internal/signal"
)

// Conn is one live daemon connection. *signal.Client implements it.
type Conn interface {
	domain.MessageSender
	domain.AttachmentFetcher
	Run(ctx context.Context) error
	Close() error
	ListGroups(ctx context.Context) ([]signal.Group, error)
	UpdateProfile(ctx context.Context, name string) error
}

// Dialer opens a connection that publishes received events to events.
type Dialer func(ctx context.Context, events domain.EventQueue) (Conn, error)

// SignalDialer dials signal-cli at addr.
func SignalDialer(addr, account string, callTimeout time.Duration, logger *slog.Logger) Dialer {
	return func(ctx context.Context, events domain.EventQueue) (Conn, error) {
		return signal.Dial(ctx, addr, signal.ClientConfig{
			Account:     account,
			CallTimeout: callTimeout,
			Events:      events,
			Logger:      logger,
		})
	}
}

// Processor handles one event.
type Processor interface {
	Process(ctx context.Context, ev domain.MessageEvent) (pipeline.Outcome, error)
}

// Config configures a Watcher.
type Config struct {
	Dial         Dialer
	Processor    Processor
	Queue        domain.EventQueue
	Relay        *Relay
	Startup      Startup
	ReconnectMax time.Duration
	Events       *bus.EventBus
	Logger       *slog.Logger
}

// Watcher runs the connection loop and the single consumer.
type Watcher struct {
	dial         Dialer
	processor    Processor
	queue        domain.EventQueue
	relay        *Relay
	startup      Startup
	reconnectMax time.Duration
	baseDelay    time.Duration
	events       *bus.EventBus
	logger       *slog.Logger
}

func New(cfg Config) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Relay == nil {
		cfg.Relay = &Relay{}
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = time.Minute
	}
	return &Watcher{
		dial:         cfg.Dial,
		processor:    cfg.Processor,
		queue:        cfg.Queue,
		relay:        cfg.Relay,
		startup:      cfg.Startup,
		reconnectMax: cfg.ReconnectMax,
		baseDelay:    defaultBaseDelay,
		events:       cfg.Events,
		logger:       cfg.Logger,
	}
}

// Run blocks until ctx is cancelled. Events still queued when the
// connection loop stops are processed before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer w.queue.Close()
		return w.connectLoop(gctx)
	})
	g.Go(func() error {
		w.consume(gctx)
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Watcher) connectLoop(ctx context.Context) error {
	attempt := 0
	first := true
	for {
		conn, err := w.dial(ctx, w.queue)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			wait := backoff(attempt, w.baseDelay, w.reconnectMax)
			w.logger.Warn("cannot reach signal-cli, retrying", "attempt", attempt, "backoff", wait, "error", err)
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}

		attempt = 0
		w.logger.Info("connected to signal-cli")
		w.relay.set(conn)
		w.emit(bus.EventConnected, nil)

		runErr := make(chan error, 1)
		go func() { runErr <- conn.Run(ctx) }()
		w.runStartup(ctx, conn, first)
		first = false

		err = <-runErr
		w.relay.clear(conn)
		conn.Close()
		w.emit(bus.EventDisconnected, map[string]any{"error": fmt.Sprint(err)})

		if ctx.Err() != nil {
			w.logger.Info("connection closed")
			return nil
		}
		attempt++
		wait := backoff(attempt, w.baseDelay, w.reconnectMax)
		w.logger.Warn("connection to signal-cli lost, reconnecting", "backoff", wait, "error", err)
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

// consume processes events strictly in arrival order. On shutdown it drains
// what is already queued.
func (w *Watcher) consume(ctx context.Context) {
	events := w.queue.Subscribe()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case <-ctx.Done():
			for ev := range events {
				w.handle(context.WithoutCancel(ctx), ev)
			}
			return
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev domain.MessageEvent) {
	log := w.logger.With(
		"group", ev.GroupName(),
		"sender", ev.Sender().Number,
		"timestamp", ev.Timestamp,
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("event handler panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	out, err := w.processor.Process(ctx, ev)
	if err != nil {
		if pipeline.IsTemplateError(err) {
			log.Error("template error, check templates.dir", "error", err)
			return
		}
		log.Error("event processing failed", "error", err)
		return
	}
	log.Debug("event processed", "action", out.Action, "reason", out.Reason, "path", out.Path)
}

func (w *Watcher) emit(eventType string, payload map[string]any) {
	if w.events == nil {
		return
	}
	w.events.Emit(bus.Event{Type: eventType, Source: "watcher", Payload: payload})
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
