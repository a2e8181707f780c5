package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"oden/internal/bus"
	"oden/internal/domain"
	"oden/internal/pipeline"
	"oden/internal/signal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeConn struct {
	events domain.EventQueue
	script []domain.MessageEvent
	groups []signal.Group
	// dropAfterScript makes Run return as if the daemon hung up.
	dropAfterScript bool

	mu       sync.Mutex
	direct   []string
	group    []string
	profiles []string

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn(script ...domain.MessageEvent) *fakeConn {
	return &fakeConn{script: script, closed: make(chan struct{})}
}

func (c *fakeConn) Run(ctx context.Context) error {
	for _, ev := range c.script {
		c.events.Publish(ev)
	}
	if c.dropAfterScript {
		return signal.ErrClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return signal.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) SendGroupMessage(_ context.Context, groupID, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.group = append(c.group, groupID)
	return nil
}

func (c *fakeConn) SendDirectMessage(_ context.Context, recipient, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.direct = append(c.direct, recipient)
	return nil
}

func (c *fakeConn) FetchAttachment(context.Context, string, string) (string, error) {
	return "", errors.New("not stored")
}

func (c *fakeConn) ListGroups(context.Context) ([]signal.Group, error) {
	return c.groups, nil
}

func (c *fakeConn) UpdateProfile(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles = append(c.profiles, name)
	return nil
}

type recordingProcessor struct {
	mu     sync.Mutex
	seen   []int64
	notify chan struct{}
	fn     func(domain.MessageEvent) (pipeline.Outcome, error)
}

func newRecorder() *recordingProcessor {
	return &recordingProcessor{notify: make(chan struct{}, 64)}
}

func (p *recordingProcessor) Process(_ context.Context, ev domain.MessageEvent) (pipeline.Outcome, error) {
	p.mu.Lock()
	p.seen = append(p.seen, ev.Timestamp)
	p.mu.Unlock()
	defer func() { p.notify <- struct{}{} }()
	if p.fn != nil {
		return p.fn(ev)
	}
	return pipeline.Outcome{Action: pipeline.ActionCreated}, nil
}

func (p *recordingProcessor) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-p.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("processed %d of %d events", i, n)
		}
	}
}

func ev(ts int64) domain.MessageEvent {
	return domain.MessageEvent{Timestamp: ts, GroupID: "g", GroupTitle: "G", Text: "x"}
}

func dialerFor(conns ...*fakeConn) (Dialer, *atomic.Int32) {
	var calls atomic.Int32
	return func(_ context.Context, events domain.EventQueue) (Conn, error) {
		i := int(calls.Add(1)) - 1
		if i >= len(conns) {
			return nil, errors.New("connection refused")
		}
		if conns[i] == nil {
			return nil, errors.New("connection refused")
		}
		conns[i].events = events
		return conns[i], nil
	}, &calls
}

func newTestWatcher(dial Dialer, proc Processor, startup Startup) *Watcher {
	w := New(Config{
		Dial:         dial,
		Processor:    proc,
		Queue:        bus.NewQueue(16, testLogger()),
		Startup:      startup,
		ReconnectMax: 20 * time.Millisecond,
		Events:       bus.NewEventBus(testLogger()),
		Logger:       testLogger(),
	})
	w.baseDelay = time.Millisecond
	return w
}

func runWatcher(t *testing.T, w *Watcher) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	}
}

func TestWatcherProcessesInOrder(t *testing.T) {
	conn := newFakeConn(ev(1), ev(2), ev(3), ev(4))
	dial, _ := dialerFor(conn)
	proc := newRecorder()
	w := newTestWatcher(dial, proc, Startup{Mode: StartupOff})

	cancel := runWatcher(t, w)
	proc.wait(t, 4)
	cancel()

	proc.mu.Lock()
	defer proc.mu.Unlock()
	for i, ts := range proc.seen {
		if ts != int64(i+1) {
			t.Fatalf("order = %v", proc.seen)
		}
	}
}

func TestWatcherSurvivesFailingEvents(t *testing.T) {
	conn := newFakeConn(ev(1), ev(2), ev(3))
	dial, _ := dialerFor(conn)
	proc := newRecorder()
	proc.fn = func(e domain.MessageEvent) (pipeline.Outcome, error) {
		switch e.Timestamp {
		case 1:
			panic("boom")
		case 2:
			return pipeline.Outcome{}, errors.New("disk on fire")
		}
		return pipeline.Outcome{Action: pipeline.ActionCreated}, nil
	}
	w := newTestWatcher(dial, proc, Startup{Mode: StartupOff})

	cancel := runWatcher(t, w)
	proc.wait(t, 3)
	cancel()

	if len(proc.seen) != 3 {
		t.Errorf("seen = %v, want all three events", proc.seen)
	}
}

func TestWatcherReconnects(t *testing.T) {
	dropping := newFakeConn(ev(1))
	dropping.dropAfterScript = true
	stable := newFakeConn(ev(2))
	dial, calls := dialerFor(nil, dropping, stable)
	proc := newRecorder()
	w := newTestWatcher(dial, proc, Startup{Mode: StartupOff})

	cancel := runWatcher(t, w)
	proc.wait(t, 2)
	cancel()

	if got := calls.Load(); got != 3 {
		t.Errorf("dials = %d, want 3", got)
	}
	if disc := w.events.Replay(bus.EventDisconnected, time.Time{}); len(disc) < 1 {
		t.Error("disconnect not emitted")
	}
}

func TestWatcherStartupTasks(t *testing.T) {
	first := newFakeConn()
	first.dropAfterScript = true
	first.groups = []signal.Group{
		{ID: "a", Name: "Ops", IsMember: true},
		{ID: "b", Name: "Muted", IsMember: true},
		{ID: "c", Name: "Field", IsMember: true},
		{ID: "d", Name: "Left", IsMember: false},
		{ID: "e", Name: "Spam", IsMember: true, IsBlocked: true},
	}
	second := newFakeConn(ev(9))
	second.groups = first.groups
	dial, _ := dialerFor(first, second)
	proc := newRecorder()

	w := newTestWatcher(dial, proc, Startup{
		Account:     "+46700000000",
		DisplayName: "Oden",
		Mode:        StartupAll,
		AllowsGroup: func(title string) bool { return title != "Muted" },
	})

	cancel := runWatcher(t, w)
	proc.wait(t, 1)
	cancel()

	first.mu.Lock()
	if len(first.group) != 2 || first.group[0] != "a" || first.group[1] != "c" {
		t.Errorf("startup notice groups = %v, want [a c]", first.group)
	}
	if len(first.profiles) != 1 || first.profiles[0] != "Oden" {
		t.Errorf("profile updates = %v", first.profiles)
	}
	first.mu.Unlock()

	second.mu.Lock()
	defer second.mu.Unlock()
	if len(second.group) != 0 {
		t.Errorf("startup notice repeated after reconnect: %v", second.group)
	}
	if len(second.profiles) != 1 {
		t.Errorf("profile not refreshed after reconnect")
	}
}

func TestWatcherStartupSelf(t *testing.T) {
	conn := newFakeConn(ev(1))
	dial, _ := dialerFor(conn)
	proc := newRecorder()
	w := newTestWatcher(dial, proc, Startup{Account: "+46700000000", Mode: StartupSelf})

	cancel := runWatcher(t, w)
	proc.wait(t, 1)
	cancel()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.direct) != 1 || conn.direct[0] != "+46700000000" {
		t.Errorf("direct sends = %v", conn.direct)
	}
}

func TestRelayWithoutConnection(t *testing.T) {
	var r Relay
	if err := r.SendGroupMessage(context.Background(), "g", "x"); !errors.Is(err, signal.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	conn := newFakeConn()
	r.set(conn)
	if err := r.SendDirectMessage(context.Background(), "+1", "x"); err != nil {
		t.Errorf("send via relay: %v", err)
	}
	r.clear(newFakeConn())
	if _, err := r.current(); err != nil {
		t.Error("clearing a different connection must not detach the current one")
	}
	r.clear(conn)
	if _, err := r.FetchAttachment(context.Background(), "id", ""); !errors.Is(err, signal.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestBackoffBounds(t *testing.T) {
	base, limit := 100*time.Millisecond, time.Second
	for n := 1; n <= 10; n++ {
		d := backoff(n, base, limit)
		if d < base || d > limit+limit/2 {
			t.Errorf("backoff(%d) = %s out of bounds", n, d)
		}
	}
	if d := backoff(3, base, limit); d < 400*time.Millisecond {
		t.Errorf("backoff(3) = %s, want at least 400ms", d)
	}
}

func TestStartupNotice(t *testing.T) {
	s := Startup{
		Version:  "1.2.3",
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	if got, want := s.notice(), "Oden 1.2.3 started\n2026-01-02 03:04:05"; got != want {
		t.Errorf("notice = %q, want %q", got, want)
	}
}
