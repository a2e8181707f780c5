package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"oden/internal/attachment"
	"oden/internal/bus"
	"oden/internal/domain"
	"oden/internal/render"
	"oden/internal/vault"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var baseTime = time.Date(2026, 2, 6, 14, 30, 5, 0, time.UTC)

type fakeResponses struct {
	bodies  map[string]string
	lookups int
}

func (f *fakeResponses) Lookup(_ context.Context, kw string) (string, bool, error) {
	f.lookups++
	b, ok := f.bodies[kw]
	return b, ok, nil
}

type sentMessage struct {
	groupID string
	text    string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) SendGroupMessage(_ context.Context, groupID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{groupID, text})
	return nil
}

func (f *fakeSender) SendDirectMessage(_ context.Context, recipient, text string) error {
	return f.SendGroupMessage(context.Background(), recipient, text)
}

// brokenAppendWriter fails every append.
type brokenAppendWriter struct {
	*vault.Vault
}

func (brokenAppendWriter) Append(string, string) error {
	return errors.New("disk full")
}

type stubRenderer struct {
	report func(render.ReportContext) (string, error)
}

func (s stubRenderer) RenderReport(c render.ReportContext) (string, error) { return s.report(c) }
func (s stubRenderer) RenderAppend(render.AppendContext) (string, error)   { return "", nil }

func testSettings() Settings {
	s := DefaultSettings()
	s.Location = time.UTC
	return s
}

type harness struct {
	root      string
	orch      *Orchestrator
	sender    *fakeSender
	responses *fakeResponses
	events    *bus.EventBus
}

type harnessOption func(*Config)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	root := t.TempDir()
	logger := testLogger()

	renderer, err := render.New("")
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	h := &harness{
		root:      root,
		sender:    &fakeSender{},
		responses: &fakeResponses{bodies: map[string]string{"help": "Available: #help"}},
		events:    bus.NewEventBus(logger),
	}
	cfg := Config{
		Settings:   testSettings(),
		Writer:     vault.New(root, logger),
		Repository: vault.NewRepository(time.UTC, logger),
		Attachments: attachment.NewSaver(attachment.SaverConfig{
			Location: time.UTC,
			Logger:   logger,
		}),
		Renderer: renderer,
		Dispatcher: NewDispatcher(DispatcherConfig{
			Responses: h.responses,
			Sender:    h.sender,
			Events:    h.events,
			Logger:    logger,
		}),
		Events: h.events,
		Logger: logger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.orch = New(cfg)
	return h
}

func (h *harness) process(t *testing.T, ev domain.MessageEvent) Outcome {
	t.Helper()
	out, err := h.orch.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return out
}

func (h *harness) documents(t *testing.T, group string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(h.root, group))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	return names
}

// files lists every regular file under the vault root, relative to it.
func (h *harness) files(t *testing.T) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(h.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(h.root, path)
		out = append(out, rel)
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir: %v", err)
	}
	return out
}

type failingCreateWriter struct{ *vault.Vault }

func (failingCreateWriter) Create(dir, base, content string) (string, error) {
	return "", errors.New("disk full")
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(data)
}

func event(at time.Time, text string) domain.MessageEvent {
	return domain.MessageEvent{
		SourceName:   "John Doe",
		SourceNumber: "+123",
		Timestamp:    at.UnixMilli(),
		GroupID:      "grp-id",
		GroupTitle:   "Test Group",
		Text:         text,
	}
}
