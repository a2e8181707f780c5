package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"oden/internal/attachment"
	"oden/internal/bus"
	"oden/internal/domain"
	"oden/internal/extract"
	"oden/internal/render"
	"oden/internal/vault"
)

// Action is the outcome class of one processed event.
type Action string

const (
	ActionDiscarded Action = "discarded"
	ActionCreated   Action = "created"
	ActionAppended  Action = "appended"
	ActionReplied   Action = "replied"
	ActionBlocked   Action = "blocked"
)

// Discard reasons.
const (
	DiscardEcho           = "echo"
	DiscardNoGroup        = "no_group"
	DiscardGroupFiltered  = "group_filtered"
	DiscardIgnoreMarker   = "ignore_marker"
	DiscardEmpty          = "empty"
	DiscardUnknownCommand = "unknown_command"
)

// Outcome describes what Process did with an event.
type Outcome struct {
	Action   Action
	Reason   string // discard reason, or the append reason
	Path     string // document written, if any
	Fallback bool   // an append was requested but a new document was created
	Saved    int
	Skipped  int
}

// DocumentWriter is the vault surface the orchestrator writes through.
type DocumentWriter interface {
	GroupDir(title string) (string, error)
	Create(dir, base, content string) (string, error)
	Append(path, content string) error
}

// AttachmentSaver stores the attachments of one event under a group directory
// and can take them back when no document ends up embedding them.
type AttachmentSaver interface {
	Save(ctx context.Context, groupDir string, ev domain.MessageEvent) (attachment.Result, error)
	Discard(groupDir string, res attachment.Result) error
}

// Renderer produces document text.
type Renderer interface {
	RenderReport(ctx render.ReportContext) (string, error)
	RenderAppend(ctx render.AppendContext) (string, error)
}

// Config wires an Orchestrator.
type Config struct {
	Settings    Settings
	Writer      DocumentWriter
	Repository  domain.DocumentRepository
	Attachments AttachmentSaver
	Renderer    Renderer
	Dispatcher  *Dispatcher
	Events      *bus.EventBus
	Logger      *slog.Logger
}

// Orchestrator sequences the processing of one event at a time. It is not
// safe for concurrent use; a single consumer owns the vault.
type Orchestrator struct {
	settings    Settings
	writer      DocumentWriter
	engine      *AppendEngine
	attachments AttachmentSaver
	renderer    Renderer
	dispatcher  *Dispatcher
	events      *bus.EventBus
	logger      *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := cfg.Settings.withDefaults()
	return &Orchestrator{
		settings:    s,
		writer:      cfg.Writer,
		engine:      NewAppendEngine(cfg.Repository, s.AppendWindow, s.AppendMarker, cfg.Logger),
		attachments: cfg.Attachments,
		renderer:    cfg.Renderer,
		dispatcher:  cfg.Dispatcher,
		events:      cfg.Events,
		logger:      cfg.Logger,
	}
}

// Process handles one event. Discards are reported in the Outcome, not as
// errors. A panic is recovered and returned as an error.
func (o *Orchestrator) Process(ctx context.Context, ev domain.MessageEvent) (out Outcome, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing event: %v\n%s", r, debug.Stack())
		}
		if err != nil {
			emit(o.events, bus.EventFailed, map[string]any{
				"group":     ev.GroupName(),
				"timestamp": ev.Timestamp,
				"error":     err.Error(),
			})
			return
		}
		o.report(ev, out, time.Since(start))
	}()
	return o.process(ctx, ev)
}

func (o *Orchestrator) process(ctx context.Context, ev domain.MessageEvent) (Outcome, error) {
	if ev.IsOutgoingEcho {
		return o.discard(ev, DiscardEcho), nil
	}
	if !ev.HasGroup() {
		return o.discard(ev, DiscardNoGroup), nil
	}
	if !o.settings.AllowsGroup(ev.GroupName()) {
		return o.discard(ev, DiscardGroupFiltered), nil
	}

	if cmd, ok := ParseCommand(ev.Text, o.settings.CommandPrefix); ok {
		if o.dispatcher == nil {
			return o.discard(ev, DiscardUnknownCommand), nil
		}
		res, err := o.dispatcher.Dispatch(ctx, ev, cmd)
		if err != nil {
			return Outcome{}, err
		}
		switch res {
		case CommandReplied:
			return Outcome{Action: ActionReplied}, nil
		case CommandBlocked:
			return Outcome{Action: ActionBlocked}, nil
		}
		return o.discard(ev, DiscardUnknownCommand), nil
	}

	if m := o.settings.IgnoreMarker; m != "" && strings.HasPrefix(strings.TrimSpace(ev.Text), m) {
		return o.discard(ev, DiscardIgnoreMarker), nil
	}
	if ev.IsEmpty() {
		return o.discard(ev, DiscardEmpty), nil
	}

	decision := o.engine.Classify(ev)
	if decision.Reason == ReasonMarker && strings.TrimSpace(decision.Text) == "" && len(ev.Attachments) == 0 {
		return o.discard(ev, DiscardEmpty), nil
	}

	groupDir, err := o.writer.GroupDir(ev.GroupName())
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve group dir: %w", err)
	}

	decision = o.engine.Resolve(decision, ev, groupDir)
	text := extract.ApplyRegexLinks(decision.Text, o.settings.Patterns)
	lat, lon, _ := extract.ExtractCoordinates(decision.Text)

	if decision.Target != "" {
		// Attachments go next to the document being extended.
		groupDir = filepath.Dir(decision.Target)
	}
	saved, err := o.saveAttachments(ctx, groupDir, ev)
	if err != nil {
		return Outcome{}, err
	}

	// Stored attachments are removed again unless a document embeds them.
	committed := false
	defer func() {
		if !committed {
			o.discardAttachments(ev, groupDir, saved)
		}
	}()

	out, err := o.write(ev, decision, groupDir, text, lat, lon, saved)
	if err != nil {
		return Outcome{}, err
	}
	committed = true
	return out, nil
}

// write appends to the decision's target or creates a new document.
func (o *Orchestrator) write(ev domain.MessageEvent, decision Decision, groupDir, text, lat, lon string, saved attachment.Result) (Outcome, error) {
	if decision.Target != "" {
		out, ok, err := o.appendTo(ev, decision, text, lat, lon, saved)
		if err != nil || ok {
			return out, err
		}
	} else if decision.Wants() {
		o.logger.Info("append requested but no recent document, creating new",
			"group", ev.GroupName(),
			"sender", ev.Sender().Number,
			"reason", decision.Reason,
		)
		emit(o.events, bus.EventAppendFallback, map[string]any{"group": ev.GroupName(), "cause": "no_target"})
	}

	out, err := o.create(ev, groupDir, text, lat, lon, saved)
	if err != nil {
		return Outcome{}, err
	}
	out.Fallback = decision.Wants()
	out.Reason = string(decision.Reason)
	return out, nil
}

// appendTo renders and appends. ok is false when the write failed and the
// caller should create a new document instead.
func (o *Orchestrator) appendTo(ev domain.MessageEvent, d Decision, text, lat, lon string, saved attachment.Result) (Outcome, bool, error) {
	sent := ev.SentAt().In(o.settings.Location)
	content, err := o.renderer.RenderAppend(render.AppendContext{
		TNR:           vault.TimeToken(sent, o.settings.Location),
		Timestamp:     sent.Format(time.RFC3339),
		SenderDisplay: render.SenderDisplay(ev.SourceName, ev.SourceNumber),
		Lat:           lat,
		Lon:           lon,
		Message:       text,
		Attachments:   saved.Embeds(),
	})
	if err != nil {
		return Outcome{}, false, fmt.Errorf("render append: %w", err)
	}

	if err := o.writer.Append(d.Target, content); err != nil {
		o.logger.Warn("append failed, falling back to new document",
			"group", ev.GroupName(),
			"path", d.Target,
			"error", err,
		)
		emit(o.events, bus.EventAppendFallback, map[string]any{"group": ev.GroupName(), "cause": "write_failed", "path": d.Target})
		return Outcome{}, false, nil
	}

	o.logger.Info("appended to document",
		"group", ev.GroupName(),
		"path", d.Target,
		"reason", d.Reason,
	)
	return Outcome{
		Action:  ActionAppended,
		Reason:  string(d.Reason),
		Path:    d.Target,
		Saved:   len(saved.Records),
		Skipped: saved.Skipped,
	}, true, nil
}

func (o *Orchestrator) create(ev domain.MessageEvent, groupDir, text, lat, lon string, saved attachment.Result) (Outcome, error) {
	loc := o.settings.Location
	sent := ev.SentAt().In(loc)

	quote := ""
	if ev.Quote != nil {
		quote = render.FormatQuote(ev.Quote)
	}

	content, err := o.renderer.RenderReport(render.ReportContext{
		FileID:        vault.FileID(sent, loc, ev.SourceName, ev.SourceNumber),
		GroupTitle:    ev.GroupName(),
		GroupID:       ev.GroupID,
		TNR:           vault.TimeToken(sent, loc),
		Timestamp:     sent.Format(time.RFC3339),
		SenderDisplay: render.SenderDisplay(ev.SourceName, ev.SourceNumber),
		SenderName:    ev.SourceName,
		SenderNumber:  ev.SourceNumber,
		Lat:           lat,
		Lon:           lon,
		Quote:         quote,
		Message:       text,
		Attachments:   saved.Embeds(),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("render report: %w", err)
	}

	base := vault.BuildIdentifier(sent, loc, ev.SourceName, ev.SourceNumber, o.settings.FilenameFormat)
	path, err := o.writer.Create(groupDir, base, content)
	if err != nil {
		return Outcome{}, fmt.Errorf("write report: %w", err)
	}

	o.logger.Info("created document", "group", ev.GroupName(), "path", path)
	return Outcome{
		Action:  ActionCreated,
		Path:    path,
		Saved:   len(saved.Records),
		Skipped: saved.Skipped,
	}, nil
}

func (o *Orchestrator) saveAttachments(ctx context.Context, groupDir string, ev domain.MessageEvent) (attachment.Result, error) {
	if len(ev.Attachments) == 0 || o.attachments == nil {
		return attachment.Result{}, nil
	}
	res, err := o.attachments.Save(ctx, groupDir, ev)
	if err != nil {
		return res, fmt.Errorf("save attachments: %w", err)
	}
	for range res.Records {
		emit(o.events, bus.EventAttachmentSaved, map[string]any{"group": ev.GroupName()})
	}
	for range res.Skipped {
		emit(o.events, bus.EventAttachmentSkipped, map[string]any{"group": ev.GroupName()})
	}
	return res, nil
}

func (o *Orchestrator) discardAttachments(ev domain.MessageEvent, groupDir string, saved attachment.Result) {
	if saved.Dir == "" || o.attachments == nil {
		return
	}
	if err := o.attachments.Discard(groupDir, saved); err != nil {
		o.logger.Warn("attachment cleanup failed",
			"group", ev.GroupName(),
			"dir", saved.Dir,
			"error", err,
		)
	}
}

func (o *Orchestrator) discard(ev domain.MessageEvent, reason string) Outcome {
	o.logger.Debug("event discarded", "reason", reason, "group", ev.GroupName(), "timestamp", ev.Timestamp)
	return Outcome{Action: ActionDiscarded, Reason: reason}
}

func (o *Orchestrator) report(ev domain.MessageEvent, out Outcome, took time.Duration) {
	payload := map[string]any{"group": ev.GroupName(), "duration": took}
	switch out.Action {
	case ActionCreated:
		payload["path"] = out.Path
		emit(o.events, bus.EventDocumentCreated, payload)
	case ActionAppended:
		payload["path"] = out.Path
		emit(o.events, bus.EventDocumentAppended, payload)
	case ActionDiscarded:
		emit(o.events, bus.EventDiscarded, map[string]any{"group": ev.GroupName(), "reason": out.Reason})
	}
}

// IsTemplateError reports whether err came from rendering rather than I/O.
func IsTemplateError(err error) bool {
	var te *render.TemplateError
	return errors.As(err, &te)
}
