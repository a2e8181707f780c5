package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"oden/internal/bus"
	"oden/internal/domain"
	"oden/internal/security"
)

// Command is a parsed keyword command.
type Command struct {
	Token string // text after the prefix, up to the first whitespace
	Raw   string
}

// ParseCommand returns the command in text when it starts with prefix.
func ParseCommand(text, prefix string) (Command, bool) {
	trimmed := strings.TrimSpace(text)
	rest, ok := strings.CutPrefix(trimmed, prefix)
	if !ok {
		return Command{}, false
	}
	token := rest
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		token = rest[:i]
	}
	return Command{Token: token, Raw: trimmed}, true
}

// CommandGuard decides whether a token may be looked up.
type CommandGuard interface {
	CheckCommand(ctx context.Context, subject, token string) domain.SecurityAction
}

// CommandResult is what the dispatcher did with a command.
type CommandResult string

const (
	CommandReplied CommandResult = "replied"
	CommandUnknown CommandResult = "unknown"
	CommandBlocked CommandResult = "blocked"
)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Responses domain.ResponseStore
	Sender    domain.MessageSender
	Guard     CommandGuard // security.Guard without audit when nil
	Events    *bus.EventBus
	Logger    *slog.Logger
}

// Dispatcher answers keyword commands from the response store.
type Dispatcher struct {
	responses domain.ResponseStore
	sender    domain.MessageSender
	guard     CommandGuard
	events    *bus.EventBus
	logger    *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Guard == nil {
		cfg.Guard = security.NewGuard(nil, cfg.Logger)
	}
	return &Dispatcher{
		responses: cfg.Responses,
		sender:    cfg.Sender,
		guard:     cfg.Guard,
		events:    cfg.Events,
		logger:    cfg.Logger,
	}
}

// Dispatch validates, looks up and answers cmd in the event's group.
// Unknown keywords are not errors.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.MessageEvent, cmd Command) (CommandResult, error) {
	subject := ev.GroupName()
	if d.guard.CheckCommand(ctx, subject, cmd.Token) == domain.ActionBlock {
		emit(d.events, bus.EventCommandBlocked, map[string]any{"group": subject, "token": cmd.Token})
		return CommandBlocked, nil
	}

	keyword := strings.ToLower(cmd.Token)
	if keyword == "" {
		return CommandUnknown, nil
	}
	if d.responses == nil {
		return CommandUnknown, nil
	}

	body, ok, err := d.responses.Lookup(ctx, keyword)
	if err != nil {
		return "", fmt.Errorf("lookup %q: %w", keyword, err)
	}
	if !ok {
		d.logger.Debug("unknown command", "group", subject, "keyword", keyword)
		return CommandUnknown, nil
	}

	if d.sender == nil {
		return "", errors.New("no message sender configured")
	}
	if ev.GroupID == "" {
		return "", fmt.Errorf("reply to %q: group has no id", subject)
	}
	if err := d.sender.SendGroupMessage(ctx, ev.GroupID, body); err != nil {
		return "", fmt.Errorf("send reply for %q: %w", keyword, err)
	}

	d.logger.Info("command answered", "group", subject, "keyword", keyword)
	emit(d.events, bus.EventCommandReplied, map[string]any{"group": subject, "keyword": keyword})
	return CommandReplied, nil
}

func emit(eb *bus.EventBus, eventType string, payload map[string]any) {
	if eb == nil {
		return
	}
	eb.Emit(bus.Event{Type: eventType, Source: "pipeline", Payload: payload})
}
