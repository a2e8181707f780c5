package metrics

import (
	"time"

	"oden/internal/bus"
)

// Pipeline holds the series updated from pipeline events.
type Pipeline struct {
	reg *Registry

	Created        *Counter
	Appended       *Counter
	Fallbacks      *Counter
	Replies        *Counter
	Blocked        *Counter
	Failed         *Counter
	AttachSaved    *Counter
	AttachSkipped  *Counter
	Reconnects     *Counter
	Connected      *Gauge
	ProcessLatency *Histogram
}

// NewPipeline registers the oden_* series on reg.
func NewPipeline(reg *Registry) *Pipeline {
	return &Pipeline{
		reg:            reg,
		Created:        reg.Counter("oden_documents_created_total", "Documents created", ""),
		Appended:       reg.Counter("oden_documents_appended_total", "Messages appended to existing documents", ""),
		Fallbacks:      reg.Counter("oden_append_fallbacks_total", "Append requests that created a new document", ""),
		Replies:        reg.Counter("oden_command_replies_total", "Keyword commands answered", ""),
		Blocked:        reg.Counter("oden_commands_blocked_total", "Keyword commands rejected as unsafe", ""),
		Failed:         reg.Counter("oden_events_failed_total", "Events whose processing failed", ""),
		AttachSaved:    reg.Counter("oden_attachments_saved_total", "Attachments written to the vault", ""),
		AttachSkipped:  reg.Counter("oden_attachments_skipped_total", "Attachments that could not be saved", ""),
		Reconnects:     reg.Counter("oden_transport_disconnects_total", "Connections to signal-cli that ended", ""),
		Connected:      reg.Gauge("oden_transport_connected", "1 while connected to signal-cli", ""),
		ProcessLatency: reg.Histogram("oden_process_seconds", "Time to process one event", "", []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10}),
	}
}

// Discarded returns the discard counter for a reason.
func (p *Pipeline) Discarded(reason string) *Counter {
	return p.reg.Counter("oden_events_discarded_total", "Events dropped before reaching the vault", `reason="`+reason+`"`)
}

// Subscribe updates the series from events emitted on eb.
func (p *Pipeline) Subscribe(eb *bus.EventBus) {
	eb.On("*", p.handle)
}

func (p *Pipeline) handle(e bus.Event) {
	switch e.Type {
	case bus.EventDocumentCreated:
		p.Created.Inc()
	case bus.EventDocumentAppended:
		p.Appended.Inc()
	case bus.EventAppendFallback:
		p.Fallbacks.Inc()
	case bus.EventCommandReplied:
		p.Replies.Inc()
	case bus.EventCommandBlocked:
		p.Blocked.Inc()
	case bus.EventFailed:
		p.Failed.Inc()
	case bus.EventAttachmentSaved:
		p.AttachSaved.Inc()
	case bus.EventAttachmentSkipped:
		p.AttachSkipped.Inc()
	case bus.EventDiscarded:
		reason, _ := e.Payload["reason"].(string)
		if reason == "" {
			reason = "unknown"
		}
		p.Discarded(reason).Inc()
	case bus.EventConnected:
		p.Connected.Set(1)
	case bus.EventDisconnected:
		p.Connected.Set(0)
		p.Reconnects.Inc()
	}
	if d, ok := e.Payload["duration"].(time.Duration); ok {
		p.ProcessLatency.Observe(d.Seconds())
	}
}
