package pipeline

import (
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"oden/internal/domain"
)

// AppendReason names why an event was considered a continuation.
type AppendReason string

const (
	ReasonNone   AppendReason = ""
	ReasonMarker AppendReason = "marker"
	ReasonQuote  AppendReason = "quote"
)

// Decision is the append engine's verdict for one event.
type Decision struct {
	Reason AppendReason
	// Text is the message body with any append marker removed.
	Text string
	// Target is the document to append to; empty when none was found.
	Target string
}

// Wants reports whether an append was requested.
func (d Decision) Wants() bool { return d.Reason != ReasonNone }

// AppendEngine decides whether an event continues a prior document.
type AppendEngine struct {
	repo   domain.DocumentRepository
	window time.Duration
	marker string
	logger *slog.Logger
}

func NewAppendEngine(repo domain.DocumentRepository, window time.Duration, marker string, logger *slog.Logger) *AppendEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppendEngine{repo: repo, window: window, marker: marker, logger: logger}
}

// StripMarker removes a leading append marker and one following whitespace
// character. Whitespace before the marker is ignored, as for the ignore
// marker. ok is false when text does not start with the marker.
func StripMarker(text, marker string) (string, bool) {
	if marker == "" {
		return text, false
	}
	rest, ok := strings.CutPrefix(strings.TrimLeftFunc(text, unicode.IsSpace), marker)
	if !ok {
		return text, false
	}
	if r, size := utf8.DecodeRuneInString(rest); size > 0 && unicode.IsSpace(r) {
		rest = rest[size:]
	}
	return rest, true
}

// Classify determines the append reason without touching the filesystem.
// The marker wins over a quote.
func (e *AppendEngine) Classify(ev domain.MessageEvent) Decision {
	if rest, ok := StripMarker(ev.Text, e.marker); ok {
		return Decision{Reason: ReasonMarker, Text: rest}
	}
	if e.quoteQualifies(ev) {
		return Decision{Reason: ReasonQuote, Text: ev.Text}
	}
	return Decision{Text: ev.Text}
}

func (e *AppendEngine) quoteQualifies(ev domain.MessageEvent) bool {
	q := ev.Quote
	if q == nil || q.ID <= 0 || !q.IsAuthor(ev.Sender()) {
		return false
	}
	delta := time.Duration(ev.Timestamp-q.ID) * time.Millisecond
	if delta < 0 {
		delta = -delta
	}
	return delta <= e.window
}

// Resolve fills in the target document for an append decision. A lookup
// error is logged and treated as no target so the event still gets written.
func (e *AppendEngine) Resolve(d Decision, ev domain.MessageEvent, groupDir string) Decision {
	if !d.Wants() || e.repo == nil {
		return d
	}
	path, found, err := e.repo.FindLatest(groupDir, ev.Sender(), ev.SentAt(), e.window)
	if err != nil {
		e.logger.Warn("prior document lookup failed", "group", ev.GroupName(), "error", err)
		return d
	}
	if found {
		d.Target = path
	}
	return d
}
