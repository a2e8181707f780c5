package domain

import (
	"strings"
	"time"
)

// MessageEvent is the canonical inbound chat message, independent of the
// envelope shape it arrived in. It is read-only once normalized.
type MessageEvent struct {
	Account        string
	SourceName     string
	SourceNumber   string
	SourceUUID     string
	Timestamp      int64 // ms since epoch, sender clock
	GroupID        string
	GroupTitle     string
	Text           string
	Attachments    []Attachment
	Quote          *Quote
	IsOutgoingEcho bool
}

// Attachment is a file announced in a message. Data holds base64 content when
// the daemon delivered it inline; otherwise it is fetched by ID.
type Attachment struct {
	ID          string
	Filename    string
	ContentType string
	Size        int64
	Data        string
}

// Quote is the message being replied to. ID is the quoted message timestamp in ms.
type Quote struct {
	ID           int64
	Author       string
	AuthorNumber string
	AuthorUUID   string
	AuthorName   string
	Text         string
}

// HasGroup reports whether the event carries a group identity.
func (m MessageEvent) HasGroup() bool {
	return m.GroupID != "" || m.GroupTitle != ""
}

// IsEmpty reports whether there is nothing to record.
func (m MessageEvent) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0
}

// SentAt returns the message timestamp as a time.Time.
func (m MessageEvent) SentAt() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// GroupName returns the title used for the vault directory, falling back to the ID.
func (m MessageEvent) GroupName() string {
	if m.GroupTitle != "" {
		return m.GroupTitle
	}
	return m.GroupID
}

// Sender identifies the author of a message for document ownership.
type Sender struct {
	Name   string
	Number string
	UUID   string
}

// Sender returns the author of the event.
func (m MessageEvent) Sender() Sender {
	return Sender{Name: m.SourceName, Number: m.SourceNumber, UUID: m.SourceUUID}
}

// IsAuthor reports whether the quote was written by the given sender.
// Numbers are compared first, then UUIDs; names are never trusted alone.
func (q *Quote) IsAuthor(s Sender) bool {
	if q == nil {
		return false
	}
	number := q.AuthorNumber
	if number == "" && strings.HasPrefix(q.Author, "+") {
		number = q.Author
	}
	if number != "" && s.Number != "" {
		return number == s.Number
	}
	uuid := q.AuthorUUID
	if uuid == "" && q.Author != "" && !strings.HasPrefix(q.Author, "+") {
		uuid = q.Author
	}
	if uuid != "" && s.UUID != "" {
		return uuid == s.UUID
	}
	return false
}
