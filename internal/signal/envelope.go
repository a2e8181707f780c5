package signal

import (
	"encoding/json"
	"fmt"

	"oden/internal/domain"
)

// receiveParams is the payload of a "receive" notification.
type receiveParams struct {
	Envelope Envelope `json:"envelope"`
	Account  string   `json:"account"`
}

// Envelope is the outer message wrapper. Exactly one of DataMessage and
// SyncMessage is relevant; receipts and typing indicators carry neither.
type Envelope struct {
	Source       string       `json:"source"`
	SourceNumber string       `json:"sourceNumber"`
	SourceUUID   string       `json:"sourceUuid"`
	SourceName   string       `json:"sourceName"`
	Timestamp    int64        `json:"timestamp"`
	DataMessage  *DataMessage `json:"dataMessage,omitempty"`
	SyncMessage  *SyncMessage `json:"syncMessage,omitempty"`
}

// DataMessage is a message received from another account.
type DataMessage struct {
	Timestamp   int64        `json:"timestamp"`
	Message     string       `json:"message"`
	Body        string       `json:"body"`
	GroupInfo   *GroupInfo   `json:"groupInfo,omitempty"`
	GroupV2     *GroupInfo   `json:"groupV2,omitempty"`
	Group       *GroupInfo   `json:"group,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Quote       *Quote       `json:"quote,omitempty"`
}

// SyncMessage carries copies of messages this account sent from another device.
type SyncMessage struct {
	SentMessage *SentMessage `json:"sentMessage,omitempty"`
}

type SentMessage struct {
	Destination string       `json:"destination"`
	Timestamp   int64        `json:"timestamp"`
	Message     string       `json:"message"`
	GroupInfo   *GroupInfo   `json:"groupInfo,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Quote       *Quote       `json:"quote,omitempty"`
}

// GroupInfo covers the field spellings used across daemon versions.
type GroupInfo struct {
	GroupID   string `json:"groupId"`
	ID        string `json:"id"`
	GroupName string `json:"groupName"`
	Title     string `json:"title"`
	Name      string `json:"name"`
}

func (g *GroupInfo) id() string {
	if g.GroupID != "" {
		return g.GroupID
	}
	return g.ID
}

func (g *GroupInfo) title() string {
	switch {
	case g.GroupName != "":
		return g.GroupName
	case g.Title != "":
		return g.Title
	}
	return g.Name
}

type Attachment struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	Data        string `json:"data,omitempty"`
}

type Quote struct {
	ID           int64  `json:"id"`
	Author       string `json:"author"`
	AuthorNumber string `json:"authorNumber"`
	AuthorUUID   string `json:"authorUuid"`
	AuthorName   string `json:"authorName"`
	Text         string `json:"text"`
}

// ParseReceive decodes "receive" notification params into a canonical event.
// ok is false for envelopes that carry no message (receipts, typing).
func ParseReceive(params json.RawMessage) (domain.MessageEvent, bool, error) {
	var p receiveParams
	if err := json.Unmarshal(params, &p); err != nil {
		return domain.MessageEvent{}, false, fmt.Errorf("decode receive params: %w", err)
	}
	ev, ok := Normalize(p.Envelope, p.Account)
	return ev, ok, nil
}

// Normalize maps an envelope to a MessageEvent. A sync sent message, or a
// data message from the account itself, is marked as an outgoing echo.
func Normalize(env Envelope, account string) (domain.MessageEvent, bool) {
	ev := domain.MessageEvent{
		Account:      account,
		SourceName:   env.SourceName,
		SourceNumber: firstNonEmpty(env.SourceNumber, numberLike(env.Source)),
		SourceUUID:   firstNonEmpty(env.SourceUUID, uuidLike(env.Source)),
		Timestamp:    env.Timestamp,
	}

	switch {
	case env.DataMessage != nil:
		dm := env.DataMessage
		ev.Text = firstNonEmpty(dm.Message, dm.Body)
		if g := firstGroup(dm.GroupInfo, dm.GroupV2, dm.Group); g != nil {
			ev.GroupID, ev.GroupTitle = g.id(), g.title()
		}
		ev.Attachments = convertAttachments(dm.Attachments)
		ev.Quote = convertQuote(dm.Quote)
		if ev.Timestamp == 0 {
			ev.Timestamp = dm.Timestamp
		}
		ev.IsOutgoingEcho = account != "" && ev.SourceNumber == account

	case env.SyncMessage != nil && env.SyncMessage.SentMessage != nil:
		sm := env.SyncMessage.SentMessage
		ev.Text = sm.Message
		if sm.GroupInfo != nil {
			ev.GroupID, ev.GroupTitle = sm.GroupInfo.id(), sm.GroupInfo.title()
		}
		ev.Attachments = convertAttachments(sm.Attachments)
		ev.Quote = convertQuote(sm.Quote)
		if ev.Timestamp == 0 {
			ev.Timestamp = sm.Timestamp
		}
		ev.IsOutgoingEcho = true

	default:
		return domain.MessageEvent{}, false
	}
	return ev, true
}

func firstGroup(groups ...*GroupInfo) *GroupInfo {
	for _, g := range groups {
		if g != nil && (g.id() != "" || g.title() != "") {
			return g
		}
	}
	return nil
}

func convertAttachments(in []Attachment) []domain.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, domain.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
			Data:        a.Data,
		})
	}
	return out
}

func convertQuote(q *Quote) *domain.Quote {
	if q == nil {
		return nil
	}
	return &domain.Quote{
		ID:           q.ID,
		Author:       q.Author,
		AuthorNumber: firstNonEmpty(q.AuthorNumber, numberLike(q.Author)),
		AuthorUUID:   firstNonEmpty(q.AuthorUUID, uuidLike(q.Author)),
		AuthorName:   q.AuthorName,
		Text:         q.Text,
	}
}

func numberLike(s string) string {
	if len(s) > 1 && s[0] == '+' {
		return s
	}
	return ""
}

func uuidLike(s string) string {
	if s != "" && s[0] != '+' {
		return s
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
