package signal

import (
	"encoding/json"
	"testing"
)

func TestParseReceiveGroupMessage(t *testing.T) {
	raw := `{
		"account": "+46700000000",
		"envelope": {
			"source": "+46701111111",
			"sourceNumber": "+46701111111",
			"sourceUuid": "a1b2",
			"sourceName": "Alice",
			"timestamp": 1700000000000,
			"dataMessage": {
				"timestamp": 1700000000000,
				"message": "hello",
				"groupInfo": {"groupId": "G1", "groupName": "Ops"},
				"attachments": [{"id": "att1", "contentType": "image/jpeg", "filename": "a.jpg", "size": 12}],
				"quote": {"id": 1699999999000, "author": "+46702222222", "text": "earlier"}
			}
		}
	}`
	ev, ok, err := ParseReceive(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("ParseReceive: %v", err)
	}
	if !ok {
		t.Fatal("expected a message event")
	}
	if ev.GroupID != "G1" || ev.GroupTitle != "Ops" {
		t.Errorf("group = %q/%q", ev.GroupID, ev.GroupTitle)
	}
	if ev.Text != "hello" || ev.SourceName != "Alice" || ev.SourceUUID != "a1b2" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.IsOutgoingEcho {
		t.Error("message from another account marked as echo")
	}
	if len(ev.Attachments) != 1 || ev.Attachments[0].ID != "att1" || ev.Attachments[0].Size != 12 {
		t.Errorf("attachments = %+v", ev.Attachments)
	}
	if ev.Quote == nil || ev.Quote.AuthorNumber != "+46702222222" || ev.Quote.Text != "earlier" {
		t.Errorf("quote = %+v", ev.Quote)
	}
}

func TestNormalizeSyncSentIsEcho(t *testing.T) {
	env := Envelope{
		SourceNumber: "+46700000000",
		Timestamp:    1,
		SyncMessage: &SyncMessage{SentMessage: &SentMessage{
			Message:   "mine",
			GroupInfo: &GroupInfo{GroupID: "G1", Title: "Ops"},
		}},
	}
	ev, ok := Normalize(env, "+46700000000")
	if !ok {
		t.Fatal("sync sent message should produce an event")
	}
	if !ev.IsOutgoingEcho {
		t.Error("sync sent message should be an echo")
	}
	if ev.GroupTitle != "Ops" || ev.Text != "mine" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestNormalizeOwnDataMessageIsEcho(t *testing.T) {
	env := Envelope{
		SourceNumber: "+46700000000",
		DataMessage:  &DataMessage{Message: "x"},
	}
	ev, ok := Normalize(env, "+46700000000")
	if !ok || !ev.IsOutgoingEcho {
		t.Errorf("ok=%v echo=%v, want both true", ok, ev.IsOutgoingEcho)
	}
}

func TestNormalizeReceiptIsSkipped(t *testing.T) {
	if _, ok := Normalize(Envelope{Source: "+1", Timestamp: 5}, "+2"); ok {
		t.Error("envelope without message should be skipped")
	}
	if _, ok := Normalize(Envelope{SyncMessage: &SyncMessage{}}, "+2"); ok {
		t.Error("sync message without sentMessage should be skipped")
	}
}

func TestNormalizeGroupFieldSpellings(t *testing.T) {
	tests := []struct {
		name string
		dm   DataMessage
		id   string
		tt   string
	}{
		{"groupV2", DataMessage{GroupV2: &GroupInfo{ID: "V2", Title: "Two"}}, "V2", "Two"},
		{"group", DataMessage{Group: &GroupInfo{GroupID: "G", Name: "Plain"}}, "G", "Plain"},
		{"none", DataMessage{}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dm := tt.dm
			ev, ok := Normalize(Envelope{SourceNumber: "+1", DataMessage: &dm}, "+2")
			if !ok {
				t.Fatal("expected event")
			}
			if ev.GroupID != tt.id || ev.GroupTitle != tt.tt {
				t.Errorf("group = %q/%q, want %q/%q", ev.GroupID, ev.GroupTitle, tt.id, tt.tt)
			}
		})
	}
}

func TestNormalizeBodyFallbackAndSourceSplit(t *testing.T) {
	env := Envelope{Source: "uuid-123", DataMessage: &DataMessage{Body: "from body"}}
	ev, _ := Normalize(env, "")
	if ev.Text != "from body" {
		t.Errorf("Text = %q", ev.Text)
	}
	if ev.SourceUUID != "uuid-123" || ev.SourceNumber != "" {
		t.Errorf("source split wrong: number=%q uuid=%q", ev.SourceNumber, ev.SourceUUID)
	}
}
