package pipeline

import (
	"context"
	"errors"
	"testing"

	"oden/internal/domain"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text  string
		token string
		ok    bool
	}{
		{"#help", "help", true},
		{"  #Help me now", "Help", true},
		{"#status\nsecond line", "status", true},
		{"#", "", true},
		{"hello #help", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		cmd, ok := ParseCommand(tt.text, "#")
		if ok != tt.ok || cmd.Token != tt.token {
			t.Errorf("ParseCommand(%q) = %q,%v want %q,%v", tt.text, cmd.Token, ok, tt.token, tt.ok)
		}
	}
}

type failingResponses struct{}

func (failingResponses) Lookup(context.Context, string) (string, bool, error) {
	return "", false, errors.New("db locked")
}

func TestDispatch_LookupErrorPropagates(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Responses: failingResponses{}, Sender: &fakeSender{}, Logger: testLogger()})
	_, err := d.Dispatch(context.Background(), event(baseTime, "#help"), Command{Token: "help"})
	if err == nil {
		t.Fatal("expected lookup error")
	}
}

func TestDispatch_EmptyTokenIsUnknown(t *testing.T) {
	responses := &fakeResponses{bodies: map[string]string{"": "never"}}
	d := NewDispatcher(DispatcherConfig{Responses: responses, Sender: &fakeSender{}, Logger: testLogger()})
	res, err := d.Dispatch(context.Background(), event(baseTime, "#"), Command{})
	if err != nil || res != CommandUnknown {
		t.Errorf("res=%s err=%v, want unknown", res, err)
	}
	if responses.lookups != 0 {
		t.Error("empty token should not be looked up")
	}
}

func TestDispatch_GroupWithoutIDFails(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		Responses: &fakeResponses{bodies: map[string]string{"help": "x"}},
		Sender:    &fakeSender{},
		Logger:    testLogger(),
	})
	ev := event(baseTime, "#help")
	ev.GroupID = ""
	if _, err := d.Dispatch(context.Background(), ev, Command{Token: "help"}); err == nil {
		t.Error("expected error replying to a group without id")
	}
}

type denyAll struct{ calls int }

func (d *denyAll) CheckCommand(context.Context, string, string) domain.SecurityAction {
	d.calls++
	return domain.ActionBlock
}

func TestDispatch_UsesInjectedGuard(t *testing.T) {
	guard := &denyAll{}
	sender := &fakeSender{}
	d := NewDispatcher(DispatcherConfig{
		Responses: &fakeResponses{bodies: map[string]string{"help": "x"}},
		Sender:    sender,
		Guard:     guard,
		Logger:    testLogger(),
	})
	res, err := d.Dispatch(context.Background(), event(baseTime, "#help"), Command{Token: "help"})
	if err != nil || res != CommandBlocked {
		t.Errorf("res=%s err=%v, want blocked", res, err)
	}
	if guard.calls != 1 || len(sender.sent) != 0 {
		t.Errorf("guard calls=%d sent=%d", guard.calls, len(sender.sent))
	}
}
